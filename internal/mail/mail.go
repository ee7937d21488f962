// Package mail delivers account verification codes.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/config"
)

const verificationSubject = "Truly | Verification Code"

// Sender delivers verification codes to new users.
type Sender interface {
	SendVerification(ctx context.Context, email, username, code string) error
}

// New creates the Sender selected by cfg.Driver.
func New(cfg config.MailConfig, logger zerolog.Logger) (Sender, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogSender(logger), nil
	case "smtp":
		return NewSMTPSender(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported mail driver: %s", cfg.Driver)
	}
}

// LogSender writes verification codes to the log instead of sending them.
// Intended for development.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "mail").Logger()}
}

// SendVerification logs the code.
func (s *LogSender) SendVerification(ctx context.Context, email, username, code string) error {
	s.logger.Info().
		Str("email", email).
		Str("username", username).
		Str("code", code).
		Msg("verification code issued")
	return nil
}

// SMTPSender sends verification codes over SMTP.
type SMTPSender struct {
	addr   string
	from   *mail.Address
	auth   smtp.Auth
	logger zerolog.Logger

	// send is smtp.SendMail; replaced in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTPSender creates an SMTPSender. Authentication is used only when a
// username is configured.
func NewSMTPSender(cfg config.MailConfig, logger zerolog.Logger) (*SMTPSender, error) {
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid mail.from address: %w", err)
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &SMTPSender{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:   from,
		auth:   auth,
		logger: logger.With().Str("component", "mail").Logger(),
		send:   smtp.SendMail,
		now:    time.Now,
	}, nil
}

// SendVerification sends the code to email.
func (s *SMTPSender) SendVerification(ctx context.Context, email, username, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	to, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	msg := s.compose(to, username, code)
	if err := s.send(s.addr, s.auth, s.from.Address, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Debug().Str("email", to.Address).Msg("verification email sent")
	return nil
}

func (s *SMTPSender) compose(to *mail.Address, username, code string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", to.String())
	fmt.Fprintf(&buf, "Subject: %s\r\n", verificationSubject)
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	fmt.Fprintf(&buf, "Hello %s,\r\n\r\n", username)
	buf.WriteString("Thank you for registering. Please use the following code to complete your registration:\r\n\r\n")
	fmt.Fprintf(&buf, "    %s\r\n\r\n", code)
	buf.WriteString("If you did not request this code, please ignore this email.\r\n")
	return buf.Bytes()
}

var (
	_ Sender = (*LogSender)(nil)
	_ Sender = (*SMTPSender)(nil)
)
