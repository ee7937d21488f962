package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/metrics"
	"github.com/prn-tf/truly/internal/repository"
)

// MessageService handles anonymous message intake and the owner's view of
// their messages and acceptance setting.
type MessageService struct {
	userRepo repository.UserRepository
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewMessageService creates a new MessageService.
func NewMessageService(userRepo repository.UserRepository, m *metrics.Metrics, logger zerolog.Logger) *MessageService {
	return &MessageService{
		userRepo: userRepo,
		metrics:  m,
		logger:   logger.With().Str("service", "message").Logger(),
		now:      time.Now,
	}
}

// Send appends an anonymous message to the user named username.
// The acceptance flag is checked on read and again by the store at write time.
func (s *MessageService) Send(ctx context.Context, username, content string) (*domain.Message, error) {
	username = domain.NormalizeUsername(username)
	if username == "" {
		s.metrics.MessageSent(metrics.ResultInvalid)
		return nil, domain.NewValidationError("username is required")
	}
	if err := domain.ValidateMessageContent(content); err != nil {
		s.metrics.MessageSent(metrics.ResultInvalid)
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.metrics.MessageSent(metrics.ResultNotFound)
			return nil, err
		}
		s.metrics.MessageSent(metrics.ResultError)
		return nil, storeError(s.logger, "get user by username", err)
	}

	if !user.IsAcceptingMessages {
		s.metrics.MessageSent(metrics.ResultForbidden)
		return nil, domain.ErrNotAcceptingMessages
	}

	msg := domain.NewMessage(content, s.now())
	if err := s.userRepo.AppendMessage(ctx, user.ID, &msg); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotAcceptingMessages):
			s.metrics.MessageSent(metrics.ResultForbidden)
			return nil, err
		case errors.Is(err, domain.ErrUserNotFound):
			s.metrics.MessageSent(metrics.ResultNotFound)
			return nil, err
		}
		s.metrics.MessageSent(metrics.ResultError)
		return nil, storeError(s.logger, "append message", err)
	}

	s.logger.Debug().
		Str("user_id", user.ID).
		Str("message_id", msg.ID).
		Msg("message received")
	s.metrics.MessageSent(metrics.ResultSuccess)

	return &msg, nil
}

// GetAcceptanceFlag returns whether the principal currently accepts messages.
// The value is read from the store, not from the session.
func (s *MessageService) GetAcceptanceFlag(ctx context.Context, principal *domain.Principal) (bool, error) {
	if err := requirePrincipal(principal); err != nil {
		return false, err
	}

	user, err := s.userRepo.GetByID(ctx, principal.ID)
	if err != nil {
		return false, storeError(s.logger, "get user by id", err)
	}
	return user.IsAcceptingMessages, nil
}

// SetAcceptanceFlag persists the principal's acceptance flag and returns the stored value.
// Setting the current value again is a no-op.
func (s *MessageService) SetAcceptanceFlag(ctx context.Context, principal *domain.Principal, accepting bool) (bool, error) {
	if err := requirePrincipal(principal); err != nil {
		return false, err
	}

	if err := s.userRepo.SetAcceptingMessages(ctx, principal.ID, accepting); err != nil {
		return false, storeError(s.logger, "set accepting messages", err)
	}

	s.logger.Info().
		Str("user_id", principal.ID).
		Bool("accepting", accepting).
		Msg("message acceptance updated")

	return accepting, nil
}

// ListMessages returns the principal's messages in arrival order.
func (s *MessageService) ListMessages(ctx context.Context, principal *domain.Principal) ([]domain.Message, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}

	messages, err := s.userRepo.ListMessages(ctx, principal.ID)
	if err != nil {
		return nil, storeError(s.logger, "list messages", err)
	}
	return messages, nil
}
