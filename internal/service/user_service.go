package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/lock"
	"github.com/prn-tf/truly/internal/mail"
	"github.com/prn-tf/truly/internal/metrics"
	"github.com/prn-tf/truly/internal/pkg/crypto"
	"github.com/prn-tf/truly/internal/repository"
)

// signUpLockPolicy waits up to ~5s for a concurrent sign-up of the same email.
var signUpLockPolicy = lock.RetryPolicy{Attempts: 50, Delay: 100 * time.Millisecond}

// UserServiceConfig holds the tunables of UserService.
type UserServiceConfig struct {
	VerifyCodeTTL time.Duration
	BcryptCost    int
	SignUpLockTTL time.Duration
}

// UserService handles sign-up, email verification and account administration.
type UserService struct {
	userRepo repository.UserRepository
	locker   lock.Locker
	sender   mail.Sender
	cfg      UserServiceConfig
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	locker lock.Locker,
	sender mail.Sender,
	cfg UserServiceConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *UserService {
	if cfg.VerifyCodeTTL <= 0 {
		cfg.VerifyCodeTTL = time.Hour
	}
	if cfg.SignUpLockTTL <= 0 {
		cfg.SignUpLockTTL = 10 * time.Second
	}
	return &UserService{
		userRepo: userRepo,
		locker:   locker,
		sender:   sender,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With().Str("service", "user").Logger(),
		now:      time.Now,
	}
}

// SignUpInput contains the data needed to register a user.
type SignUpInput struct {
	Username string
	Email    string
	Password string
}

// SignUpOutput contains the result of a sign-up.
type SignUpOutput struct {
	User *domain.User

	// Reissued is true when an existing unverified account received a new code.
	Reissued bool
}

// SignUp registers a new unverified user and sends a verification code.
//
// If the email belongs to an unverified account, that account's username,
// password and code are replaced instead. Sign-ups of the same email are
// serialized.
func (s *UserService) SignUp(ctx context.Context, input SignUpInput) (*SignUpOutput, error) {
	input.Username = domain.NormalizeUsername(input.Username)
	input.Email = domain.NormalizeEmail(input.Email)

	if err := validateSignUpInput(input); err != nil {
		s.metrics.SignUp(metrics.ResultInvalid)
		return nil, err
	}

	l := lock.New(s.locker, lock.Keys.SignUp(input.Email))
	if err := l.Acquire(ctx, s.cfg.SignUpLockTTL, signUpLockPolicy); err != nil {
		s.metrics.SignUp(metrics.ResultError)
		s.logger.Error().Err(err).Str("email", input.Email).Msg("failed to acquire sign-up lock")
		return nil, fmt.Errorf("%w: sign-up lock: %v", domain.ErrStore, err)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("email", input.Email).Msg("failed to release sign-up lock")
		}
	}()

	output, err := s.register(ctx, input)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindDuplicateIdentity:
			s.metrics.SignUp(metrics.ResultDuplicate)
		default:
			s.metrics.SignUp(metrics.ResultError)
		}
		return nil, err
	}

	if err := s.sender.SendVerification(ctx, output.User.Email, output.User.Username, output.User.VerifyCode); err != nil {
		s.logger.Error().Err(err).Str("user_id", output.User.ID).Msg("failed to send verification email")
		s.metrics.SignUp(metrics.ResultError)
		return nil, fmt.Errorf("%w: %v", domain.ErrVerificationDelivery, err)
	}

	if output.Reissued {
		s.metrics.SignUp(metrics.ResultReissued)
	} else {
		s.metrics.SignUp(metrics.ResultCreated)
	}

	s.logger.Info().
		Str("user_id", output.User.ID).
		Str("username", output.User.Username).
		Bool("reissued", output.Reissued).
		Msg("user signed up")

	return output, nil
}

// register creates the user or re-issues the code of an unverified one.
// The caller holds the sign-up lock for input.Email.
func (s *UserService) register(ctx context.Context, input SignUpInput) (*SignUpOutput, error) {
	existing, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, storeError(s.logger, "get user by email", err)
	}

	if existing != nil && existing.IsVerified {
		return nil, domain.NewDomainError(domain.ErrEmailTaken, "sign-up", input.Email)
	}

	if existing == nil || existing.Username != input.Username {
		taken, err := s.userRepo.ExistsByUsername(ctx, input.Username)
		if err != nil {
			return nil, storeError(s.logger, "check username existence", err)
		}
		if taken {
			return nil, domain.NewDomainError(domain.ErrUsernameTaken, "sign-up", input.Username)
		}
	}

	passwordHash, err := crypto.HashPassword(input.Password, s.cfg.BcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	code, err := crypto.GenerateVerifyCode()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate verification code")
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	expiry := s.now().Add(s.cfg.VerifyCodeTTL).UTC()

	if existing != nil {
		reset := repository.VerificationReset{
			Username:         input.Username,
			PasswordHash:     passwordHash,
			VerifyCode:       code,
			VerifyCodeExpiry: expiry,
		}
		if err := s.userRepo.ResetVerification(ctx, existing.ID, reset); err != nil {
			return nil, storeError(s.logger, "reset verification", err)
		}

		existing.Username = reset.Username
		existing.PasswordHash = reset.PasswordHash
		existing.VerifyCode = reset.VerifyCode
		existing.VerifyCodeExpiry = reset.VerifyCodeExpiry
		return &SignUpOutput{User: existing, Reissued: true}, nil
	}

	user := domain.NewUser(input.Username, input.Email, passwordHash, code, expiry)
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, storeError(s.logger, "create user", err)
	}

	return &SignUpOutput{User: user}, nil
}

// VerifyAccount marks the user verified when code matches and has not expired.
// An expired code is reported as expired even if it also mismatches.
func (s *UserService) VerifyAccount(ctx context.Context, username, code string) error {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return domain.NewValidationError("username is required")
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return storeError(s.logger, "get user by username", err)
	}

	if user.IsVerified {
		return domain.ErrAlreadyVerified
	}
	if user.VerifyCodeExpired(s.now()) {
		return domain.ErrVerifyCodeExpired
	}
	if !crypto.EqualCodes(user.VerifyCode, code) {
		s.logger.Debug().Str("user_id", user.ID).Msg("incorrect verification code")
		return domain.ErrIncorrectVerifyCode
	}

	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return storeError(s.logger, "mark verified", err)
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Msg("user verified")

	return nil
}

// CheckUsername reports whether username is free to register.
func (s *UserService) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = domain.NormalizeUsername(username)
	if !domain.ValidUsername(username) {
		return false, domain.ErrInvalidUsername
	}

	taken, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return false, storeError(s.logger, "check username existence", err)
	}
	return !taken, nil
}

// GetByIdentifier retrieves a user by username or email, including messages.
func (s *UserService) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	user, err := s.userRepo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, storeError(s.logger, "get user by identifier", err)
	}

	user.Messages, err = s.userRepo.ListMessages(ctx, user.ID)
	if err != nil {
		return nil, storeError(s.logger, "list messages", err)
	}
	return user, nil
}

// ForceVerify marks a user verified without a code.
func (s *UserService) ForceVerify(ctx context.Context, username string) error {
	user, err := s.userRepo.GetByUsername(ctx, domain.NormalizeUsername(username))
	if err != nil {
		return storeError(s.logger, "get user by username", err)
	}
	if user.IsVerified {
		return domain.ErrAlreadyVerified
	}

	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return storeError(s.logger, "mark verified", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user verified by administrator")
	return nil
}

// SetAcceptingMessages sets the acceptance flag of the user named username.
func (s *UserService) SetAcceptingMessages(ctx context.Context, username string, accepting bool) error {
	user, err := s.userRepo.GetByUsername(ctx, domain.NormalizeUsername(username))
	if err != nil {
		return storeError(s.logger, "get user by username", err)
	}

	if err := s.userRepo.SetAcceptingMessages(ctx, user.ID, accepting); err != nil {
		return storeError(s.logger, "set accepting messages", err)
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Bool("accepting", accepting).
		Msg("message acceptance updated by administrator")
	return nil
}

// validateSignUpInput validates normalized sign-up input.
func validateSignUpInput(input SignUpInput) error {
	if !domain.ValidUsername(input.Username) {
		return domain.ErrInvalidUsername
	}

	if !domain.ValidEmail(input.Email) {
		return domain.ErrInvalidEmail
	}

	return domain.ValidatePassword(input.Password)
}
