package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/metrics"
	"github.com/prn-tf/truly/internal/pkg/crypto"
	"github.com/prn-tf/truly/internal/repository"
)

// AuthService checks user credentials.
type AuthService struct {
	userRepo repository.UserRepository
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.UserRepository, m *metrics.Metrics, logger zerolog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		metrics:  m,
		logger:   logger.With().Str("service", "auth").Logger(),
	}
}

// Authenticate resolves identifier (username or email) and checks password.
//
// Failures are reported in a fixed order: unknown identifier, unverified
// account, then wrong password. An unverified account is rejected before the
// password is compared.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string) (*domain.Principal, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		s.metrics.AuthAttempt(metrics.ResultInvalid)
		return nil, domain.ErrMissingCredentials
	}

	user, err := s.userRepo.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Debug().Str("identifier", identifier).Msg("no user for identifier")
			s.metrics.AuthAttempt(metrics.ResultNoSuchUser)
			return nil, domain.NewAuthError(domain.ReasonNoSuchUser)
		}
		s.metrics.AuthAttempt(metrics.ResultError)
		return nil, storeError(s.logger, "get user by identifier", err)
	}

	if !user.CanAuthenticate() {
		s.logger.Debug().Str("user_id", user.ID).Msg("unverified user attempted authentication")
		s.metrics.AuthAttempt(metrics.ResultNotVerified)
		return nil, domain.NewAuthError(domain.ReasonNotVerified)
	}

	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			s.logger.Debug().Str("user_id", user.ID).Msg("invalid password during authentication")
			s.metrics.AuthAttempt(metrics.ResultBadCredentials)
			return nil, domain.NewAuthError(domain.ReasonBadCredentials)
		}
		s.metrics.AuthAttempt(metrics.ResultError)
		return nil, storeError(s.logger, "compare password", err)
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Msg("user authenticated")
	s.metrics.AuthAttempt(metrics.ResultSuccess)

	return user.Principal(), nil
}
