package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/auth"
	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/repository"
)

// Session is an issued session token and the principal it carries.
type Session struct {
	Token     string
	Principal *domain.Principal
	ExpiresAt time.Time
}

// SessionService issues, validates and revokes session tokens.
// A token is valid only while its ID is registered in the cache.
type SessionService struct {
	authService *AuthService
	tokens      *auth.TokenManager
	cache       repository.Cache
	logger      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(authService *AuthService, tokens *auth.TokenManager, cache repository.Cache, logger zerolog.Logger) *SessionService {
	return &SessionService{
		authService: authService,
		tokens:      tokens,
		cache:       cache,
		logger:      logger.With().Str("service", "session").Logger(),
	}
}

// Login authenticates the credentials and issues a session token.
func (s *SessionService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	principal, err := s.authService.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.tokens.Issue(principal)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", principal.ID).Msg("failed to issue session token")
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	key := repository.Keys.Session(claims.ID)
	if err := s.cache.Set(ctx, key, []byte(principal.ID), s.tokens.TTL()); err != nil {
		s.logger.Error().Err(err).Str("user_id", principal.ID).Msg("failed to register session")
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	s.logger.Info().
		Str("user_id", principal.ID).
		Str("token_id", claims.ID).
		Msg("session started")

	return &Session{
		Token:     token,
		Principal: principal,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Authenticate resolves a token to its authentication context.
// Any failure is reported as domain.ErrUnauthorized wrapping the cause.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*auth.AuthContext, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	owner, err := s.cache.Get(ctx, repository.Keys.Session(claims.ID))
	if errors.Is(err, repository.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, auth.ErrSessionRevoked)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("token_id", claims.ID).Msg("failed to look up session")
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	// A session belongs to the user it was issued for.
	if string(owner) != claims.Subject {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, auth.ErrSessionRevoked)
	}

	return &auth.AuthContext{
		Principal: claims.Principal(),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate returns the principal of a live session token.
func (s *SessionService) Validate(ctx context.Context, token string) (*domain.Principal, error) {
	authCtx, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return authCtx.Principal, nil
}

// Logout revokes the session. Unknown, expired or already revoked tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) || errors.Is(err, auth.ErrInvalidToken) {
			return nil
		}
		return err
	}

	if err := s.cache.Delete(ctx, repository.Keys.Session(claims.ID)); err != nil {
		s.logger.Error().Err(err).Str("token_id", claims.ID).Msg("failed to revoke session")
		return fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	s.logger.Info().
		Str("user_id", claims.Subject).
		Str("token_id", claims.ID).
		Msg("session ended")
	return nil
}

var _ auth.SessionValidator = (*SessionService)(nil)
