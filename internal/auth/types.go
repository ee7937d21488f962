package auth

import (
	"context"
	"time"

	"github.com/prn-tf/truly/internal/domain"
)

// AuthContext contains authentication information attached to a request.
type AuthContext struct {
	// Principal is the authenticated owner.
	Principal *domain.Principal

	// TokenID is the jti of the session token.
	TokenID string

	// ExpiresAt is when the session token stops being valid.
	ExpiresAt time.Time
}

// authContextKey is the context key for AuthContext.
type authContextKey struct{}

// AuthContextKey is the key used to store AuthContext in request context.
var AuthContextKey = authContextKey{}

// WithAuthContext returns a copy of ctx carrying authCtx.
func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, authCtx)
}

// GetAuthContext retrieves the AuthContext from a request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	if authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext); ok {
		return authCtx
	}
	return nil
}

// GetPrincipal returns the authenticated principal, or nil for anonymous requests.
func GetPrincipal(ctx context.Context) *domain.Principal {
	if authCtx := GetAuthContext(ctx); authCtx != nil {
		return authCtx.Principal
	}
	return nil
}

// RequirePrincipal is a helper to get the principal or return domain.ErrUnauthorized.
func RequirePrincipal(ctx context.Context) (*domain.Principal, error) {
	principal := GetPrincipal(ctx)
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}
	return principal, nil
}
