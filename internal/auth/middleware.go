package auth

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
)

// SessionValidator resolves a session token to its authentication context.
type SessionValidator interface {
	Authenticate(ctx context.Context, token string) (*AuthContext, error)
}

// Middleware attaches the AuthContext of a valid session token to the request.
// Requests without a valid token continue anonymously; owner-scoped operations
// reject them when they find no principal.
func Middleware(validator SessionValidator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := ExtractToken(r)
			if err != nil {
				if err != ErrMissingToken {
					logger.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring malformed session token")
				}
				next.ServeHTTP(w, r)
				return
			}

			authCtx, err := validator.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("session validation failed")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), authCtx)))
		})
	}
}
