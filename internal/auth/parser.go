package auth

import (
	"net/http"
	"strings"
)

// ExtractToken returns the session token from the Authorization header,
// falling back to the session cookie.
func ExtractToken(r *http.Request) (string, error) {
	if header := r.Header.Get(AuthorizationHeader); header != "" {
		if len(header) <= len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
			return "", ErrInvalidToken
		}
		token := strings.TrimSpace(header[len(BearerPrefix):])
		if token == "" {
			return "", ErrInvalidToken
		}
		return token, nil
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", ErrMissingToken
}
