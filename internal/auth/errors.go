// Package auth provides session token handling for Truly.
package auth

import "errors"

// Session token errors.
var (
	// ErrMissingToken indicates the request carries no session token.
	ErrMissingToken = errors.New("missing session token")

	// ErrInvalidToken indicates the token is malformed or its signature does not verify.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("session token has expired")

	// ErrSessionRevoked indicates the token was signed out or is unknown to the session store.
	ErrSessionRevoked = errors.New("session has been revoked")
)
