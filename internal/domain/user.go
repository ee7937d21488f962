// Package domain contains the core business entities for Truly.
// These are pure Go structs with no external dependencies, representing
// users, the anonymous messages they receive, and the authenticated principal.
package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// emailPattern is the basic shape every stored email must match.
var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// usernamePattern allows 2-20 letters, digits or underscores.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{2,20}$`)

// Password bounds. The upper bound is in bytes because bcrypt hashes at most
// 72 bytes of input.
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72
)

// ValidatePassword checks the password length bounds.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrInvalidPassword
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// User represents a registered user in the system.
// Messages are embedded: they are owned by the user and have no identity outside it.
type User struct {
	// ID is the unique identifier assigned by the store.
	ID string `json:"id"`

	// Username is the unique public handle, also usable as a login identifier.
	Username string `json:"username"`

	// Email is the unique, lower-cased email address.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// VerifyCode is the short-lived code proving control of Email.
	VerifyCode string `json:"-"`

	// VerifyCodeExpiry is the instant after which VerifyCode is rejected.
	VerifyCodeExpiry time.Time `json:"-"`

	// IsVerified is false at creation and flips to true exactly once.
	IsVerified bool `json:"is_verified"`

	// IsAcceptingMessages gates anonymous message intake. Defaults to true.
	IsAcceptingMessages bool `json:"is_accepting_messages"`

	// Messages holds the received messages in arrival order.
	Messages []Message `json:"messages,omitempty"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the user was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new unverified User that accepts messages.
func NewUser(username, email, passwordHash, verifyCode string, verifyCodeExpiry time.Time) *User {
	now := time.Now().UTC()
	return &User{
		Username:            NormalizeUsername(username),
		Email:               NormalizeEmail(email),
		PasswordHash:        passwordHash,
		VerifyCode:          verifyCode,
		VerifyCodeExpiry:    verifyCodeExpiry.UTC(),
		IsVerified:          false,
		IsAcceptingMessages: true,
		Messages:            []Message{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return u.IsVerified
}

// VerifyCodeExpired reports whether the pending verify code is no longer valid at t.
func (u *User) VerifyCodeExpired(t time.Time) bool {
	return !t.Before(u.VerifyCodeExpiry)
}

// Principal returns the session principal for this user.
func (u *User) Principal() *Principal {
	return &Principal{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		IsVerified:          u.IsVerified,
		IsAcceptingMessages: u.IsAcceptingMessages,
	}
}

// NormalizeUsername trims surrounding whitespace.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidUsername reports whether username is 2-20 letters, digits or underscores.
func ValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// ValidEmail reports whether email matches the stored-email pattern.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
