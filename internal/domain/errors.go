// Package domain contains the core business entities for Truly.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to react to the failure
// category rather than the exact cause (the HTTP layer, the admin CLI).
type Kind int

const (
	// KindInternal is any failure not covered by another kind.
	KindInternal Kind = iota
	// KindValidation indicates malformed input.
	KindValidation
	// KindDuplicateIdentity indicates a username or email uniqueness violation.
	KindDuplicateIdentity
	// KindNotFound indicates an identifier that does not resolve.
	KindNotFound
	// KindAuth indicates a credential or verification failure.
	KindAuth
	// KindForbidden indicates a policy gate refused the operation.
	KindForbidden
	// KindUnauthorized indicates a missing or invalid principal.
	KindUnauthorized
	// KindStore indicates an underlying persistence failure.
	KindStore
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindDuplicateIdentity:
		return "DuplicateIdentity"
	case KindNotFound:
		return "NotFound"
	case KindAuth:
		return "AuthError"
	case KindForbidden:
		return "Forbidden"
	case KindUnauthorized:
		return "Unauthorized"
	case KindStore:
		return "StoreError"
	default:
		return "InternalError"
	}
}

// kindError is a sentinel error carrying its kind and a stable,
// human-readable message.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func newError(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).
var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = newError(KindNotFound, "user not found")

	// ErrUsernameTaken indicates another user already owns the username.
	ErrUsernameTaken = newError(KindDuplicateIdentity, "username is already taken")

	// ErrEmailTaken indicates a verified user already owns the email.
	ErrEmailTaken = newError(KindDuplicateIdentity, "email is already registered")

	// ErrDuplicateIdentity indicates a username or email collision reported by the store.
	ErrDuplicateIdentity = newError(KindDuplicateIdentity, "username or email is already taken")

	// ErrInvalidUsername indicates the username shape is invalid.
	ErrInvalidUsername = newError(KindValidation, "username must be 2-20 characters of letters, digits or underscores")

	// ErrInvalidEmail indicates the email does not look like an address.
	ErrInvalidEmail = newError(KindValidation, "invalid email address")

	// ErrInvalidPassword indicates the password is too short.
	ErrInvalidPassword = newError(KindValidation, "password must be at least 6 characters")

	// ErrPasswordTooLong indicates the password exceeds what bcrypt can hash.
	ErrPasswordTooLong = newError(KindValidation, "password must be at most 72 bytes")

	// ErrMissingCredentials indicates the identifier or password was empty.
	ErrMissingCredentials = newError(KindValidation, "please provide both email/username and password")

	// ===========================================
	// Verification Errors
	// ===========================================

	// ErrAlreadyVerified indicates the account was verified before.
	ErrAlreadyVerified = newError(KindValidation, "account is already verified")

	// ErrIncorrectVerifyCode indicates the submitted code does not match.
	ErrIncorrectVerifyCode = newError(KindValidation, "incorrect verification code")

	// ErrVerifyCodeExpired indicates the code is past its expiry.
	ErrVerifyCodeExpired = newError(KindValidation, "verification code has expired, please sign up again")

	// ErrVerificationDelivery indicates the verification code could not be sent.
	ErrVerificationDelivery = newError(KindStore, "failed to send verification email")

	// ===========================================
	// Message Errors
	// ===========================================

	// ErrNotAcceptingMessages indicates the recipient has closed intake.
	ErrNotAcceptingMessages = newError(KindForbidden, "user is not accepting messages")

	// ErrMessageTooShort indicates content below the minimum length.
	ErrMessageTooShort = newError(KindValidation, "message content is required")

	// ErrMessageTooLong indicates content above the maximum length.
	ErrMessageTooLong = newError(KindValidation, "message content is too long")

	// ===========================================
	// Session Errors
	// ===========================================

	// ErrUnauthorized indicates the caller is not an authenticated owner.
	ErrUnauthorized = newError(KindUnauthorized, "unauthorized")

	// ===========================================
	// Infrastructure Errors
	// ===========================================

	// ErrStore indicates the user store failed unexpectedly.
	ErrStore = newError(KindStore, "internal server error")
)

// NewValidationError creates a validation error with a custom message.
func NewValidationError(msg string) error {
	return newError(KindValidation, msg)
}

// AuthReason names why credential authentication failed.
type AuthReason string

const (
	// ReasonNoSuchUser means no user matches the identifier.
	ReasonNoSuchUser AuthReason = "no such user"
	// ReasonNotVerified means the user exists but has not verified their email.
	ReasonNotVerified AuthReason = "not verified"
	// ReasonBadCredentials means the password does not match.
	ReasonBadCredentials AuthReason = "bad credentials"
)

// AuthError is returned by credential authentication.
type AuthError struct {
	Reason AuthReason
}

// NewAuthError creates an AuthError for the given reason.
func NewAuthError(reason AuthReason) *AuthError {
	return &AuthError{Reason: reason}
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return string(e.Reason)
}

// Message returns the user-facing text for the failure.
func (e *AuthError) Message() string {
	switch e.Reason {
	case ReasonNoSuchUser:
		return "no user found with the given email or username"
	case ReasonNotVerified:
		return "email not verified, please verify your email"
	case ReasonBadCredentials:
		return "incorrect password"
	default:
		return "authentication failed"
	}
}

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., username, email).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return KindAuth
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the stable user-facing message for err.
// Wrapped context (ids, driver errors) is never included.
func PublicMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message()
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	return ErrStore.Error()
}
