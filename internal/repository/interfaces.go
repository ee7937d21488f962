// Package repository defines data access interfaces for Truly.
// These interfaces abstract database operations, allowing for different implementations
// (SQLite, PostgreSQL, MongoDB, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/truly/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
// Messages are embedded in their owner and are only reachable through the user.
// The Get methods leave User.Messages empty; ListMessages reads them.
//
// Implementations return domain.ErrUserNotFound for unknown users and an error
// classified as domain.KindDuplicateIdentity for uniqueness violations.
type UserRepository interface {
	// Create persists a new user and assigns its ID.
	Create(ctx context.Context, user *domain.User) error

	// GetByIdentifier retrieves a user whose username or email matches identifier.
	// The email comparison is case-insensitive.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// MarkVerified sets is_verified on the user.
	MarkVerified(ctx context.Context, id string) error

	// ResetVerification replaces the pending credentials of an unverified user.
	// Returns domain.ErrUserNotFound if the user is absent or already verified.
	ResetVerification(ctx context.Context, id string, reset VerificationReset) error

	// SetAcceptingMessages persists the message acceptance flag.
	SetAcceptingMessages(ctx context.Context, id string, accepting bool) error

	// AppendMessage appends a message only while the user accepts messages.
	// The flag is checked in the same write, so a concurrent flip is honored.
	// Returns domain.ErrNotAcceptingMessages if the gate is closed.
	AppendMessage(ctx context.Context, userID string, message *domain.Message) error

	// ListMessages returns the user's messages in arrival order.
	ListMessages(ctx context.Context, userID string) ([]domain.Message, error)
}

// VerificationReset carries the fields replaced when an unverified email signs up again.
type VerificationReset struct {
	Username         string
	PasswordHash     string
	VerifyCode       string
	VerifyCodeExpiry time.Time
}

// =============================================================================
// Database Health
// =============================================================================

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.DatabaseChecker for health endpoints.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}
