package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/prn-tf/truly/internal/domain"
)

// Error handling utilities for SQLite.

// isUniqueViolation checks if an error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// SQLite unique constraint error message
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed: UNIQUE")
}

// duplicateError maps a unique violation to the colliding identity field.
func duplicateError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "users.username"):
		return domain.ErrUsernameTaken
	case strings.Contains(errStr, "users.email"):
		return domain.ErrEmailTaken
	default:
		return domain.ErrDuplicateIdentity
	}
}

// isNoRows checks if an error indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Timestamps are stored as RFC3339 with nanoseconds so message order and
// created_at comparisons survive a round trip.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
