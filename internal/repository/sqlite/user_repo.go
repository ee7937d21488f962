package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/repository"
)

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, email, password_hash, verify_code, verify_code_expiry,
	is_verified, is_accepting_messages, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var isVerified, isAccepting int
	var verifyCodeExpiry, createdAt, updatedAt string

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.VerifyCode,
		&verifyCodeExpiry,
		&isVerified,
		&isAccepting,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.IsVerified = isVerified != 0
	user.IsAcceptingMessages = isAccepting != 0
	user.VerifyCodeExpiry = parseTime(verifyCodeExpiry)
	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updatedAt)

	return user, nil
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.VerifyCode,
		formatTime(user.VerifyCodeExpiry),
		boolToInt(user.IsVerified),
		boolToInt(user.IsAcceptingMessages),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", duplicateError(err), user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) getOne(ctx context.Context, where string, args ...any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByIdentifier retrieves a user by username or email.
func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.getOne(ctx, `username = ? OR email = ?`,
		domain.NormalizeUsername(identifier), domain.NormalizeEmail(identifier))
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByUsername retrieves a user by username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `username = ?`, username)
}

// GetByEmail retrieves a user by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `email = ?`, domain.NormalizeEmail(email))
}

// ExistsByUsername checks if a user with the given username exists.
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username)
}

func (r *userRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var exists int
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists != 0, nil
}

// MarkVerified sets is_verified on the user.
func (r *userRepository) MarkVerified(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_verified = 1, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	return requireAffected(result)
}

// ResetVerification replaces the pending credentials of an unverified user.
func (r *userRepository) ResetVerification(ctx context.Context, id string, reset repository.VerificationReset) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, password_hash = ?, verify_code = ?, verify_code_expiry = ?, updated_at = ?
		WHERE id = ? AND is_verified = 0
	`,
		reset.Username,
		reset.PasswordHash,
		reset.VerifyCode,
		formatTime(reset.VerifyCodeExpiry),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", duplicateError(err), reset.Username)
		}
		return fmt.Errorf("failed to reset verification: %w", err)
	}
	return requireAffected(result)
}

// SetAcceptingMessages persists the message acceptance flag.
func (r *userRepository) SetAcceptingMessages(ctx context.Context, id string, accepting bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_accepting_messages = ?, updated_at = ? WHERE id = ?`,
		boolToInt(accepting), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update message acceptance: %w", err)
	}
	return requireAffected(result)
}

// AppendMessage inserts the message only if the owner accepts messages at write time.
func (r *userRepository) AppendMessage(ctx context.Context, userID string, message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, user_id, content, created_at)
		SELECT ?, id, ?, ?
		FROM users
		WHERE id = ? AND is_accepting_messages = 1
	`,
		message.ID,
		message.Content,
		formatTime(message.CreatedAt),
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		return nil
	}

	// Nothing inserted: either the user is gone or intake is closed.
	exists, err := r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return domain.ErrNotAcceptingMessages
}

// ListMessages returns the user's messages in arrival order.
func (r *userRepository) ListMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	exists, err := r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, created_at FROM messages WHERE user_id = ? ORDER BY seq ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
