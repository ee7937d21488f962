package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/repository"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// userRepository implements repository.UserRepository for PostgreSQL.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id::text, username, email, password_hash, verify_code, verify_code_expiry,
	is_verified, is_accepting_messages, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.VerifyCode,
		&user.VerifyCodeExpiry,
		&user.IsVerified,
		&user.IsAcceptingMessages,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.VerifyCodeExpiry = user.VerifyCodeExpiry.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// duplicateError maps a unique violation to the colliding identity field.
// It returns nil when err is not a unique violation.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "users_username_key":
		return domain.ErrUsernameTaken
	case "users_email_key":
		return domain.ErrEmailTaken
	default:
		return domain.ErrDuplicateIdentity
	}
}

// validID reports whether id can address a row; non-UUID ids never match.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, verify_code, verify_code_expiry,
			is_verified, is_accepting_messages, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.VerifyCode,
		user.VerifyCodeExpiry,
		user.IsVerified,
		user.IsAcceptingMessages,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return fmt.Errorf("%w: %s", dup, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) getOne(ctx context.Context, where string, args ...any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByIdentifier retrieves a user by username or email.
func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.getOne(ctx, `username = $1 OR email = $2`,
		domain.NormalizeUsername(identifier), domain.NormalizeEmail(identifier))
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, domain.ErrUserNotFound
	}
	return r.getOne(ctx, `id = $1::uuid`, id)
}

// GetByUsername retrieves a user by username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `username = $1`, username)
}

// GetByEmail retrieves a user by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `email = $1`, domain.NormalizeEmail(email))
}

// ExistsByUsername checks if a user with the given username exists.
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return exists(ctx, r.db.Pool, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username)
}

func exists(ctx context.Context, q Querier, query string, arg string) (bool, error) {
	var found bool
	if err := q.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return found, nil
}

// MarkVerified sets is_verified on the user.
func (r *userRepository) MarkVerified(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrUserNotFound
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = $1 WHERE id = $2::uuid`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	return requireAffected(tag)
}

// ResetVerification replaces the pending credentials of an unverified user.
func (r *userRepository) ResetVerification(ctx context.Context, id string, reset repository.VerificationReset) error {
	if !validID(id) {
		return domain.ErrUserNotFound
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE users
		SET username = $1, password_hash = $2, verify_code = $3, verify_code_expiry = $4, updated_at = $5
		WHERE id = $6::uuid AND is_verified = FALSE
	`,
		reset.Username,
		reset.PasswordHash,
		reset.VerifyCode,
		reset.VerifyCodeExpiry,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return fmt.Errorf("%w: %s", dup, reset.Username)
		}
		return fmt.Errorf("failed to reset verification: %w", err)
	}
	return requireAffected(tag)
}

// SetAcceptingMessages persists the message acceptance flag.
func (r *userRepository) SetAcceptingMessages(ctx context.Context, id string, accepting bool) error {
	if !validID(id) {
		return domain.ErrUserNotFound
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET is_accepting_messages = $1, updated_at = $2 WHERE id = $3::uuid`,
		accepting, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update message acceptance: %w", err)
	}
	return requireAffected(tag)
}

// AppendMessage inserts the message only if the owner accepts messages at write time.
// The owner row is share-locked so a concurrent flag update waits for the insert.
func (r *userRepository) AppendMessage(ctx context.Context, userID string, message *domain.Message) error {
	if !validID(userID) {
		return domain.ErrUserNotFound
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	// TIMESTAMPTZ holds microseconds.
	message.CreatedAt = repository.CeilTime(message.CreatedAt.UTC(), repository.PostgresTimePrecision)

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO messages (id, user_id, content, created_at)
			SELECT $1::uuid, id, $2, $3
			FROM users
			WHERE id = $4::uuid AND is_accepting_messages = TRUE
			FOR SHARE
		`,
			message.ID,
			message.Content,
			message.CreatedAt,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		found, err := exists(ctx, tx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1::uuid)`, userID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrUserNotFound
		}
		return domain.ErrNotAcceptingMessages
	})
}

// ListMessages returns the user's messages in arrival order.
// A user without messages yields one row with NULL message columns.
func (r *userRepository) ListMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	if !validID(userID) {
		return nil, domain.ErrUserNotFound
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT m.id::text, m.content, m.created_at
		FROM users u
		LEFT JOIN messages m ON m.user_id = u.id
		WHERE u.id = $1::uuid
		ORDER BY m.seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	found := false
	messages := make([]domain.Message, 0)
	for rows.Next() {
		found = true

		var id, content *string
		var createdAt *time.Time
		if err := rows.Scan(&id, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if id == nil {
			continue
		}
		messages = append(messages, domain.Message{
			ID:        *id,
			Content:   *content,
			CreatedAt: createdAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	if !found {
		return nil, domain.ErrUserNotFound
	}

	return messages, nil
}

func requireAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
