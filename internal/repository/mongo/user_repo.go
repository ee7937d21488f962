package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/repository"
)

// userDocument is the stored shape of a user.
type userDocument struct {
	ID                  bson.ObjectID     `bson:"_id,omitempty"`
	Username            string            `bson:"username"`
	Email               string            `bson:"email"`
	PasswordHash        string            `bson:"passwordHash"`
	VerifyCode          string            `bson:"verifyCode"`
	VerifyCodeExpiry    time.Time         `bson:"verifyCodeExpiry"`
	IsVerified          bool              `bson:"isVerified"`
	IsAcceptingMessages bool              `bson:"isAcceptingMessages"`
	Messages            []messageDocument `bson:"messages"`
	CreatedAt           time.Time         `bson:"createdAt"`
	UpdatedAt           time.Time         `bson:"updatedAt"`
}

// messageDocument is the stored shape of an embedded message.
type messageDocument struct {
	ID        bson.ObjectID `bson:"_id"`
	Content   string        `bson:"content"`
	CreatedAt time.Time     `bson:"createdAt"`
}

// newMessageDocument stamps a new embedded message. BSON dates hold
// milliseconds, so the stamp is rounded up to the next one.
func newMessageDocument(message *domain.Message) messageDocument {
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return messageDocument{
		ID:        bson.NewObjectID(),
		Content:   message.Content,
		CreatedAt: repository.CeilTime(createdAt.UTC(), repository.MongoTimePrecision),
	}
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:                  d.ID.Hex(),
		Username:            d.Username,
		Email:               d.Email,
		PasswordHash:        d.PasswordHash,
		VerifyCode:          d.VerifyCode,
		VerifyCodeExpiry:    d.VerifyCodeExpiry.UTC(),
		IsVerified:          d.IsVerified,
		IsAcceptingMessages: d.IsAcceptingMessages,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
}

// withoutMessages keeps the embedded array out of identity lookups.
var withoutMessages = bson.D{{Key: "messages", Value: 0}}

// userRepository implements repository.UserRepository for MongoDB.
type userRepository struct {
	users *mongo.Collection
}

// NewUserRepository creates a new MongoDB user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{users: db.Users()}
}

// duplicateError maps a duplicate key error to the colliding identity field.
func duplicateError(err error) error {
	switch {
	case strings.Contains(err.Error(), usernameIndex):
		return domain.ErrUsernameTaken
	case strings.Contains(err.Error(), emailIndex):
		return domain.ErrEmailTaken
	default:
		return domain.ErrDuplicateIdentity
	}
}

// objectID parses a hex id; malformed ids cannot match any user.
func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, domain.ErrUserNotFound
	}
	return oid, nil
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	doc := userDocument{
		ID:                  bson.NewObjectID(),
		Username:            user.Username,
		Email:               user.Email,
		PasswordHash:        user.PasswordHash,
		VerifyCode:          user.VerifyCode,
		VerifyCodeExpiry:    user.VerifyCodeExpiry.UTC(),
		IsVerified:          user.IsVerified,
		IsAcceptingMessages: user.IsAcceptingMessages,
		Messages:            []messageDocument{},
		CreatedAt:           user.CreatedAt.UTC(),
		UpdatedAt:           user.UpdatedAt.UTC(),
	}

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", duplicateError(err), user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID = doc.ID.Hex()
	return nil
}

func (r *userRepository) findOne(ctx context.Context, filter bson.D) (*domain.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, filter, options.FindOne().SetProjection(withoutMessages)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.toDomain(), nil
}

// GetByIdentifier retrieves a user by username or email.
func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: domain.NormalizeUsername(identifier)}},
		bson.D{{Key: "email", Value: domain.NormalizeEmail(identifier)}},
	}}})
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

// GetByUsername retrieves a user by username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

// GetByEmail retrieves a user by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: domain.NormalizeEmail(email)}})
}

// ExistsByUsername checks if a user with the given username exists.
func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *userRepository) exists(ctx context.Context, filter bson.D) (bool, error) {
	n, err := r.users.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return n > 0, nil
}

func (r *userRepository) updateOne(ctx context.Context, filter bson.D, set bson.D) error {
	set = append(set, bson.E{Key: "updatedAt", Value: time.Now().UTC()})

	result, err := r.users.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateError(err)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// MarkVerified sets isVerified on the user.
func (r *userRepository) MarkVerified(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	return r.updateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "isVerified", Value: true}},
	)
}

// ResetVerification replaces the pending credentials of an unverified user.
func (r *userRepository) ResetVerification(ctx context.Context, id string, reset repository.VerificationReset) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	err = r.updateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "isVerified", Value: false}},
		bson.D{
			{Key: "username", Value: reset.Username},
			{Key: "passwordHash", Value: reset.PasswordHash},
			{Key: "verifyCode", Value: reset.VerifyCode},
			{Key: "verifyCodeExpiry", Value: reset.VerifyCodeExpiry.UTC()},
		},
	)
	if err != nil && domain.IsKind(err, domain.KindDuplicateIdentity) {
		return fmt.Errorf("%w: %s", err, reset.Username)
	}
	return err
}

// SetAcceptingMessages persists the message acceptance flag.
func (r *userRepository) SetAcceptingMessages(ctx context.Context, id string, accepting bool) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	return r.updateOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "isAcceptingMessages", Value: accepting}},
	)
}

// AppendMessage pushes the message in a single document update whose filter
// requires the owner to accept messages.
func (r *userRepository) AppendMessage(ctx context.Context, userID string, message *domain.Message) error {
	oid, err := objectID(userID)
	if err != nil {
		return err
	}

	doc := newMessageDocument(message)

	result, err := r.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "isAcceptingMessages", Value: true}},
		bson.D{{Key: "$push", Value: bson.D{{Key: "messages", Value: doc}}}},
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if result.MatchedCount == 0 {
		found, err := r.exists(ctx, bson.D{{Key: "_id", Value: oid}})
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrUserNotFound
		}
		return domain.ErrNotAcceptingMessages
	}

	message.ID = doc.ID.Hex()
	message.CreatedAt = doc.CreatedAt
	return nil
}

// ListMessages returns the user's messages in arrival order.
func (r *userRepository) ListMessages(ctx context.Context, userID string) ([]domain.Message, error) {
	oid, err := objectID(userID)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Messages []messageDocument `bson:"messages"`
	}
	err = r.users.FindOne(ctx,
		bson.D{{Key: "_id", Value: oid}},
		options.FindOne().SetProjection(bson.D{{Key: "messages", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]domain.Message, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		messages = append(messages, domain.Message{
			ID:        m.ID.Hex(),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return messages, nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)
