// Package mongo provides the MongoDB user store. Each user is one document and
// received messages are embedded in it as an array.
package mongo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/prn-tf/truly/internal/config"
)

const (
	usersCollection = "users"

	usernameIndex = "username_unique"
	emailIndex    = "email_unique"
)

// DB wraps a MongoDB client bound to one database.
type DB struct {
	client   *mongo.Client
	database *mongo.Database
	logger   zerolog.Logger
}

// NewDB connects to MongoDB and verifies the connection.
func NewDB(ctx context.Context, cfg config.MongoConfig, logger zerolog.Logger) (*DB, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.Info().
		Str("database", cfg.Database).
		Msg("connected to MongoDB")

	return &DB{
		client:   client,
		database: client.Database(cfg.Database),
		logger:   logger,
	}, nil
}

// Users returns the users collection.
func (db *DB) Users() *mongo.Collection {
	return db.database.Collection(usersCollection)
}

// EnsureIndexes creates the unique indexes backing username and email uniqueness.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(usernameIndex),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
	}

	names, err := db.Users().Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	db.logger.Info().Strs("indexes", names).Msg("ensured mongo indexes")
	return nil
}

// DropIndexes removes the indexes created by EnsureIndexes.
func (db *DB) DropIndexes(ctx context.Context) error {
	for _, name := range []string{usernameIndex, emailIndex} {
		if err := db.Users().Indexes().DropOne(ctx, name); err != nil {
			return fmt.Errorf("failed to drop index %s: %w", name, err)
		}
	}
	return nil
}

// IndexesPresent reports whether both unique indexes exist.
func (db *DB) IndexesPresent(ctx context.Context) (bool, error) {
	specs, err := db.Users().Indexes().ListSpecifications(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list indexes: %w", err)
	}

	found := 0
	for _, spec := range specs {
		if spec.Name == usernameIndex || spec.Name == emailIndex {
			found++
		}
	}
	return found == 2, nil
}

// Drop removes the whole database. Used by tests.
func (db *DB) Drop(ctx context.Context) error {
	return db.database.Drop(ctx)
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

// Health checks the database connection health.
func (db *DB) Health(ctx context.Context) error {
	if err := db.database.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("mongo health check failed: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (db *DB) Close() error {
	db.logger.Info().Msg("closing MongoDB connection")
	return db.client.Disconnect(context.Background())
}
