// Package factory opens the user store selected by configuration.
package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/config"
	"github.com/prn-tf/truly/internal/repository"
	"github.com/prn-tf/truly/internal/repository/mongo"
	"github.com/prn-tf/truly/internal/repository/postgres"
	"github.com/prn-tf/truly/internal/repository/schema"
	"github.com/prn-tf/truly/internal/repository/sqlite"
)

// Migrator manages the schema of the opened backend.
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Version(ctx context.Context) (int64, error)
	Status(ctx context.Context) ([]schema.State, error)
}

// Store holds the opened repositories and their database connection.
type Store struct {
	Users    repository.UserRepository
	Database repository.DatabaseHealth
	Migrator Migrator
	Driver   string

	closers []func() error
}

// Close releases the migrator and closes the database connection.
func (s *Store) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	errs = append(errs, s.Database.Close())
	return errors.Join(errs...)
}

// Options controls how the store is opened.
type Options struct {
	// AutoMigrate applies pending migrations right after connecting.
	AutoMigrate bool
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts Options, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "store").Str("driver", cfg.Driver).Logger()

	store, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store.Driver = cfg.Driver

	if opts.AutoMigrate {
		if err := store.Migrator.Up(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate %s store: %w", cfg.Driver, err)
		}
	}
	return store, nil
}

func open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.NewDB(ctx, sqlite.ConfigFrom(cfg), logger)
		if err != nil {
			return nil, err
		}
		migrator, err := db.Schema()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{
			Users:    sqlite.NewUserRepository(db),
			Database: db,
			Migrator: migrator,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		migrator, closeFn, err := db.Schema()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{
			Users:    postgres.NewUserRepository(db),
			Database: db,
			Migrator: migrator,
			closers:  []func() error{closeFn},
		}, nil

	case config.DriverMongo:
		db, err := mongo.NewDB(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Users:    mongo.NewUserRepository(db),
			Database: db,
			Migrator: mongoMigrator{db: db},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// mongoIndexesVersion is the schema version reported once the unique
// indexes exist; MongoDB has no other schema.
const mongoIndexesVersion = 1

type mongoMigrator struct{ db *mongo.DB }

func (m mongoMigrator) Up(ctx context.Context) error   { return m.db.EnsureIndexes(ctx) }
func (m mongoMigrator) Down(ctx context.Context) error { return m.db.DropIndexes(ctx) }

func (m mongoMigrator) Version(ctx context.Context) (int64, error) {
	present, err := m.db.IndexesPresent(ctx)
	if err != nil || !present {
		return 0, err
	}
	return mongoIndexesVersion, nil
}

func (m mongoMigrator) Status(ctx context.Context) ([]schema.State, error) {
	present, err := m.db.IndexesPresent(ctx)
	if err != nil {
		return nil, err
	}
	return []schema.State{{Version: mongoIndexesVersion, Name: "unique username and email indexes", Applied: present}}, nil
}

var (
	_ Migrator = (*schema.Migrator)(nil)
	_ Migrator = mongoMigrator{}
)
