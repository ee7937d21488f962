// Package sqlite provides the embedded SQLite user store, built on the
// pure-Go modernc.org/sqlite driver so the server stays a single static binary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/prn-tf/truly/internal/config"
	"github.com/prn-tf/truly/internal/repository/schema"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config holds SQLite connection settings.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Pragmas applied to every connection.
	JournalMode     string
	BusyTimeout     int // milliseconds
	CacheSize       int // negative values are KiB
	SynchronousMode string
}

// DefaultConfig returns settings for a single-writer database at dbPath.
func DefaultConfig(dbPath string) Config {
	return Config{
		Path:            dbPath,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		JournalMode:     "WAL",
		BusyTimeout:     5000,
		CacheSize:       -2000,
		SynchronousMode: "NORMAL",
	}
}

// ConfigFrom overlays the configured pragmas on DefaultConfig.
func ConfigFrom(cfg config.DatabaseConfig) Config {
	c := DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		c.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		c.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		c.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		c.SynchronousMode = cfg.SynchronousMode
	}
	return c
}

func (c Config) inMemory() bool {
	return c.Path == MemoryPath
}

// dsn encodes the pragmas as modernc.org/sqlite _pragma parameters.
func (c Config) dsn() string {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout),
		"foreign_keys(1)",
		fmt.Sprintf("cache_size(%d)", c.CacheSize),
		fmt.Sprintf("synchronous(%s)", c.SynchronousMode),
	}
	// In-memory databases have no journal file.
	if !c.inMemory() && c.JournalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("journal_mode(%s)", c.JournalMode))
	}
	return c.Path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// DB is an open SQLite database.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// NewDB opens the database, creating its directory if needed.
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	logger = logger.With().Str("store", "sqlite").Logger()

	if !cfg.inMemory() {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Each connection to ":memory:" is its own database, so the in-memory
	// store keeps exactly one connection for its whole life.
	if cfg.inMemory() {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	logger.Info().
		Str("path", cfg.Path).
		Str("journal_mode", cfg.JournalMode).
		Msg("opened SQLite database")

	return &DB{DB: sqlDB, logger: logger}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	db.logger.Info().Msg("closing SQLite database")
	return db.DB.Close()
}

// Ping checks the connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Health runs a trivial query against the database.
func (db *DB) Health(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}
	return nil
}

// Schema returns the migrator for the embedded migrations.
func (db *DB) Schema() (*schema.Migrator, error) {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return schema.New(schema.DialectSQLite, db.DB, migrations, db.logger)
}

// Migrate applies all pending migrations.
func (db *DB) Migrate(ctx context.Context) error {
	m, err := db.Schema()
	if err != nil {
		return err
	}
	return m.Up(ctx)
}
