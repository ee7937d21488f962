// Package schema applies the embedded goose migrations of the SQL stores.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// ErrNothingToRollBack is returned by Down on an unmigrated database.
var ErrNothingToRollBack = errors.New("no migrations to roll back")

// Dialects of the SQL stores.
const (
	DialectSQLite   = goose.DialectSQLite3
	DialectPostgres = goose.DialectPostgres
)

// State describes one migration and whether it is applied.
type State struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator runs migrations found at the root of an fs.FS against one database.
type Migrator struct {
	provider *goose.Provider
	logger   zerolog.Logger
}

// New builds a Migrator. migrations must hold goose-annotated .sql files at its root.
func New(dialect goose.Dialect, db *sql.DB, migrations fs.FS, logger zerolog.Logger) (*Migrator, error) {
	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return &Migrator{
		provider: provider,
		logger:   logger.With().Str("component", "schema").Logger(),
	}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		m.logResult(r)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Down reverts the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		return ErrNothingToRollBack
	}

	result, err := m.provider.Down(ctx)
	if result != nil {
		m.logResult(result)
	}
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

// Version returns the highest applied migration, 0 on a fresh database.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Status lists every known migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]State, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	states := make([]State, 0, len(statuses))
	for _, s := range statuses {
		states = append(states, State{
			Version:   s.Source.Version,
			Name:      path.Base(s.Source.Path),
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return states, nil
}

func (m *Migrator) logResult(r *goose.MigrationResult) {
	event := m.logger.Info()
	if r.Error != nil {
		event = m.logger.Error().Err(r.Error)
	}
	event.
		Int64("version", r.Source.Version).
		Str("direction", r.Direction).
		Dur("duration", r.Duration).
		Msg("migration finished")
}
