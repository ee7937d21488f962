package postgres

import (
	"context"
	"embed"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/prn-tf/truly/internal/repository/schema"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Schema returns the migrator for the embedded migrations. The returned
// closer releases the database/sql view of the pool that goose runs on.
func (db *DB) Schema() (*schema.Migrator, func() error, error) {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, err
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	m, err := schema.New(schema.DialectPostgres, sqlDB, migrations, db.logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return m, sqlDB.Close, nil
}

// Migrate applies all pending migrations.
func (db *DB) Migrate(ctx context.Context) error {
	m, closeFn, err := db.Schema()
	if err != nil {
		return err
	}
	defer closeFn()
	return m.Up(ctx)
}
