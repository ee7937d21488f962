package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/truly/internal/repository"
	"github.com/prn-tf/truly/internal/repository/repotest"
	"github.com/prn-tf/truly/internal/repository/schema"
)

func newTestDB(t *testing.T, path string) *DB {
	t.Helper()

	db, err := NewDB(context.Background(), DefaultConfig(path), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestUserRepository_Contract(t *testing.T) {
	repotest.RunUserRepository(t, func(t *testing.T) repository.UserRepository {
		return NewUserRepository(newTestDB(t, MemoryPath))
	})
}

func TestUserRepository_FileBacked(t *testing.T) {
	repotest.RunUserRepository(t, func(t *testing.T) repository.UserRepository {
		return NewUserRepository(newTestDB(t, filepath.Join(t.TempDir(), "data", "truly.db")))
	})
}

func TestDB_MigrateIsIdempotentAndReversible(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, MemoryPath)

	m, err := db.Schema()
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx))
	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	require.NoError(t, m.Down(ctx))
	require.NoError(t, m.Down(ctx))
	version, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	var tables int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'messages')`,
	).Scan(&tables))
	assert.Equal(t, 0, tables)

	assert.ErrorIs(t, m.Down(ctx), schema.ErrNothingToRollBack)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Health(ctx))
}

func TestConfig_DSN(t *testing.T) {
	dsn := DefaultConfig("/var/lib/truly.db").dsn()
	assert.Contains(t, dsn, "/var/lib/truly.db?")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")

	mem := DefaultConfig(MemoryPath).dsn()
	assert.NotContains(t, mem, "journal_mode")
}
