package schema

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var testMigrations = fstest.MapFS{
	"00001_create_notes.sql": {Data: []byte(`-- +goose Up
CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);

-- +goose Down
DROP TABLE notes;
`)},
	"00002_add_author.sql": {Data: []byte(`-- +goose Up
ALTER TABLE notes ADD COLUMN author TEXT NOT NULL DEFAULT '';

-- +goose Down
ALTER TABLE notes DROP COLUMN author;
`)},
}

func newTestMigrator(t *testing.T) (*Migrator, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	m, err := New(DialectSQLite, db, testMigrations, zerolog.Nop())
	require.NoError(t, err)
	return m, db
}

func TestMigrator_UpDownStatus(t *testing.T) {
	ctx := context.Background()
	m, db := newTestMigrator(t)

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	assert.ErrorIs(t, m.Down(ctx), ErrNothingToRollBack)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "up must be idempotent")

	version, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	_, err = db.ExecContext(ctx, `INSERT INTO notes (body, author) VALUES ('hi', 'alice')`)
	require.NoError(t, err)

	states, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "00001_create_notes.sql", states[0].Name)
	assert.True(t, states[0].Applied)
	assert.True(t, states[1].Applied)

	require.NoError(t, m.Down(ctx))
	version, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	states, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, states[1].Applied)
}
