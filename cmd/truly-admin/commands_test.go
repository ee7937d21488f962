package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/repository/sqlite"
)

// seedStore creates a migrated SQLite store with one unverified user and
// points the CLI configuration at it. No session secret is configured: the
// admin commands never issue sessions.
func seedStore(t *testing.T, messages ...string) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "truly.db")

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(path), zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	repo := sqlite.NewUserRepository(db)
	user := domain.NewUser("carol", "carol@x.com", "hash", "123456", time.Now().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, user))
	for _, content := range append([]string{"hello carol"}, messages...) {
		msg := domain.NewMessage(content, time.Now())
		require.NoError(t, repo.AppendMessage(ctx, user.ID, &msg))
	}

	t.Setenv("TRULY_DATABASE_DRIVER", "sqlite")
	t.Setenv("TRULY_DATABASE_PATH", path)
	t.Setenv("TRULY_LOGGING_OUTPUT", "stderr")
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUserCommands(t *testing.T) {
	seedStore(t)

	out, err := execute(t, "user", "show", "carol@x.com")
	require.NoError(t, err)
	assert.Contains(t, out, "carol")
	assert.Contains(t, out, "hello carol")
	assert.Regexp(t, `Verified:\s+false`, out)

	out, err = execute(t, "user", "verify", "carol")
	require.NoError(t, err)
	assert.Contains(t, out, "verified")

	_, err = execute(t, "user", "verify", "carol")
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)

	out, err = execute(t, "user", "accept", "carol", "false")
	require.NoError(t, err)
	assert.Contains(t, out, "accepting messages: false")

	out, err = execute(t, "user", "show", "carol")
	require.NoError(t, err)
	assert.Regexp(t, `Verified:\s+true`, out)
	assert.Regexp(t, `Accepting messages:\s+false`, out)
}

func TestUserShow_EscapesMessageContent(t *testing.T) {
	seedStore(t, "\x1b[2J\x1b[31mgotcha\x1b[0m\r\n")

	out, err := execute(t, "user", "show", "carol")
	require.NoError(t, err)
	assert.NotContains(t, out, "\x1b")
	assert.NotContains(t, out, "\r")
	assert.Contains(t, out, `"\x1b[2J\x1b[31mgotcha\x1b[0m\r\n"`)
}

func TestUserCommands_InvalidDatabaseConfig(t *testing.T) {
	seedStore(t)
	t.Setenv("TRULY_DATABASE_DRIVER", "cassandra")

	_, err := execute(t, "user", "show", "carol")
	assert.ErrorContains(t, err, "database.driver")
}

func TestUserCommands_Errors(t *testing.T) {
	seedStore(t)

	_, err := execute(t, "user", "show", "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = execute(t, "user", "accept", "carol", "maybe")
	assert.Error(t, err)

	_, err = execute(t, "user", "verify")
	assert.Error(t, err)
}

func TestSecretAndVersion(t *testing.T) {
	out, err := execute(t, "secret")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 64)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}
