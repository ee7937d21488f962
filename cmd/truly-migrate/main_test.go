package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_SQLiteUpStatusDown(t *testing.T) {
	t.Setenv("TRULY_DATABASE_DRIVER", "sqlite")
	t.Setenv("TRULY_DATABASE_PATH", filepath.Join(t.TempDir(), "truly.db"))
	t.Setenv("TRULY_LOGGING_OUTPUT", "stderr")

	var stdout, stderr bytes.Buffer

	assert.Equal(t, 0, run([]string{"status"}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "schema version: 0")
	assert.Regexp(t, `1\s+00001_create_users.sql\s+pending`, stdout.String())

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"up"}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "schema version: 2")

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"status"}, &stdout, &stderr), stderr.String())
	assert.Regexp(t, `2\s+00002_create_messages.sql\s+applied`, stdout.String())

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"down"}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "schema version: 1")
}

func TestRun_UsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run(nil, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"sideways"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: sideways")

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Truly Migration Tool")
}
