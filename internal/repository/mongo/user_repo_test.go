package mongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/prn-tf/truly/internal/config"
	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/repository"
	"github.com/prn-tf/truly/internal/repository/repotest"
)

// newTestDB connects to TRULY_TEST_MONGO_URI using a throwaway database.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	uri := os.Getenv("TRULY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TRULY_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	name := "truly_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	db, err := NewDB(ctx, config.MongoConfig{URI: uri, Database: name}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Close()
	})

	require.NoError(t, db.EnsureIndexes(ctx))
	return db
}

func TestUserRepository_Contract(t *testing.T) {
	repotest.RunUserRepository(t, func(t *testing.T) repository.UserRepository {
		return NewUserRepository(newTestDB(t))
	})
}

func TestObjectID_Malformed(t *testing.T) {
	_, err := objectID("not-an-object-id")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestNewMessageDocument_StoredTimeNotBeforeCall(t *testing.T) {
	calledAt := time.Date(2026, 1, 1, 0, 0, 0, 500100, time.UTC)
	msg := domain.NewMessage("hi", calledAt.Add(300*time.Nanosecond))

	doc := newMessageDocument(&msg)
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var stored messageDocument
	require.NoError(t, bson.Unmarshal(raw, &stored))

	assert.False(t, stored.CreatedAt.Before(calledAt))
	assert.True(t, stored.CreatedAt.Equal(doc.CreatedAt), "stamp must survive the round trip unchanged")
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, int(time.Millisecond), time.UTC), stored.CreatedAt.UTC())
}
