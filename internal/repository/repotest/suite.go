// Package repotest holds the behavioral test suite every UserRepository
// backend must pass.
package repotest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/truly/internal/domain"
	"github.com/prn-tf/truly/internal/repository"
)

// Factory returns an empty repository for one subtest.
type Factory func(t *testing.T) repository.UserRepository

// NewTestUser builds an unverified user with unique identity fields.
func NewTestUser(username string) *domain.User {
	suffix := uuid.NewString()[:8]
	return domain.NewUser(
		username+"_"+suffix,
		fmt.Sprintf("%s.%s@example.com", username, suffix),
		"$2a$10$hash",
		"123456",
		time.Now().Add(time.Hour),
	)
}

// RunUserRepository runs the contract suite against the repository built by newRepo.
func RunUserRepository(t *testing.T, newRepo Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newRepo(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newRepo(t)) })
	t.Run("GetByIdentifier", func(t *testing.T) { testGetByIdentifier(t, newRepo(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newRepo(t)) })
	t.Run("MarkVerified", func(t *testing.T) { testMarkVerified(t, newRepo(t)) })
	t.Run("ResetVerification", func(t *testing.T) { testResetVerification(t, newRepo(t)) })
	t.Run("SetAcceptingMessages", func(t *testing.T) { testSetAcceptingMessages(t, newRepo(t)) })
	t.Run("AppendAndList", func(t *testing.T) { testAppendAndList(t, newRepo(t)) })
	t.Run("AppendGate", func(t *testing.T) { testAppendGate(t, newRepo(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newRepo(t)) })
}

func testCreateAndGet(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("alice")

	require.NoError(t, repo.Create(ctx, user))
	require.NotEmpty(t, user.ID)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Username, got.Username)
	assert.Equal(t, user.Email, got.Email)
	assert.Equal(t, user.PasswordHash, got.PasswordHash)
	assert.Equal(t, "123456", got.VerifyCode)
	assert.WithinDuration(t, user.VerifyCodeExpiry, got.VerifyCodeExpiry, time.Millisecond)
	assert.False(t, got.IsVerified)
	assert.True(t, got.IsAcceptingMessages)

	byName, err := repo.GetByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	exists, err := repo.ExistsByUsername(ctx, user.Username)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testCreateDuplicate(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	first := NewTestUser("bob")
	require.NoError(t, repo.Create(ctx, first))

	sameName := NewTestUser("other")
	sameName.Username = first.Username
	err := repo.Create(ctx, sameName)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindDuplicateIdentity), "got %v", err)

	sameEmail := NewTestUser("other")
	sameEmail.Email = first.Email
	err = repo.Create(ctx, sameEmail)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindDuplicateIdentity), "got %v", err)
}

func testGetByIdentifier(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("carol")
	require.NoError(t, repo.Create(ctx, user))

	byName, err := repo.GetByIdentifier(ctx, user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.GetByIdentifier(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	upper, err := repo.GetByIdentifier(ctx, "  "+strings.ToUpper(user.Email)+" ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, upper.ID, "email lookup must be case-insensitive")
}

func testNotFound(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	missing := uuid.NewString()

	_, err := repo.GetByIdentifier(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = repo.GetByID(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	assert.ErrorIs(t, repo.MarkVerified(ctx, missing), domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.SetAcceptingMessages(ctx, missing, false), domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.AppendMessage(ctx, missing, &domain.Message{Content: "hi"}), domain.ErrUserNotFound)
	_, err = repo.ListMessages(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	exists, err := repo.ExistsByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, exists)
}

func testMarkVerified(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("dave")
	require.NoError(t, repo.Create(ctx, user))

	require.NoError(t, repo.MarkVerified(ctx, user.ID))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
}

func testResetVerification(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("erin")
	require.NoError(t, repo.Create(ctx, user))

	taken := NewTestUser("frank")
	require.NoError(t, repo.Create(ctx, taken))

	expiry := time.Now().Add(2 * time.Hour).UTC()
	reset := repository.VerificationReset{
		Username:         user.Username + "x",
		PasswordHash:     "$2a$10$other",
		VerifyCode:       "654321",
		VerifyCodeExpiry: expiry,
	}
	require.NoError(t, repo.ResetVerification(ctx, user.ID, reset))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, reset.Username, got.Username)
	assert.Equal(t, "$2a$10$other", got.PasswordHash)
	assert.Equal(t, "654321", got.VerifyCode)
	assert.WithinDuration(t, expiry, got.VerifyCodeExpiry, time.Millisecond)

	reset.Username = taken.Username
	err = repo.ResetVerification(ctx, user.ID, reset)
	assert.True(t, domain.IsKind(err, domain.KindDuplicateIdentity), "got %v", err)

	require.NoError(t, repo.MarkVerified(ctx, user.ID))
	reset.Username = user.Username
	assert.ErrorIs(t, repo.ResetVerification(ctx, user.ID, reset), domain.ErrUserNotFound,
		"verified users cannot be reset")
}

func testSetAcceptingMessages(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("gina")
	require.NoError(t, repo.Create(ctx, user))

	require.NoError(t, repo.SetAcceptingMessages(ctx, user.ID, false))
	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAcceptingMessages)

	require.NoError(t, repo.SetAcceptingMessages(ctx, user.ID, true))
	require.NoError(t, repo.SetAcceptingMessages(ctx, user.ID, true))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAcceptingMessages)
}

func testAppendAndList(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("hank")
	require.NoError(t, repo.Create(ctx, user))

	empty, err := repo.ListMessages(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	contents := []string{"first", "second", "third"}
	calledAt := make([]time.Time, len(contents))
	appended := make([]domain.Message, len(contents))
	for i, content := range contents {
		calledAt[i] = time.Now()
		msg := domain.NewMessage(content, calledAt[i])
		require.NoError(t, repo.AppendMessage(ctx, user.ID, &msg))
		assert.NotEmpty(t, msg.ID)
		appended[i] = msg
	}

	messages, err := repo.ListMessages(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, messages, len(contents))
	for i, m := range messages {
		assert.Equal(t, contents[i], m.Content, "messages must keep arrival order")
		assert.False(t, m.CreatedAt.Before(calledAt[i]), "created_at must not predate the call")
		assert.True(t, m.CreatedAt.Equal(appended[i].CreatedAt), "listed created_at must match the appended one")
	}
}

func testAppendGate(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("ivy")
	require.NoError(t, repo.Create(ctx, user))

	msg := domain.NewMessage("kept", time.Now())
	require.NoError(t, repo.AppendMessage(ctx, user.ID, &msg))

	require.NoError(t, repo.SetAcceptingMessages(ctx, user.ID, false))

	blocked := domain.NewMessage("blocked", time.Now())
	err := repo.AppendMessage(ctx, user.ID, &blocked)
	assert.ErrorIs(t, err, domain.ErrNotAcceptingMessages)

	messages, err := repo.ListMessages(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1, "closed intake must leave existing messages untouched")
	assert.Equal(t, "kept", messages[0].Content)
}

func testConcurrentAppend(t *testing.T, repo repository.UserRepository) {
	ctx := context.Background()
	user := NewTestUser("jack")
	require.NoError(t, repo.Create(ctx, user))

	const senders = 10
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := domain.NewMessage(fmt.Sprintf("msg-%d", i), time.Now())
			errs <- repo.AppendMessage(ctx, user.ID, &msg)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	messages, err := repo.ListMessages(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, messages, senders, "no append may be lost")
}
