package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker_TryAcquireRelease(t *testing.T) {
	locker := NewMemoryLocker()
	defer locker.Close()
	ctx := context.Background()
	key := Keys.SignUp("alice@x.com")

	token, ok, err := locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = locker.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	released, err := locker.Release(ctx, key, "someone-else")
	require.NoError(t, err)
	assert.False(t, released, "foreign token must not release")

	released, err = locker.Release(ctx, key, token)
	require.NoError(t, err)
	assert.True(t, released)

	released, _ = locker.Release(ctx, key, token)
	assert.False(t, released)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	locker := NewMemoryLocker()
	defer locker.Close()
	ctx := context.Background()

	now := time.Now()
	locker.now = func() time.Time { return now }

	first, ok, _ := locker.TryAcquire(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)

	second, ok, _ := locker.TryAcquire(ctx, "k", time.Minute)
	require.True(t, ok, "expired lock must be reacquirable")

	released, _ := locker.Release(ctx, "k", first)
	assert.False(t, released, "stale owner must not release the new holder")

	released, _ = locker.Release(ctx, "k", second)
	assert.True(t, released)
}

func TestMemoryLocker_Sweep(t *testing.T) {
	locker := NewMemoryLocker()
	defer locker.Close()

	now := time.Now()
	locker.now = func() time.Time { return now }

	_, ok, _ := locker.TryAcquire(context.Background(), "k", time.Second)
	require.True(t, ok)

	now = now.Add(time.Minute)
	locker.sweep()

	assert.Empty(t, locker.locks)
}

func TestMemoryLocker_CanceledContext(t *testing.T) {
	locker := NewMemoryLocker()
	defer locker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := locker.TryAcquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLock_SerializesCriticalSection(t *testing.T) {
	locker := NewMemoryLocker()
	defer locker.Close()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := New(locker, Keys.SignUp("bob@x.com"))
			if err := l.Acquire(ctx, time.Second, RetryPolicy{Attempts: 200, Delay: 2 * time.Millisecond}); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			defer l.Release(ctx)

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLock_RetriesExhausted(t *testing.T) {
	locker := NewMemoryLocker()
	defer locker.Close()
	ctx := context.Background()

	holder := New(locker, "k")
	require.NoError(t, holder.Acquire(ctx, time.Minute, RetryPolicy{}))
	assert.True(t, holder.Held())

	waiter := New(locker, "k")
	err := waiter.Acquire(ctx, time.Minute, RetryPolicy{Attempts: 2, Delay: time.Millisecond})
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, waiter.Held())

	// Releasing a lock that was never acquired is a no-op.
	assert.NoError(t, waiter.Release(ctx))
	assert.NoError(t, holder.Release(ctx))
	assert.False(t, holder.Held())

	require.NoError(t, waiter.Acquire(ctx, time.Minute, RetryPolicy{}))
	assert.NoError(t, waiter.Release(ctx))
}

func TestLock_ContextCanceledWhileWaiting(t *testing.T) {
	locker := NewMemoryLocker()
	defer locker.Close()

	holder := New(locker, "k")
	require.NoError(t, holder.Acquire(context.Background(), time.Minute, RetryPolicy{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := New(locker, "k").Acquire(ctx, time.Minute, RetryPolicy{Attempts: 1000, Delay: 5 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNoOpLocker(t *testing.T) {
	locker := NewNoOpLocker()
	ctx := context.Background()

	token, ok, err := locker.TryAcquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, _ = locker.TryAcquire(ctx, "k", time.Minute)
	assert.True(t, ok)

	released, err := locker.Release(ctx, "k", token)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TRULY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRULY_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	key := Keys.SignUp(uuid.NewString() + "@x.com")

	a := NewRedisLocker(client)
	b := NewRedisLocker(client)

	token, ok, err := a.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = b.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := b.Release(ctx, key, "foreign")
	require.NoError(t, err)
	assert.False(t, released, "foreign token must not release")

	released, err = a.Release(ctx, key, token)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok, err = b.TryAcquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
