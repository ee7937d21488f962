// Package lock serializes work on a key, either inside one process or across
// every instance sharing a Redis server.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired indicates the lock stayed held elsewhere until retries ran out.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out expiring, token-owned locks.
type Locker interface {
	// TryAcquire takes the lock if it is free. The returned token must be
	// presented to Release; ok is false when someone else holds the key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees the lock if it is still owned by token. It reports
	// false when the lock had expired or was taken over.
	Release(ctx context.Context, key, token string) (bool, error)
}

// RetryPolicy controls how long Lock.Acquire waits for a busy key.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Lock is a single acquisition of a key.
type Lock struct {
	locker Locker
	key    string
	token  string
}

// New returns an unacquired lock on key.
func New(locker Locker, key string) *Lock {
	return &Lock{locker: locker, key: key}
}

// Key returns the locked key.
func (l *Lock) Key() string {
	return l.key
}

// Held reports whether Acquire succeeded and Release has not been called.
func (l *Lock) Held() bool {
	return l.token != ""
}

// Acquire waits for the key according to policy. A zero policy tries once.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration, policy RetryPolicy) error {
	for attempt := 0; ; attempt++ {
		token, ok, err := l.locker.TryAcquire(ctx, l.key, ttl)
		if err != nil {
			return err
		}
		if ok {
			l.token = token
			return nil
		}
		if attempt >= policy.Attempts {
			return ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Delay):
		}
	}
}

// Release gives the key back. Releasing an unheld lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	_, err := l.locker.Release(ctx, l.key, token)
	return err
}

// Keys builds the lock keys used by Truly.
var Keys = lockKeys{}

type lockKeys struct{}

// SignUp returns the key serializing sign-ups for one email address.
func (lockKeys) SignUp(email string) string {
	return "lock:signup:" + email
}
