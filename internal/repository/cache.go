package repository

import (
	"context"
	"time"
)

// Cache is a small expiring key/value store. Truly keeps live sessions in it,
// in process memory on a single node and in Redis when instances share them.
type Cache interface {
	// Get returns ErrCacheMiss for absent or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports ErrCacheUnavailable when the backend cannot serve requests.
	Ping(ctx context.Context) error
}

// Keys builds cache keys.
var Keys = cacheKeys{}

type cacheKeys struct{}

// Session returns the key registering a live session by token ID.
func (cacheKeys) Session(tokenID string) string {
	return "session:" + tokenID
}
