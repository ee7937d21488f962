package repository

import "errors"

var (
	// ErrCacheMiss indicates the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable wraps backend failures of a Cache.
	ErrCacheUnavailable = errors.New("cache unavailable")
)
