// Package memory keeps cache entries in process memory for single-node
// deployments without Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prn-tf/truly/internal/repository"
)

const defaultSweepInterval = time.Minute

// Cache implements repository.Cache with a mutex-guarded map. Entries are
// private to the process, so sessions issued here are unknown to other
// instances.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
	closed  bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewCache creates a Cache that evicts expired entries in the background
// until Close is called.
func NewCache() *Cache {
	return newCache(defaultSweepInterval)
}

func newCache(sweepInterval time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go c.sweepLoop(sweepInterval)
	return c
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}

// Close stops the sweeper and makes Ping fail. It satisfies io.Closer.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stopCh)
	})
	return nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, repository.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return repository.ErrCacheUnavailable
	}
	return ctx.Err()
}

var _ repository.Cache = (*Cache)(nil)
