package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker keeps locks in process memory. Locks are not shared with other
// instances, so it only serializes sign-ups on a single-node deployment.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLease
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates a MemoryLocker that sweeps expired locks every
// thirty seconds until Close is called.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{
		locks:  make(map[string]memoryLease),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go m.sweepLoop(30 * time.Second)
	return m
}

func (m *MemoryLocker) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryLocker) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, lease := range m.locks {
		if !now.Before(lease.expiresAt) {
			delete(m.locks, key)
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (m *MemoryLocker) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *MemoryLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if lease, ok := m.locks[key]; ok && now.Before(lease.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	m.locks[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryLocker) Release(ctx context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lease, ok := m.locks[key]
	if !ok || lease.token != token {
		return false, nil
	}
	delete(m.locks, key)
	return m.now().Before(lease.expiresAt), nil
}

var _ Locker = (*MemoryLocker)(nil)
