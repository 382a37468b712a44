package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is an in-process Guard for tests and single-process
// development. The mutex makes the insert-if-absent atomic within the
// process; multi-process deployments need the SQLite or Redis guard.
type MemoryGuard struct {
	mu      sync.Mutex
	records map[string]time.Time
	now     func() time.Time
}

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		records: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (g *MemoryGuard) WithClock(now func() time.Time) *MemoryGuard {
	g.now = now
	return g
}

// Claim implements Guard.
func (g *MemoryGuard) Claim(ctx context.Context, keyHash, scope string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := scope + ":" + keyHash
	if expiry, ok := g.records[key]; ok && g.now().Before(expiry) {
		return false, nil
	}
	g.records[key] = g.now().Add(ttl)
	return true, nil
}
