package promotion

import (
	"sync"
	"time"
)

// Snapshot is a set of active promotions and the time it was fetched.
type Snapshot struct {
	Promotions []Promotion `json:"promotions"`
	FetchedAt  time.Time   `json:"fetched_at"`
}

// IsStale reports whether the snapshot is older than ttl at now. A zero
// snapshot is always stale.
func (s Snapshot) IsStale(now time.Time, ttl time.Duration) bool {
	if s.FetchedAt.IsZero() || ttl <= 0 {
		return true
	}
	return now.Sub(s.FetchedAt) >= ttl
}

// Cache holds the last snapshot of active promotions for this process.
//
// Every Invalidate bumps a generation; Store only accepts a snapshot fetched
// under the current generation so a fetch racing an invalidation cannot put
// old data back.
type Cache struct {
	mu   sync.RWMutex
	snap Snapshot
	gen  uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Fresh returns the cached snapshot when it is not stale at now.
func (c *Cache) Fresh(now time.Time, ttl time.Duration) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap.IsStale(now, ttl) {
		return Snapshot{}, false
	}
	return c.snap, true
}

// Generation returns the current invalidation generation.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Store saves snap if no invalidation happened since gen was read.
func (c *Cache) Store(snap Snapshot, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.snap = snap
	return true
}

// Invalidate drops the snapshot so the next read refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = Snapshot{}
	c.gen++
}
