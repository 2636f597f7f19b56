package market

import (
	"sync"
	"time"

	"github.com/linpap/polymarket/internal/strategy"
)

// snapshotCache is a TTL-based in-memory cache for market snapshots, shared
// between the scan and per-market fetches within a cycle.
type snapshotCache struct {
	mu      sync.RWMutex
	markets map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	snap      strategy.Snapshot
	fetchedAt time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{
		markets: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *snapshotCache) get(id string) (strategy.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.markets[id]
	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		return strategy.Snapshot{}, false
	}
	return entry.snap, true
}

func (c *snapshotCache) put(snap strategy.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.markets[snap.ID] = cacheEntry{
		snap:      snap,
		fetchedAt: time.Now(),
	}
}
