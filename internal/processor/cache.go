package processor

import (
	"sync"

	"github.com/marcandre22/ready-mix-coach/internal/aggregator"
)

// CacheKey pins a snapshot to one dataset version, one filter and one
// minute of wall clock. A reload bumps Version, so stale entries never match.
type CacheKey struct {
	Version uint64
	Filter  string
	Minute  int64
}

// SnapshotCache memoizes snapshots. When full, entries from older dataset
// versions go first, then everything.
type SnapshotCache struct {
	mu      sync.Mutex
	max     int
	entries map[CacheKey]*aggregator.Snapshot
	hits    int
	misses  int
}

func NewSnapshotCache(max int) *SnapshotCache {
	if max <= 0 {
		max = 64
	}
	return &SnapshotCache{max: max, entries: map[CacheKey]*aggregator.Snapshot{}}
}

// GetOrCompute returns the cached snapshot for key or stores compute().
// compute runs outside the lock.
func (c *SnapshotCache) GetOrCompute(key CacheKey, compute func() *aggregator.Snapshot) *aggregator.Snapshot {
	c.mu.Lock()
	if s, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return s
	}
	c.misses++
	c.mu.Unlock()

	s := compute()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.evict(key.Version)
	}
	c.entries[key] = s
	return s
}

func (c *SnapshotCache) evict(current uint64) {
	for k := range c.entries {
		if k.Version < current {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.max {
		clear(c.entries)
	}
}

// CacheStats is a point-in-time view of a SnapshotCache.
type CacheStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

func (c *SnapshotCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
