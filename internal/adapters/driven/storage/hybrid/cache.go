package hybrid

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

// cacheEntry is one cached result set.
type cacheEntry struct {
	results []domain.SearchResult
	expires time.Time
}

// queryCache is a TTL cache over fused search results. Every write to the
// engine invalidates the whole cache; vault writes are rare compared to
// queries, so coarse invalidation keeps correctness simple.
type queryCache struct {
	enabled bool
	ttl     time.Duration
	max     int
	entries map[uint64]cacheEntry
}

// newQueryCache builds a cache from configuration. A disabled cache is
// still a valid object; get always misses and put is a no-op.
func newQueryCache(cfg domain.CacheConfig) *queryCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &queryCache{
		enabled: cfg.Enabled,
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[uint64]cacheEntry),
	}
}

// get returns the cached results for key, if present and fresh.
// Caller must hold the engine's cache lock.
func (c *queryCache) get(key uint64, now time.Time) ([]domain.SearchResult, bool) {
	if !c.enabled {
		return nil, false
	}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	// Copy the slice so callers cannot mutate the cached ranking.
	out := make([]domain.SearchResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

// put stores results under key. Caller must hold the engine's cache lock.
func (c *queryCache) put(key uint64, results []domain.SearchResult, now time.Time) {
	if !c.enabled {
		return
	}
	if len(c.entries) >= c.max {
		// Drop expired entries first; if the cache is still full the
		// new entry is simply not cached.
		for k, e := range c.entries {
			if now.After(e.expires) {
				delete(c.entries, k)
			}
		}
		if len(c.entries) >= c.max {
			return
		}
	}
	stored := make([]domain.SearchResult, len(results))
	copy(stored, results)
	c.entries[key] = cacheEntry{results: stored, expires: now.Add(c.ttl)}
}

// invalidate drops every entry. Caller must hold the engine's cache lock.
func (c *queryCache) invalidate() {
	if !c.enabled || len(c.entries) == 0 {
		return
	}
	c.entries = make(map[uint64]cacheEntry)
}

// cacheKey hashes the parts of a query that determine its result set.
func cacheKey(q domain.HybridQuery) uint64 {
	h := fnv.New64a()
	h.Write([]byte(q.Text)) //nolint:errcheck
	var b [4]byte
	for _, v := range q.Vector {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		h.Write(b[:]) //nolint:errcheck
	}
	binary.LittleEndian.PutUint32(b[:], uint32(q.Limit))
	h.Write(b[:]) //nolint:errcheck
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(q.Threshold))
	h.Write(b[:]) //nolint:errcheck
	return h.Sum64()
}
