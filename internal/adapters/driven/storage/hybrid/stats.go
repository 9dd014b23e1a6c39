package hybrid

import (
	"sync"
	"time"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

// metrics tracks the engine's runtime counters. Latency averages are
// incremental means, so no per-query history is kept.
type metrics struct {
	mu sync.Mutex

	totalQueries    uint64
	totalIndexed    uint64
	searchLatencyMs float64
	indexLatencyMs  float64
	cacheLookups    uint64
	cacheHits       uint64
}

// recordSearch folds one query's latency into the running average.
func (m *metrics) recordSearch(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	n := float64(m.totalQueries)
	m.searchLatencyMs = m.searchLatencyMs*(n-1)/n + float64(elapsed.Microseconds())/1000/n
}

// recordCacheLookup tracks one consultation of the query cache. Search
// paths that bypass the cache must not call this, or the hit rate would
// be skewed.
func (m *metrics) recordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cacheLookups++
	if hit {
		m.cacheHits++
	}
}

// recordIndex folds one indexing operation into the running average.
// countDocument marks operations that index a whole document.
func (m *metrics) recordIndex(elapsed time.Duration, countDocument bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if countDocument {
		m.totalIndexed++
	}
	n := float64(m.totalIndexed)
	if n == 0 {
		n = 1
	}
	m.indexLatencyMs = m.indexLatencyMs*(n-1)/n + float64(elapsed.Microseconds())/1000/n
}

// snapshot returns the current counters as domain metrics.
func (m *metrics) snapshot() domain.PerformanceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	hitRate := 0.0
	if m.cacheLookups > 0 {
		hitRate = float64(m.cacheHits) / float64(m.cacheLookups)
	}
	return domain.PerformanceMetrics{
		AvgSearchLatencyMs:    m.searchLatencyMs,
		AvgIndexingTimeMs:     m.indexLatencyMs,
		CacheHitRate:          hitRate,
		TotalQueries:          m.totalQueries,
		TotalDocumentsIndexed: m.totalIndexed,
	}
}
