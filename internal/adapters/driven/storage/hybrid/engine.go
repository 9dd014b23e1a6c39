package hybrid

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/storage/columnar"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/storage/sqlite"
	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

// engineState is the engine's coarse lifecycle state.
type engineState int32

const (
	stateUninitialized engineState = iota
	stateInitializing
	stateReady
	stateOptimizing
	stateBackingUp
)

// Engine composes the metadata and vector stores into the full storage
// engine.
type Engine struct {
	cfg      domain.StorageConfig
	metadata *sqlite.Store
	vectors  *columnar.Store

	state   atomic.Int32
	metrics *metrics

	cacheMu sync.Mutex
	cache   *queryCache
}

var _ driven.StorageEngine = (*Engine)(nil)

// NewEngine creates the engine and its backends from cfg. Nothing is
// opened until Initialize.
func NewEngine(cfg domain.StorageConfig) *Engine {
	return &Engine{
		cfg:      cfg,
		metadata: sqlite.NewStore(cfg.Metadata),
		vectors:  columnar.NewStore(cfg.Vectors),
		metrics:  &metrics{},
		cache:    newQueryCache(cfg.Cache),
	}
}

// Metadata exposes the metadata backend for observability reads (tags,
// activity) that are outside the StorageEngine surface.
func (e *Engine) Metadata() *sqlite.Store {
	return e.metadata
}

// Initialize brings up both backends in parallel. The first failure wins
// and leaves the engine uninitialized.
func (e *Engine) Initialize(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(stateUninitialized), int32(stateInitializing)) {
		if engineState(e.state.Load()) == stateInitializing {
			return fmt.Errorf("storage engine: initialization in progress")
		}
		return domain.ErrAlreadyInitialized
	}

	if err := e.cfg.Validate(); err != nil {
		e.state.Store(int32(stateUninitialized))
		return fmt.Errorf("storage engine: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.metadata.Initialize(gctx); err != nil {
			return fmt.Errorf("metadata backend: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := e.vectors.Initialize(gctx); err != nil {
			return fmt.Errorf("vector backend: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		e.metadata.Close() //nolint:errcheck
		e.vectors.Close()  //nolint:errcheck
		e.state.Store(int32(stateUninitialized))
		return err
	}

	e.state.Store(int32(stateReady))
	logger.Debug("hybrid: engine ready (base path %s)", e.cfg.BasePath)
	return nil
}

// Close shuts both backends down.
func (e *Engine) Close() error {
	e.state.Store(int32(stateUninitialized))
	metaErr := e.metadata.Close()
	vecErr := e.vectors.Close()
	if metaErr != nil {
		return metaErr
	}
	return vecErr
}

// available reports whether the engine accepts operations. Optimize and
// backup runs do not block reads or writes.
func (e *Engine) available() error {
	switch engineState(e.state.Load()) {
	case stateReady, stateOptimizing, stateBackingUp:
		return nil
	default:
		return domain.ErrNotInitialized
	}
}

// invalidateCache drops cached search results after a write.
func (e *Engine) invalidateCache() {
	e.cacheMu.Lock()
	e.cache.invalidate()
	e.cacheMu.Unlock()
}

// ==================== Writes ====================

// StoreDocumentMetadata writes metadata to the SQLite backend.
func (e *Engine) StoreDocumentMetadata(ctx context.Context, path string, meta domain.DocumentMetadata) error {
	if err := e.available(); err != nil {
		return err
	}
	start := time.Now()
	if err := e.metadata.StoreDocumentMetadata(ctx, path, meta); err != nil {
		return err
	}
	e.invalidateCache()
	e.metrics.recordIndex(time.Since(start), true)
	return nil
}

// StoreDocumentContent writes metadata plus searchable text to the SQLite
// backend.
func (e *Engine) StoreDocumentContent(
	ctx context.Context,
	path string,
	meta domain.DocumentMetadata,
	plainText string,
) error {
	if err := e.available(); err != nil {
		return err
	}
	start := time.Now()
	if err := e.metadata.StoreDocumentContent(ctx, path, meta, plainText); err != nil {
		return err
	}
	e.invalidateCache()
	e.metrics.recordIndex(time.Since(start), true)
	return nil
}

// StoreDocumentEmbeddings writes the document vector to the columnar
// backend.
func (e *Engine) StoreDocumentEmbeddings(ctx context.Context, path string, emb domain.DocumentEmbeddings) error {
	if err := e.available(); err != nil {
		return err
	}
	start := time.Now()
	if err := e.vectors.StoreDocumentEmbeddings(ctx, path, emb); err != nil {
		return err
	}
	e.invalidateCache()
	e.metrics.recordIndex(time.Since(start), false)
	return nil
}

// StoreBlockEmbeddings writes block vectors to the columnar backend.
func (e *Engine) StoreBlockEmbeddings(ctx context.Context, path string, blocks []domain.BlockEmbedding) error {
	if err := e.available(); err != nil {
		return err
	}
	start := time.Now()
	if err := e.vectors.StoreBlockEmbeddings(ctx, path, blocks); err != nil {
		return err
	}
	e.invalidateCache()
	e.metrics.recordIndex(time.Since(start), false)
	return nil
}

// ==================== Search ====================

// SemanticSearch runs the vector and text legs in parallel and fuses the
// ranked lists. Results are cached per query until the next write.
func (e *Engine) SemanticSearch(ctx context.Context, query domain.HybridQuery) ([]domain.SearchResult, error) {
	if err := e.available(); err != nil {
		return nil, err
	}
	if query.IsEmpty() || query.Limit <= 0 {
		return nil, nil
	}

	start := time.Now()
	key := cacheKey(query)

	e.cacheMu.Lock()
	cached, hit := e.cache.get(key, start)
	e.cacheMu.Unlock()
	e.metrics.recordCacheLookup(hit)
	if hit {
		e.metrics.recordSearch(time.Since(start))
		logger.Debug("hybrid: cache hit for query (limit=%d)", query.Limit)
		return cached, nil
	}

	// Each leg over-fetches so fusion boosts can promote documents into
	// the final page.
	fetch := query.Limit * 2

	var (
		vectorRes, textRes []domain.SearchResult
		vectorErr, textErr error
	)
	var wg sync.WaitGroup

	if len(query.Vector) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorRes, vectorErr = e.vectors.SemanticSearch(ctx, domain.HybridQuery{
				Vector:    query.Vector,
				Limit:     fetch,
				Threshold: query.Threshold,
			})
		}()
	}
	if query.Text != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			textRes, textErr = e.metadata.TextSearch(ctx, query.Text, fetch)
		}()
	}
	wg.Wait()

	// Degrade gracefully when one leg fails; fail only when nothing is
	// left to rank.
	if vectorErr != nil && textErr != nil {
		return nil, fmt.Errorf("hybrid search: vector=%w, text=%w", vectorErr, textErr)
	}
	if vectorErr != nil {
		logger.Warn("hybrid: vector leg failed, using text results only: %v", vectorErr)
		vectorRes = nil
	}
	if textErr != nil {
		logger.Warn("hybrid: text leg failed, using vector results only: %v", textErr)
		textRes = nil
	}

	results := fuse(vectorRes, textRes, query.IsHybrid())
	e.hydrate(ctx, results)
	applyRecencyBoost(results, time.Now().UTC())
	results = rankAndTruncate(results, query.Limit)

	e.cacheMu.Lock()
	e.cache.put(key, results, start)
	e.cacheMu.Unlock()
	e.metrics.recordSearch(time.Since(start))
	return results, nil
}

// hydrate fills in metadata for results that only carry a path (hits from
// the vector leg alone).
func (e *Engine) hydrate(ctx context.Context, results []domain.SearchResult) {
	for i := range results {
		meta := &results[i].Document.Metadata
		if meta.Title != "" || !meta.IndexedAt.IsZero() {
			continue
		}
		doc, err := e.metadata.GetDocument(ctx, meta.Path)
		if err != nil || doc == nil {
			continue
		}
		snippet := results[i].Document.Snippet
		results[i].Document = *doc
		if snippet != "" {
			results[i].Document.Snippet = snippet
		}
	}
}

// TextSearch delegates to the metadata backend.
func (e *Engine) TextSearch(ctx context.Context, text string, limit int) ([]domain.SearchResult, error) {
	if err := e.available(); err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := e.metadata.TextSearch(ctx, text, limit)
	if err != nil {
		return nil, err
	}
	e.metrics.recordSearch(time.Since(start))
	return results, nil
}

// ==================== Reads ====================

// GetDocument delegates to the metadata backend.
func (e *Engine) GetDocument(ctx context.Context, path string) (*domain.DocumentRecord, error) {
	if err := e.available(); err != nil {
		return nil, err
	}
	return e.metadata.GetDocument(ctx, path)
}

// GetDocumentsByTag delegates to the metadata backend.
func (e *Engine) GetDocumentsByTag(ctx context.Context, tag string) ([]domain.DocumentRecord, error) {
	if err := e.available(); err != nil {
		return nil, err
	}
	return e.metadata.GetDocumentsByTag(ctx, tag)
}

// GetRecentDocuments delegates to the metadata backend.
func (e *Engine) GetRecentDocuments(ctx context.Context, limit int) ([]domain.DocumentRecord, error) {
	if err := e.available(); err != nil {
		return nil, err
	}
	return e.metadata.GetRecentDocuments(ctx, limit)
}

// ==================== Removal ====================

// RemoveDocument removes the document from both backends. The metadata
// row goes first; a failure there leaves the vectors untouched so the
// document stays consistent across backends.
func (e *Engine) RemoveDocument(ctx context.Context, path string) error {
	if err := e.available(); err != nil {
		return err
	}
	if err := e.metadata.RemoveDocument(ctx, path); err != nil {
		return err
	}
	if err := e.vectors.RemoveDocument(ctx, path); err != nil {
		return err
	}
	e.invalidateCache()
	return nil
}

// ==================== Stats and Maintenance ====================

// Stats merges both backends' stats with the engine's runtime metrics.
func (e *Engine) Stats(ctx context.Context) (*domain.StorageStats, error) {
	if err := e.available(); err != nil {
		return nil, err
	}

	metaStats, err := e.metadata.Stats(ctx)
	if err != nil {
		return nil, err
	}
	vecStats, err := e.vectors.Stats(ctx)
	if err != nil {
		return nil, err
	}

	merged := &domain.StorageStats{
		TotalDocuments:     metaStats.TotalDocuments,
		TotalEmbeddings:    vecStats.TotalEmbeddings,
		TotalBlocks:        vecStats.TotalBlocks,
		StorageSizeBytes:   metaStats.StorageSizeBytes + vecStats.StorageSizeBytes,
		MetadataSizeBytes:  metaStats.MetadataSizeBytes,
		EmbeddingSizeBytes: vecStats.EmbeddingSizeBytes,
		LastOptimized:      metaStats.LastOptimized,
		Performance:        e.metrics.snapshot(),
	}
	if vecStats.LastOptimized.After(merged.LastOptimized) {
		merged.LastOptimized = vecStats.LastOptimized
	}
	// The metadata backend keeps a durable trailing-window latency
	// average that survives restarts; prefer it once any searches are
	// on record there.
	if metaStats.Performance.TotalQueries > 0 {
		merged.Performance.AvgSearchLatencyMs = metaStats.Performance.AvgSearchLatencyMs
	}
	return merged, nil
}

// Analytics builds the vault-wide observability rollup.
func (e *Engine) Analytics(ctx context.Context) (*domain.VaultAnalytics, error) {
	stats, err := e.Stats(ctx)
	if err != nil {
		return nil, err
	}
	topTags, err := e.metadata.TopTags(ctx, 10)
	if err != nil {
		return nil, err
	}
	activity, err := e.metadata.RecentActivity(ctx, 10)
	if err != nil {
		return nil, err
	}

	const mb = 1024 * 1024
	return &domain.VaultAnalytics{
		TotalDocuments:  stats.TotalDocuments,
		TotalEmbeddings: stats.TotalEmbeddings,
		TotalQueries:    stats.Performance.TotalQueries,
		AvgQueryTimeMs:  stats.Performance.AvgSearchLatencyMs,
		CacheHitRate:    stats.Performance.CacheHitRate,
		Breakdown: domain.StorageBreakdown{
			MetadataSizeMB: float64(stats.MetadataSizeBytes) / mb,
			VectorSizeMB:   float64(stats.EmbeddingSizeBytes) / mb,
			TotalSizeMB:    float64(stats.StorageSizeBytes) / mb,
		},
		TopTags:        topTags,
		RecentActivity: activity,
	}, nil
}

// Optimize runs both backends' optimize in parallel and aggregates the
// outcome. Partial failures are reported, not raised.
func (e *Engine) Optimize(ctx context.Context) (*domain.OptimizeReport, error) {
	if err := e.beginBackground(stateOptimizing, "optimize"); err != nil {
		return nil, err
	}
	defer e.state.Store(int32(stateReady))

	start := time.Now()
	var metaReport, vecReport *domain.OptimizeReport
	var metaErr, vecErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		metaReport, metaErr = e.metadata.Optimize(ctx)
	}()
	go func() {
		defer wg.Done()
		vecReport, vecErr = e.vectors.Optimize(ctx)
	}()
	wg.Wait()

	report := &domain.OptimizeReport{Duration: time.Since(start)}
	if metaErr != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("metadata: %v", metaErr))
	} else {
		report.MetadataOptimized = metaReport.MetadataOptimized
		report.Errors = append(report.Errors, metaReport.Errors...)
	}
	if vecErr != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("vectors: %v", vecErr))
	} else {
		report.VectorsOptimized = vecReport.VectorsOptimized
		report.Errors = append(report.Errors, vecReport.Errors...)
	}
	return report, nil
}

// Backup runs both backends' backup in parallel into dir and aggregates
// the outcome. Partial failures are reported, not raised.
func (e *Engine) Backup(ctx context.Context, dir string) (*domain.BackupReport, error) {
	if err := e.beginBackground(stateBackingUp, "backup"); err != nil {
		return nil, err
	}
	defer e.state.Store(int32(stateReady))

	start := time.Now()
	var metaReport, vecReport *domain.BackupReport
	var metaErr, vecErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		metaReport, metaErr = e.metadata.Backup(ctx, dir)
	}()
	go func() {
		defer wg.Done()
		vecReport, vecErr = e.vectors.Backup(ctx, dir)
	}()
	wg.Wait()

	report := &domain.BackupReport{Duration: time.Since(start), BackupPath: dir}
	if metaErr != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("metadata: %v", metaErr))
	} else {
		report.MetadataBackedUp = metaReport.MetadataBackedUp
		report.TotalSizeBytes += metaReport.TotalSizeBytes
		report.Errors = append(report.Errors, metaReport.Errors...)
	}
	if vecErr != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("vectors: %v", vecErr))
	} else {
		report.VectorsBackedUp = vecReport.VectorsBackedUp
		report.TotalSizeBytes += vecReport.TotalSizeBytes
		report.Errors = append(report.Errors, vecReport.Errors...)
	}
	return report, nil
}

// beginBackground transitions Ready into a background state, rejecting
// concurrent maintenance runs.
func (e *Engine) beginBackground(target engineState, op string) error {
	current := engineState(e.state.Load())
	if current == stateUninitialized || current == stateInitializing {
		return domain.ErrNotInitialized
	}
	if !e.state.CompareAndSwap(int32(stateReady), int32(target)) {
		return fmt.Errorf("storage engine: %s rejected, maintenance already running", op)
	}
	return nil
}
