package hybrid

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

const testDim = 4

// setupEngine creates an initialized engine in a temp directory.
func setupEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := domain.DefaultStorageConfig(t.TempDir())
	cfg.Vectors.Dimension = testDim
	engine := NewEngine(cfg)
	require.NoError(t, engine.Initialize(context.Background()))

	t.Cleanup(func() {
		assert.NoError(t, engine.Close())
	})
	return engine
}

// indexDoc stores content and a document-level embedding for path.
func indexDoc(t *testing.T, e *Engine, path, title, content string, vec []float32) {
	t.Helper()
	ctx := context.Background()

	meta := domain.DocumentMetadata{
		Path:        path,
		Title:       title,
		ContentHash: "hash-" + path,
		Size:        int64(len(content)),
		ModifiedAt:  time.Now().UTC(),
		FileType:    domain.FileTypeMarkdown,
	}
	require.NoError(t, e.StoreDocumentContent(ctx, path, meta, content))
	require.NoError(t, e.StoreDocumentEmbeddings(ctx, path, domain.DocumentEmbeddings{
		Vector:    vec,
		ModelName: "test-model",
		Dimension: len(vec),
	}))
}

func TestEngineLifecycle(t *testing.T) {
	cfg := domain.DefaultStorageConfig(t.TempDir())
	cfg.Vectors.Dimension = testDim
	engine := NewEngine(cfg)
	ctx := context.Background()

	_, err := engine.GetDocument(ctx, "a.md")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = engine.Optimize(ctx)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, engine.Initialize(ctx))
	defer engine.Close()

	err = engine.Initialize(ctx)
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestEngineHybridSearch(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	indexDoc(t, engine, "rust.md", "Rust Borrowing",
		"Ownership and borrowing rules in rust explained.",
		[]float32{1, 0, 0, 0})
	indexDoc(t, engine, "go.md", "Go Concurrency",
		"Goroutines and channels for concurrent programs.",
		[]float32{0, 1, 0, 0})

	results, err := engine.SemanticSearch(ctx, domain.HybridQuery{
		Vector: []float32{1, 0, 0, 0},
		Text:   "rust borrowing",
		Limit:  10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// The document matched by both legs ranks first and is reported as
	// a hybrid match with its full metadata record.
	assert.Equal(t, "rust.md", results[0].Document.Metadata.Path)
	assert.Equal(t, domain.MatchHybrid, results[0].MatchType)
	assert.Equal(t, "Rust Borrowing", results[0].Document.Metadata.Title)
	assert.NotEmpty(t, results[0].Document.Snippet)

	// The vector-only hit is hydrated from the metadata store.
	if len(results) > 1 {
		assert.Equal(t, "go.md", results[1].Document.Metadata.Path)
		assert.Equal(t, "Go Concurrency", results[1].Document.Metadata.Title)
	}
}

func TestEngineHybridSearchRanksRelatedDocumentsFirst(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	indexDoc(t, engine, "ownership.md", "Notes on Rust Ownership",
		"How ownership moves and drops values in rust.",
		[]float32{0.9, 0.1, 0, 0})
	indexDoc(t, engine, "shopping.md", "Shopping List",
		"Milk, eggs, bread and coffee.",
		[]float32{0, 0, 0.9, 0.4})
	indexDoc(t, engine, "borrow.md", "Rust Borrow Checker Deep Dive",
		"The borrow checker enforces aliasing rules in rust.",
		[]float32{0.8, 0.2, 0, 0})

	// Querying with the centroid of the two related vectors plus their
	// shared keyword must page in exactly those two documents.
	results, err := engine.SemanticSearch(ctx, domain.HybridQuery{
		Vector: []float32{0.85, 0.15, 0, 0},
		Text:   "rust",
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	paths := []string{
		results[0].Document.Metadata.Path,
		results[1].Document.Metadata.Path,
	}
	assert.ElementsMatch(t, []string{"ownership.md", "borrow.md"}, paths)
	for _, r := range results {
		assert.Equal(t, domain.MatchHybrid, r.MatchType)
		assert.NotEqual(t, "shopping.md", r.Document.Metadata.Path)
	}
}

func TestEngineEmptyQuery(t *testing.T) {
	engine := setupEngine(t)

	results, err := engine.SemanticSearch(context.Background(), domain.HybridQuery{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.SemanticSearch(context.Background(), domain.HybridQuery{
		Text:  "query",
		Limit: 0,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngineQueryCache(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	indexDoc(t, engine, "a.md", "Alpha", "cached content here", []float32{1, 0, 0, 0})

	query := domain.HybridQuery{Text: "cached", Limit: 5}

	first, err := engine.SemanticSearch(ctx, query)
	require.NoError(t, err)
	second, err := engine.SemanticSearch(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Performance.TotalQueries)
	assert.InDelta(t, 0.5, stats.Performance.CacheHitRate, 1e-6)

	// A write invalidates the cache, so the next search misses.
	indexDoc(t, engine, "b.md", "Beta", "fresh cached content", []float32{0, 1, 0, 0})

	third, err := engine.SemanticSearch(ctx, query)
	require.NoError(t, err)
	assert.Len(t, third, 2)

	stats, err = engine.Stats(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, stats.Performance.CacheHitRate, 1e-6)

	// Plain text search bypasses the cache entirely, so it must not
	// dilute the hit rate.
	_, err = engine.TextSearch(ctx, "cached", 5)
	require.NoError(t, err)

	stats, err = engine.Stats(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, stats.Performance.CacheHitRate, 1e-6)
}

func TestEngineRemoveDocument(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	indexDoc(t, engine, "gone.md", "Ephemeral", "ephemeral text", []float32{1, 0, 0, 0})
	require.NoError(t, engine.RemoveDocument(ctx, "gone.md"))

	doc, err := engine.GetDocument(ctx, "gone.md")
	require.NoError(t, err)
	assert.Nil(t, doc)

	results, err := engine.SemanticSearch(ctx, domain.HybridQuery{
		Vector: []float32{1, 0, 0, 0},
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = engine.TextSearch(ctx, "ephemeral", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngineStats(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	indexDoc(t, engine, "a.md", "Alpha", "some text", []float32{1, 0, 0, 0})
	require.NoError(t, engine.StoreBlockEmbeddings(ctx, "a.md", []domain.BlockEmbedding{
		{BlockID: "b1", BlockType: domain.BlockParagraph, Vector: []float32{0, 1, 0, 0}},
	}))

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, stats.TotalEmbeddings)
	assert.Equal(t, 1, stats.TotalBlocks)
	assert.Positive(t, stats.StorageSizeBytes)
	assert.Equal(t, uint64(1), stats.Performance.TotalDocumentsIndexed)
}

func TestEngineOptimize(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	indexDoc(t, engine, "a.md", "Alpha", "optimize me", []float32{1, 0, 0, 0})

	report, err := engine.Optimize(ctx)
	require.NoError(t, err)
	assert.True(t, report.MetadataOptimized)
	assert.True(t, report.VectorsOptimized)
	assert.True(t, report.OK())
	assert.Empty(t, report.Errors)
}

func TestEngineBackup(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	indexDoc(t, engine, "a.md", "Alpha", "back me up", []float32{1, 0, 0, 0})

	dir := filepath.Join(t.TempDir(), "backup")
	report, err := engine.Backup(ctx, dir)
	require.NoError(t, err)
	assert.True(t, report.MetadataBackedUp)
	assert.True(t, report.VectorsBackedUp)
	assert.True(t, report.OK())
	assert.Positive(t, report.TotalSizeBytes)

	_, err = os.Stat(filepath.Join(dir, "metadata.db"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "vectors"))
	assert.NoError(t, err)
}

func TestEngineConcurrentWrites(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			path := fmt.Sprintf("doc-%d.md", n)
			meta := domain.DocumentMetadata{
				Path:        path,
				Title:       fmt.Sprintf("Doc %d", n),
				ContentHash: fmt.Sprintf("hash-%d", n),
				Size:        10,
				ModifiedAt:  time.Now().UTC(),
				FileType:    domain.FileTypeMarkdown,
			}
			errs[n] = engine.StoreDocumentContent(ctx, path, meta,
				"shared keyword in every document")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	results, err := engine.TextSearch(ctx, "keyword", writers*2)
	require.NoError(t, err)
	assert.Len(t, results, writers)
}

func TestEngineAnalytics(t *testing.T) {
	engine := setupEngine(t)
	ctx := context.Background()

	meta := domain.DocumentMetadata{
		Path:        "tagged.md",
		Title:       "Tagged",
		ContentHash: "h1",
		Size:        10,
		Tags:        []string{"project"},
		ModifiedAt:  time.Now().UTC(),
		FileType:    domain.FileTypeMarkdown,
	}
	require.NoError(t, engine.StoreDocumentContent(ctx, meta.Path, meta, "analytics body"))

	_, err := engine.SemanticSearch(ctx, domain.HybridQuery{Text: "analytics", Limit: 5})
	require.NoError(t, err)

	analytics, err := engine.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.TotalDocuments)
	assert.Equal(t, uint64(1), analytics.TotalQueries)
	require.NotEmpty(t, analytics.TopTags)
	assert.Equal(t, "project", analytics.TopTags[0].Tag)
	assert.NotEmpty(t, analytics.RecentActivity)
	assert.Positive(t, analytics.Breakdown.TotalSizeMB)
}
