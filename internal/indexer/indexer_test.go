package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/embedding/static"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/storage/hybrid"
	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/parser"
)

const testDim = 16

// setupIndexer builds an indexer over a fresh vault and engine. The
// static embedder keeps embeddings fully offline.
func setupIndexer(t *testing.T, withEmbedder bool) (*Indexer, *hybrid.Engine, string) {
	t.Helper()

	vault := t.TempDir()
	cfg := domain.DefaultStorageConfig(t.TempDir())
	cfg.Vectors.Dimension = testDim
	engine := hybrid.NewEngine(cfg)
	require.NoError(t, engine.Initialize(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, engine.Close())
	})

	var embedder driven.EmbeddingService
	if withEmbedder {
		embedder = static.NewEmbeddingService(testDim)
	}

	ix, err := New(vault, domain.IndexerConfig{
		IgnorePatterns: []string{".obsidian/**", ".trash/**"},
	}, engine, parser.New(), embedder)
	require.NoError(t, err)
	return ix, engine, vault
}

func writeNote(t *testing.T, vault, rel, content string) {
	t.Helper()
	path := filepath.Join(vault, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestIndexVault(t *testing.T) {
	ix, engine, vault := setupIndexer(t, false)
	ctx := context.Background()

	writeNote(t, vault, "alpha.md", "# Alpha\n\nFirst note about gardening.\n")
	writeNote(t, vault, "sub/beta.md", "# Beta\n\nSecond note about compost.\n")
	writeNote(t, vault, "photo.png", "not really a png")
	writeNote(t, vault, ".obsidian/workspace.json", "{}")

	report, err := ix.IndexVault(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.FilesScanned)
	assert.Equal(t, 2, report.FilesIndexed)
	assert.Equal(t, 1, report.FilesSkipped)
	assert.Equal(t, 0, report.FilesFailed)
	assert.Positive(t, report.Duration)

	doc, err := engine.GetDocument(ctx, "sub/beta.md")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Beta", doc.Metadata.Title)
	assert.NotEmpty(t, doc.Metadata.ContentHash)

	results, err := engine.TextSearch(ctx, "gardening", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha.md", results[0].Document.Metadata.Path)
}

func TestReindexSkipsUnchangedFiles(t *testing.T) {
	ix, _, vault := setupIndexer(t, false)
	ctx := context.Background()

	writeNote(t, vault, "a.md", "# A\n\ncontent a\n")
	writeNote(t, vault, "b.md", "# B\n\ncontent b\n")

	_, err := ix.IndexVault(ctx)
	require.NoError(t, err)

	report, err := ix.IndexVault(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.FilesIndexed)
	assert.Equal(t, 2, report.FilesSkipped)
}

func TestIndexFilePicksUpChanges(t *testing.T) {
	ix, engine, vault := setupIndexer(t, false)
	ctx := context.Background()

	writeNote(t, vault, "note.md", "# Old Title\n\nbody\n")
	require.NoError(t, ix.IndexFile(ctx, "note.md"))

	writeNote(t, vault, "note.md", "# New Title\n\nbody\n")
	require.NoError(t, ix.IndexFile(ctx, "note.md"))

	doc, err := engine.GetDocument(ctx, "note.md")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "New Title", doc.Metadata.Title)
}

func TestIndexFileAbsolutePath(t *testing.T) {
	ix, engine, vault := setupIndexer(t, false)
	ctx := context.Background()

	writeNote(t, vault, "abs.md", "# Abs\n\nabsolute path note\n")
	require.NoError(t, ix.IndexFile(ctx, filepath.Join(vault, "abs.md")))

	doc, err := engine.GetDocument(ctx, "abs.md")
	require.NoError(t, err)
	require.NotNil(t, doc)
}

func TestIndexStoresEmbeddings(t *testing.T) {
	ix, engine, vault := setupIndexer(t, true)
	ctx := context.Background()

	writeNote(t, vault, "garden.md",
		"# Garden\n\nTomatoes need regular watering in summer.\n")
	writeNote(t, vault, "chess.md",
		"# Chess\n\nControl the center with pawns and knights.\n")

	_, err := ix.IndexVault(ctx)
	require.NoError(t, err)

	embedder := static.NewEmbeddingService(testDim)
	query, err := embedder.Embed(ctx, "tomatoes watering summer")
	require.NoError(t, err)

	results, err := engine.SemanticSearch(ctx, domain.HybridQuery{
		Vector: query,
		Limit:  2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "garden.md", results[0].Document.Metadata.Path)

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEmbeddings)
	assert.Positive(t, stats.TotalBlocks)
}

func TestIgnorePatterns(t *testing.T) {
	ix, _, _ := setupIndexer(t, false)

	assert.True(t, ix.ignored(".obsidian/workspace.json"))
	assert.True(t, ix.ignored(".trash/old.md"))
	assert.True(t, ix.ignored(".hidden.md"))
	assert.True(t, ix.ignored("notes/.secret/x.md"))
	assert.True(t, ix.ignored("draft.md.swp"))
	assert.True(t, ix.ignored("note.tmp"))
	assert.False(t, ix.ignored("notes/visible.md"))
	assert.False(t, ix.ignored("a.md"))
}

func TestNewValidation(t *testing.T) {
	_, err := New("", domain.IndexerConfig{}, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRateLimitedIndexing(t *testing.T) {
	_, engine, vault := setupIndexer(t, false)

	// Fractional rates still get a usable burst of one token.
	ix, err := New(vault, domain.IndexerConfig{RateLimit: 0.5}, engine, parser.New(), nil)
	require.NoError(t, err)
	require.NotNil(t, ix.limiter)
	assert.Equal(t, 1, ix.limiter.Burst())

	writeNote(t, vault, "throttled.md", "# Throttled\n\na note\n")
	report, err := ix.IndexVault(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesIndexed)
}

func TestWatch(t *testing.T) {
	ix, engine, vault := setupIndexer(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ix.Watch(ctx)
	}()

	// Give the watcher a moment to register the vault directories.
	time.Sleep(200 * time.Millisecond)

	writeNote(t, vault, "live.md", "# Live\n\nwritten while watching\n")
	require.Eventually(t, func() bool {
		doc, err := engine.GetDocument(ctx, "live.md")
		return err == nil && doc != nil
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(vault, "live.md")))
	require.Eventually(t, func() bool {
		doc, err := engine.GetDocument(ctx, "live.md")
		return err == nil && doc == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
