package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/embedding/static"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/storage/hybrid"
	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

const testDim = 16

func setupBuilder(t *testing.T) (*Builder, *hybrid.Engine) {
	t.Helper()

	cfg := domain.DefaultStorageConfig(t.TempDir())
	cfg.Vectors.Dimension = testDim
	engine := hybrid.NewEngine(cfg)
	require.NoError(t, engine.Initialize(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, engine.Close())
	})

	builder, err := New(engine, static.NewEmbeddingService(testDim), DefaultOptions())
	require.NoError(t, err)
	return builder, engine
}

// storeNote indexes a note with content and a static embedding.
func storeNote(t *testing.T, engine *hybrid.Engine, path, title, content string, tags, links []string) {
	t.Helper()
	ctx := context.Background()

	meta := domain.DocumentMetadata{
		Path:        path,
		Title:       title,
		ContentHash: "hash-" + path,
		Size:        int64(len(content)),
		Tags:        tags,
		Links:       links,
		ModifiedAt:  time.Now().UTC(),
		FileType:    domain.FileTypeMarkdown,
	}
	require.NoError(t, engine.StoreDocumentContent(ctx, path, meta, content))

	vec, err := static.NewEmbeddingService(testDim).Embed(ctx, content)
	require.NoError(t, err)
	require.NoError(t, engine.StoreDocumentEmbeddings(ctx, path, domain.DocumentEmbeddings{
		Vector:    vec,
		ModelName: "static-hash",
		Dimension: testDim,
	}))
}

func TestBuildBundle(t *testing.T) {
	builder, engine := setupBuilder(t)
	ctx := context.Background()

	storeNote(t, engine, "notes/sourdough.md", "Sourdough Starter",
		"Feed the sourdough starter with equal parts flour and water.",
		[]string{"baking"}, nil)
	storeNote(t, engine, "notes/baking-log.md", "Baking Log",
		"The sourdough loaf turned out dense, starter may be weak.",
		[]string{"baking", "journal"}, []string{"Sourdough Starter"})

	bundle, err := builder.Build(ctx, "sourdough starter")
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Sources)

	assert.Equal(t, "sourdough starter", bundle.Question)
	assert.Equal(t, "1", bundle.Sources[0].ID)
	assert.Contains(t, bundle.Context, "[1]")
	assert.Contains(t, bundle.Context, bundle.Sources[0].Title)
	assert.Contains(t, bundle.Context, "Cite sources")

	for _, src := range bundle.Sources {
		assert.NotEmpty(t, src.Path)
		assert.Positive(t, src.Score)
	}
}

func TestBundleRelatedKnowledge(t *testing.T) {
	builder, engine := setupBuilder(t)
	ctx := context.Background()

	storeNote(t, engine, "notes/sourdough.md", "Sourdough Starter",
		"Feed the sourdough starter daily.", []string{"baking"}, nil)
	storeNote(t, engine, "notes/baking-log.md", "Baking Log",
		"Sourdough starter was sluggish today.",
		[]string{"baking", "journal"}, []string{"Sourdough Starter"})

	bundle, err := builder.Build(ctx, "sourdough starter")
	require.NoError(t, err)
	require.Len(t, bundle.Sources, 2)

	var starter *Source
	for i := range bundle.Sources {
		if bundle.Sources[i].Path == "notes/sourdough.md" {
			starter = &bundle.Sources[i]
		}
	}
	require.NotNil(t, starter)

	// The log links to the starter note, so it shows up as a backlink,
	// and its tags become related tags.
	assert.Contains(t, starter.Context.Backlinks, "notes/baking-log.md")
	assert.Contains(t, starter.Context.RelatedDocuments, "notes/baking-log.md")
	assert.Contains(t, starter.Context.RelatedTags, "journal")
}

func TestBuildNoHits(t *testing.T) {
	builder, _ := setupBuilder(t)

	bundle, err := builder.Build(context.Background(), "question with no matches whatsoever")
	require.NoError(t, err)
	assert.Empty(t, bundle.Sources)
	assert.Empty(t, bundle.Context)
}

func TestBuildEmptyQuestion(t *testing.T) {
	builder, _ := setupBuilder(t)

	_, err := builder.Build(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExcerptTruncation(t *testing.T) {
	builder, engine := setupBuilder(t)
	ctx := context.Background()

	long := strings.Repeat("tomato plants need water and sunlight every day ", 40)
	storeNote(t, engine, "garden.md", "Garden", long, nil, nil)

	bundle, err := builder.Build(ctx, "tomato plants")
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Sources)
	assert.LessOrEqual(t, len(bundle.Sources[0].Excerpt), builder.opts.MaxSourceChars+3)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLinksTo(t *testing.T) {
	target := domain.DocumentMetadata{Path: "notes/alpha-note.md", Title: "Alpha Note"}

	assert.True(t, linksTo(domain.DocumentMetadata{Links: []string{"Alpha Note"}}, target))
	assert.True(t, linksTo(domain.DocumentMetadata{Links: []string{"alpha-note"}}, target))
	assert.True(t, linksTo(domain.DocumentMetadata{Links: []string{"notes/alpha-note.md"}}, target))
	assert.False(t, linksTo(domain.DocumentMetadata{Links: []string{"Beta"}}, target))
}
