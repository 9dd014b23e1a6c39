package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

func TestVaultRecent(t *testing.T) {
	engine := setupEngine(t)
	svc := NewVaultService(engine)
	ctx := context.Background()

	storeDoc(t, engine, "a.md", "Alpha", "first", nil)
	storeDoc(t, engine, "b.md", "Beta", "second", nil)

	docs, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = svc.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestVaultByTag(t *testing.T) {
	engine := setupEngine(t)
	svc := NewVaultService(engine)
	ctx := context.Background()

	storeDoc(t, engine, "p.md", "Project", "project note", []string{"project"})
	storeDoc(t, engine, "o.md", "Other", "other note", []string{"misc"})

	docs, err := svc.ByTag(ctx, "project")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p.md", docs[0].Metadata.Path)

	// A leading # is tolerated.
	docs, err = svc.ByTag(ctx, "#project")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = svc.ByTag(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVaultRemove(t *testing.T) {
	engine := setupEngine(t)
	svc := NewVaultService(engine)
	ctx := context.Background()

	storeDoc(t, engine, "gone.md", "Gone", "to be removed", nil)
	require.NoError(t, svc.Remove(ctx, "gone.md"))

	doc, err := engine.GetDocument(ctx, "gone.md")
	require.NoError(t, err)
	assert.Nil(t, doc)

	assert.ErrorIs(t, svc.Remove(ctx, ""), domain.ErrInvalidInput)
}

func TestVaultOptimizeAndBackup(t *testing.T) {
	engine := setupEngine(t)
	svc := NewVaultService(engine)
	ctx := context.Background()

	storeDoc(t, engine, "a.md", "Alpha", "content", nil)

	report, err := svc.Optimize(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())

	dir := filepath.Join(t.TempDir(), "backup")
	backup, err := svc.Backup(ctx, dir)
	require.NoError(t, err)
	assert.True(t, backup.OK())

	_, err = os.Stat(filepath.Join(dir, "metadata.db"))
	assert.NoError(t, err)

	_, err = svc.Backup(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVaultAnalytics(t *testing.T) {
	engine := setupEngine(t)
	svc := NewVaultService(engine)
	ctx := context.Background()

	storeDoc(t, engine, "t.md", "Tagged", "analytics content", []string{"project"})

	analytics, err := svc.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, analytics.TotalDocuments)
	require.NotEmpty(t, analytics.TopTags)
	assert.Equal(t, "project", analytics.TopTags[0].Tag)
}
