package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Storage.Vectors.Dimension)
	assert.Contains(t, cfg.Indexer.IgnorePatterns, ".git/**")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	cfg := domain.DefaultAppConfig(dir)
	cfg.VaultPath = "/vault/notes"
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Dimension = 768
	cfg.Indexer.Watch = true

	require.NoError(t, store.Save(&cfg))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "/vault/notes", loaded.VaultPath)
	assert.Equal(t, "ollama", loaded.Embedding.Provider)
	assert.Equal(t, 768, loaded.Embedding.Dimension)
	assert.True(t, loaded.Indexer.Watch)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	partial := "vault_path = \"/vault/partial\"\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(partial), 0600))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "/vault/partial", cfg.VaultPath)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, "static", cfg.Embedding.Provider)
	assert.Equal(t, float64(50), cfg.Indexer.RateLimit)
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.Path(), []byte("not = [valid"), 0600))

	_, err = store.Load()
	assert.Error(t, err)
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}
