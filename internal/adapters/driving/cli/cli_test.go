package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/embedding/static"
	"github.com/mnemo-labs/mnemo-cli/internal/adapters/driven/storage/hybrid"
	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/services"
	"github.com/mnemo-labs/mnemo-cli/internal/indexer"
	"github.com/mnemo-labs/mnemo-cli/internal/parser"
)

const testDim = 16

// setupTestServices wires real services over temp directories and
// returns a cleanup that detaches them again.
func setupTestServices(t *testing.T) (vault string, cleanup func()) {
	t.Helper()

	vault = t.TempDir()
	cfg := domain.DefaultStorageConfig(t.TempDir())
	cfg.Vectors.Dimension = testDim
	engine := hybrid.NewEngine(cfg)
	require.NoError(t, engine.Initialize(context.Background()))

	embedder := static.NewEmbeddingService(testDim)
	ix, err := indexer.New(vault, domain.IndexerConfig{}, engine, parser.New(), embedder)
	require.NoError(t, err)

	SetServices(
		services.NewSearchService(engine, embedder),
		services.NewVaultService(engine),
		ix,
	)

	return vault, func() {
		SetServices(nil, nil, nil)
		assert.NoError(t, engine.Close())
	}
}

// execute runs the root command with args and captures its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

func writeNote(t *testing.T, vault, rel, content string) {
	t.Helper()
	path := filepath.Join(vault, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestSearchCmdUse(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
	assert.Contains(t, searchCmd.Long, "hybrid search")
	assert.Contains(t, searchCmd.Long, "BM25")
}

func TestSearchCmdRequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmdFlags(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)

	for _, name := range []string{"threshold", "text-only", "semantic", "json"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), name)
	}
}

func TestSearchCmdNotConfigured(t *testing.T) {
	SetServices(nil, nil, nil)

	_, err := execute(t, "search", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestIndexAndSearchCmd(t *testing.T) {
	vault, cleanup := setupTestServices(t)
	defer cleanup()

	writeNote(t, vault, "rust.md", "# Rust Notes\n\nOwnership and borrowing in rust.\n")

	out, err := execute(t, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "1 indexed")

	out, err = execute(t, "search", "ownership")
	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "Rust Notes")
	assert.Contains(t, out, "rust.md")
}

func TestSearchCmdJSON(t *testing.T) {
	vault, cleanup := setupTestServices(t)
	defer cleanup()

	writeNote(t, vault, "a.md", "# Alpha\n\njson output note\n")
	_, err := execute(t, "index")
	require.NoError(t, err)

	// Flag values persist between executions in the same process.
	defer func() { searchJSON = false }()

	out, err := execute(t, "search", "--json", "json output")
	require.NoError(t, err)
	assert.Contains(t, out, `"Score"`)
	assert.Contains(t, out, "a.md")
}

func TestSearchCmdNoResults(t *testing.T) {
	_, cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "search", "nothing indexed yet")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchCmdConflictingFlags(t *testing.T) {
	_, cleanup := setupTestServices(t)
	defer cleanup()

	_, err := execute(t, "search", "--text-only", "--semantic", "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	// Reset for later tests; cobra keeps flag values between runs.
	searchTextOnly = false
	searchSemantic = false
}

func TestRecentCmd(t *testing.T) {
	vault, cleanup := setupTestServices(t)
	defer cleanup()

	writeNote(t, vault, "recent.md", "# Recent\n\na note\n")
	_, err := execute(t, "index")
	require.NoError(t, err)

	out, err := execute(t, "recent")
	require.NoError(t, err)
	assert.Contains(t, out, "recent.md")
	assert.Contains(t, out, time.Now().UTC().Format("2006-01-02"))
}

func TestStatsCmd(t *testing.T) {
	vault, cleanup := setupTestServices(t)
	defer cleanup()

	writeNote(t, vault, "tagged.md", "# Tagged\n\nnote with a #project tag\n")
	_, err := execute(t, "index")
	require.NoError(t, err)

	out, err := execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:     1")
	assert.Contains(t, out, "#project")
}

func TestOptimizeCmd(t *testing.T) {
	_, cleanup := setupTestServices(t)
	defer cleanup()

	out, err := execute(t, "optimize")
	require.NoError(t, err)
	assert.Contains(t, out, "Optimized both backends")
}

func TestBackupCmd(t *testing.T) {
	vault, cleanup := setupTestServices(t)
	defer cleanup()

	writeNote(t, vault, "b.md", "# B\n\nbackup me\n")
	_, err := execute(t, "index")
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "backup")
	out, err := execute(t, "backup", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up")

	_, err = os.Stat(filepath.Join(dir, "metadata.db"))
	assert.NoError(t, err)
}

func TestRemoveCmd(t *testing.T) {
	vault, cleanup := setupTestServices(t)
	defer cleanup()

	writeNote(t, vault, "gone.md", "# Gone\n\nremove me\n")
	_, err := execute(t, "index")
	require.NoError(t, err)

	out, err := execute(t, "remove", "gone.md")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed gone.md")

	out, err = execute(t, "search", "remove me")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mnemo version 1.2.3")
}
