package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

// Ensure Indexer implements the interface.
var _ driving.IndexService = (*Indexer)(nil)

// action is the outcome of indexing one file.
type action int

const (
	actionIndexed action = iota
	actionSkipped
)

// Indexer implements driving.IndexService over a vault directory.
type Indexer struct {
	vaultPath string
	cfg       domain.IndexerConfig
	engine    driven.StorageEngine
	parser    driven.DocumentParser

	// embedder is optional; without it documents are text-search only.
	embedder driven.EmbeddingService

	// limiter throttles file processing; nil means unthrottled.
	limiter *rate.Limiter
}

// New creates an indexer for the vault rooted at vaultPath.
func New(
	vaultPath string,
	cfg domain.IndexerConfig,
	engine driven.StorageEngine,
	parser driven.DocumentParser,
	embedder driven.EmbeddingService,
) (*Indexer, error) {
	if vaultPath == "" {
		return nil, fmt.Errorf("vault path: %w", domain.ErrInvalidInput)
	}
	if engine == nil || parser == nil {
		return nil, fmt.Errorf("engine and parser are required: %w", domain.ErrInvalidInput)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Indexer{
		vaultPath: vaultPath,
		cfg:       cfg,
		engine:    engine,
		parser:    parser,
		embedder:  embedder,
		limiter:   limiter,
	}, nil
}

// IndexVault walks the vault and indexes every file whose content changed
// since the last run.
func (ix *Indexer) IndexVault(ctx context.Context) (*driving.IndexReport, error) {
	start := time.Now()
	report := &driving.IndexReport{}

	logger.Section("Indexing vault %s", ix.vaultPath)

	err := filepath.WalkDir(ix.vaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := ix.relPath(path)
		if relErr != nil {
			return relErr
		}

		if d.IsDir() {
			if rel != "." && ix.ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		report.FilesScanned++
		if ix.ignored(rel) || !ix.parser.Supports(domain.FileTypeForExtension(filepath.Ext(path))) {
			report.FilesSkipped++
			return nil
		}

		act, indexErr := ix.indexFile(ctx, path, rel)
		switch {
		case indexErr != nil:
			if ctx.Err() != nil {
				return indexErr
			}
			report.FilesFailed++
			logger.Warn("Failed to index %s: %v", rel, indexErr)
		case act == actionSkipped:
			report.FilesSkipped++
		default:
			report.FilesIndexed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault: %w", err)
	}

	report.Duration = time.Since(start)
	logger.Info("Indexed %d files (%d skipped, %d failed) in %s",
		report.FilesIndexed, report.FilesSkipped, report.FilesFailed, report.Duration)
	return report, nil
}

// IndexFile indexes a single file. path may be absolute or vault-relative.
func (ix *Indexer) IndexFile(ctx context.Context, path string) error {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(ix.vaultPath, path)
	}
	rel, err := ix.relPath(abs)
	if err != nil {
		return err
	}
	if ix.ignored(rel) {
		return nil
	}
	if !ix.parser.Supports(domain.FileTypeForExtension(filepath.Ext(abs))) {
		return nil
	}

	_, err = ix.indexFile(ctx, abs, rel)
	return err
}

// indexFile runs the parse, store, embed pipeline for one file.
func (ix *Indexer) indexFile(ctx context.Context, abs, rel string) (action, error) {
	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			return actionSkipped, err
		}
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return actionSkipped, fmt.Errorf("read file: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return actionSkipped, fmt.Errorf("stat file: %w", err)
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	// Unchanged content never reaches the parser or the embedder.
	existing, err := ix.engine.GetDocument(ctx, rel)
	if err != nil {
		return actionSkipped, fmt.Errorf("lookup %s: %w", rel, err)
	}
	if existing != nil && existing.Metadata.ContentHash == hash &&
		existing.Metadata.Size == info.Size() {
		logger.Debug("Unchanged: %s", rel)
		return actionSkipped, nil
	}

	parsed, err := ix.parser.Parse(rel, content)
	if err != nil {
		return actionSkipped, fmt.Errorf("parse %s: %w", rel, err)
	}

	meta := parsed.Metadata
	meta.Path = rel
	meta.ContentHash = hash
	meta.Size = info.Size()
	if meta.ModifiedAt.IsZero() {
		meta.ModifiedAt = info.ModTime().UTC()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = info.ModTime().UTC()
	}

	if err := ix.engine.StoreDocumentContent(ctx, rel, meta, parsed.PlainText); err != nil {
		return actionSkipped, fmt.Errorf("store %s: %w", rel, err)
	}

	if ix.embedder != nil {
		if err := ix.embed(ctx, rel, hash, parsed); err != nil {
			// The document stays text-searchable without vectors.
			logger.Warn("Embedding failed for %s: %v", rel, err)
		}
	}
	return actionIndexed, nil
}

// embed computes and stores the document-level and block-level vectors.
func (ix *Indexer) embed(ctx context.Context, rel, hash string, parsed *driven.ParsedDocument) error {
	vector, err := ix.embedder.Embed(ctx, parsed.PlainText)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	err = ix.engine.StoreDocumentEmbeddings(ctx, rel, domain.DocumentEmbeddings{
		Vector:    vector,
		ModelName: ix.embedder.ModelName(),
		Dimension: len(vector),
		CreatedAt: time.Now().UTC(),
		Checksum:  hash,
	})
	if err != nil {
		return fmt.Errorf("store document vector: %w", err)
	}

	blocks := make([]domain.Block, 0, len(parsed.Blocks))
	for _, b := range parsed.Blocks {
		if strings.TrimSpace(b.Content) != "" {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return nil
	}

	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Content
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed blocks: %w", err)
	}

	now := time.Now().UTC()
	embeddings := make([]domain.BlockEmbedding, len(blocks))
	for i, b := range blocks {
		embeddings[i] = domain.BlockEmbedding{
			BlockID:   b.ID,
			BlockType: b.Type,
			Content:   b.Content,
			Vector:    vectors[i],
			StartPos:  b.StartPos,
			EndPos:    b.EndPos,
			CreatedAt: now,
		}
	}
	if err := ix.engine.StoreBlockEmbeddings(ctx, rel, embeddings); err != nil {
		return fmt.Errorf("store block vectors: %w", err)
	}
	return nil
}

// Watch blocks, reindexing files as they change, until ctx is done.
func (ix *Indexer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// fsnotify is not recursive, so register every directory up front.
	err = filepath.WalkDir(ix.vaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := ix.relPath(path)
		if relErr != nil {
			return relErr
		}
		if rel != "." && ix.ignored(rel) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watch vault: %w", err)
	}

	logger.Info("Watching %s for changes", ix.vaultPath)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ix.handleEvent(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// handleEvent reacts to a single filesystem event.
func (ix *Indexer) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	rel, err := ix.relPath(event.Name)
	if err != nil || ix.ignored(rel) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		logger.Debug("Removing: %s", rel)
		if err := ix.engine.RemoveDocument(ctx, rel); err != nil {
			logger.Warn("Failed to remove %s: %v", rel, err)
		}

	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		info, statErr := os.Stat(event.Name)
		if statErr != nil {
			return
		}
		if info.IsDir() {
			if event.Op.Has(fsnotify.Create) {
				if err := watcher.Add(event.Name); err != nil {
					logger.Warn("Failed to watch %s: %v", rel, err)
				}
			}
			return
		}
		if !ix.parser.Supports(domain.FileTypeForExtension(filepath.Ext(event.Name))) {
			return
		}
		logger.Debug("Changed: %s", rel)
		if _, err := ix.indexFile(ctx, event.Name, rel); err != nil && ctx.Err() == nil {
			logger.Warn("Failed to index %s: %v", rel, err)
		}
	}
}

// relPath converts an absolute path to the slash-separated vault-relative
// form used as the document key.
func (ix *Indexer) relPath(abs string) (string, error) {
	rel, err := filepath.Rel(ix.vaultPath, abs)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", abs, err)
	}
	return filepath.ToSlash(rel), nil
}

// ignored reports whether a vault-relative path is excluded from
// indexing: configured glob patterns, hidden path components, and editor
// temp or lock files.
func (ix *Indexer) ignored(rel string) bool {
	for _, pattern := range ix.cfg.IgnorePatterns {
		if prefix, found := strings.CutSuffix(pattern, "/**"); found {
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
	}

	for _, comp := range strings.Split(rel, "/") {
		if strings.HasPrefix(comp, ".") && comp != "." && comp != ".." {
			return true
		}
	}

	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), ".")) {
	case "tmp", "temp", "lock", "swp", "bak":
		return true
	}
	return false
}
