package columnar

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

const (
	// blockMergeWeight scales a block hit's contribution when its
	// document already matched at the document level. Block evidence
	// only ever adds to a document's score.
	blockMergeWeight = 0.8

	// blockOnlyWeight scales the score of documents matched solely
	// through a block.
	blockOnlyWeight = 0.9

	// rowOverheadBytes approximates the per-row metadata footprint used
	// for size estimates.
	rowOverheadBytes = 200
)

// Store is the columnar vector side of the storage engine. It keeps
// document-level and block-level vectors in separate collections and
// serves semantic search over both. Metadata operations are accepted as
// no-ops so the store satisfies the full StorageEngine surface.
type Store struct {
	cfg domain.VectorConfig

	mu            sync.Mutex
	initialized   bool
	docs          *collection
	blocks        *collection
	lastOptimized time.Time
}

var _ driven.StorageEngine = (*Store)(nil)

// NewStore creates a vector store for the given configuration. No files
// are touched until Initialize is called.
func NewStore(cfg domain.VectorConfig) *Store {
	return &Store{cfg: cfg}
}

// Initialize opens both collections, creating them on first use.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return domain.ErrAlreadyInitialized
	}
	if s.cfg.Dimension <= 0 {
		return fmt.Errorf("vector store: %w: dimension %d", domain.ErrInvalidInput, s.cfg.Dimension)
	}
	if s.cfg.DatasetPath == "" {
		return fmt.Errorf("vector store: %w: empty dataset path", domain.ErrInvalidInput)
	}

	kind := string(s.cfg.IndexKind)
	if kind == "" {
		kind = string(domain.IndexFlat)
	}

	docs, err := openCollection("documents",
		filepath.Join(s.cfg.DatasetPath, "documents"),
		s.cfg.Dimension, kind, s.cfg.Compression)
	if err != nil {
		return fmt.Errorf("opening documents collection: %w", err)
	}
	blocks, err := openCollection("blocks",
		filepath.Join(s.cfg.DatasetPath, "blocks"),
		s.cfg.Dimension, kind, s.cfg.Compression)
	if err != nil {
		return fmt.Errorf("opening blocks collection: %w", err)
	}

	s.docs = docs
	s.blocks = blocks
	s.initialized = true
	return nil
}

// Close marks the store closed. Fragments are durable at write time, so
// there is nothing to flush.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.docs = nil
	s.blocks = nil
	return nil
}

// ready returns the collections if Initialize has completed.
func (s *Store) ready() (*collection, *collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, nil, domain.ErrNotInitialized
	}
	return s.docs, s.blocks, nil
}

// ==================== Metadata Writes (no-ops) ====================

// StoreDocumentMetadata is a no-op; metadata lives in the SQLite store.
func (s *Store) StoreDocumentMetadata(ctx context.Context, path string, meta domain.DocumentMetadata) error {
	_, _, err := s.ready()
	return err
}

// StoreDocumentContent is a no-op; content lives in the SQLite store.
func (s *Store) StoreDocumentContent(
	ctx context.Context,
	path string,
	meta domain.DocumentMetadata,
	plainText string,
) error {
	_, _, err := s.ready()
	return err
}

// ==================== Embedding Writes ====================

// StoreDocumentEmbeddings replaces the document-level vector for path.
// A vector of the wrong length rejects the whole call.
func (s *Store) StoreDocumentEmbeddings(ctx context.Context, path string, emb domain.DocumentEmbeddings) error {
	docs, _, err := s.ready()
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("vector store: %w: empty path", domain.ErrInvalidInput)
	}
	if len(emb.Vector) != s.cfg.Dimension {
		return &domain.DimensionError{Expected: s.cfg.Dimension, Actual: len(emb.Vector)}
	}

	created := emb.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return docs.replace(path, []record{{
		Path:      path,
		ModelName: emb.ModelName,
		Checksum:  emb.Checksum,
		CreatedAt: created.Unix(),
		Vector:    emb.Vector,
	}})
}

// StoreBlockEmbeddings replaces the block-level vectors for path. Blocks
// with a wrong-length vector are skipped with a warning; the remaining
// blocks are still stored.
func (s *Store) StoreBlockEmbeddings(ctx context.Context, path string, blocks []domain.BlockEmbedding) error {
	_, blockCol, err := s.ready()
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("vector store: %w: empty path", domain.ErrInvalidInput)
	}

	recs := make([]record, 0, len(blocks))
	for _, b := range blocks {
		if len(b.Vector) != s.cfg.Dimension {
			logger.Warn("columnar: skipping block %s of %s: dimension %d, want %d",
				b.BlockID, path, len(b.Vector), s.cfg.Dimension)
			continue
		}
		recs = append(recs, record{
			Path:      path,
			BlockID:   b.BlockID,
			BlockType: string(b.BlockType),
			Content:   b.Content,
			StartPos:  uint32(b.StartPos),
			EndPos:    uint32(b.EndPos),
			CreatedAt: b.CreatedAt.Unix(),
			Vector:    b.Vector,
		})
	}
	return blockCol.replace(path, recs)
}

// ==================== Search ====================

// SemanticSearch scans both collections and merges block evidence into
// document hits. Block evidence only ever raises a document's score.
func (s *Store) SemanticSearch(ctx context.Context, query domain.HybridQuery) ([]domain.SearchResult, error) {
	docs, blocks, err := s.ready()
	if err != nil {
		return nil, err
	}
	if len(query.Vector) == 0 || query.Limit <= 0 {
		return nil, nil
	}
	if len(query.Vector) != s.cfg.Dimension {
		return nil, &domain.DimensionError{Expected: s.cfg.Dimension, Actual: len(query.Vector)}
	}

	// Both legs over-fetch so block-boosted documents can still climb
	// into the final page.
	fetch := query.Limit * 2
	docHits := docs.search(query.Vector, fetch, query.Threshold)
	blockHits := blocks.search(query.Vector, fetch, query.Threshold)

	byPath := make(map[string]*domain.SearchResult, len(docHits))
	for _, hit := range docHits {
		byPath[hit.rec.Path] = &domain.SearchResult{
			Document: domain.DocumentRecord{
				Metadata: domain.DocumentMetadata{Path: hit.rec.Path},
			},
			Score:     hit.score,
			MatchType: domain.MatchSemantic,
		}
	}

	for _, hit := range blockHits {
		matched := domain.MatchedBlock{
			BlockID:   hit.rec.BlockID,
			BlockType: domain.BlockType(hit.rec.BlockType),
			Content:   hit.rec.Content,
			Score:     hit.score,
		}
		if existing, ok := byPath[hit.rec.Path]; ok {
			existing.Score += hit.score * blockMergeWeight
			existing.MatchedBlocks = append(existing.MatchedBlocks, matched)
			continue
		}
		byPath[hit.rec.Path] = &domain.SearchResult{
			Document: domain.DocumentRecord{
				Metadata: domain.DocumentMetadata{Path: hit.rec.Path},
			},
			Score:         hit.score * blockOnlyWeight,
			MatchType:     domain.MatchSemantic,
			MatchedBlocks: []domain.MatchedBlock{matched},
		}
	}

	results := make([]domain.SearchResult, 0, len(byPath))
	for _, r := range byPath {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.Metadata.Path < results[j].Document.Metadata.Path
	})
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// TextSearch is outside this backend's competence and returns no results.
func (s *Store) TextSearch(ctx context.Context, text string, limit int) ([]domain.SearchResult, error) {
	_, _, err := s.ready()
	return nil, err
}

// ==================== Reads ====================

// GetDocument returns (nil, nil); document records live in the SQLite store.
func (s *Store) GetDocument(ctx context.Context, path string) (*domain.DocumentRecord, error) {
	_, _, err := s.ready()
	return nil, err
}

// GetDocumentsByTag returns no results; tags live in the SQLite store.
func (s *Store) GetDocumentsByTag(ctx context.Context, tag string) ([]domain.DocumentRecord, error) {
	_, _, err := s.ready()
	return nil, err
}

// GetRecentDocuments returns no results; timestamps live in the SQLite store.
func (s *Store) GetRecentDocuments(ctx context.Context, limit int) ([]domain.DocumentRecord, error) {
	_, _, err := s.ready()
	return nil, err
}

// HasEmbeddings reports whether path has a live document-level vector.
func (s *Store) HasEmbeddings(path string) bool {
	docs, _, err := s.ready()
	if err != nil {
		return false
	}
	return docs.contains(path)
}

// ==================== Removal ====================

// RemoveDocument tombstones every vector derived from path.
func (s *Store) RemoveDocument(ctx context.Context, path string) error {
	docs, blocks, err := s.ready()
	if err != nil {
		return err
	}
	if err := docs.remove(path); err != nil {
		return err
	}
	return blocks.remove(path)
}

// ==================== Stats and Maintenance ====================

// Stats reports live row counts, an estimated embedding footprint and the
// actual on-disk size of the dataset directory.
func (s *Store) Stats(ctx context.Context) (*domain.StorageStats, error) {
	docs, blocks, err := s.ready()
	if err != nil {
		return nil, err
	}

	docRows := docs.liveRows()
	blockRows := blocks.liveRows()
	rowBytes := int64(s.cfg.Dimension*4 + rowOverheadBytes)

	stats := &domain.StorageStats{
		TotalDocuments:     docRows,
		TotalEmbeddings:    docRows,
		TotalBlocks:        blockRows,
		EmbeddingSizeBytes: int64(docRows+blockRows) * rowBytes,
	}

	var diskSize int64
	filepath.WalkDir(s.cfg.DatasetPath, func(path string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			diskSize += info.Size()
		}
		return nil
	})
	stats.StorageSizeBytes = diskSize

	s.mu.Lock()
	stats.LastOptimized = s.lastOptimized
	s.mu.Unlock()

	return stats, nil
}

// Optimize compacts both collections.
func (s *Store) Optimize(ctx context.Context) (*domain.OptimizeReport, error) {
	docs, blocks, err := s.ready()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &domain.OptimizeReport{}

	if err := docs.compact(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("vectors: documents: %v", err))
	}
	if err := blocks.compact(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("vectors: blocks: %v", err))
	}

	report.Duration = time.Since(start)
	if len(report.Errors) == 0 {
		report.VectorsOptimized = true
		s.mu.Lock()
		s.lastOptimized = time.Now().UTC()
		s.mu.Unlock()
	}
	return report, nil
}

// Backup copies the dataset directory under dir.
func (s *Store) Backup(ctx context.Context, dir string) (*domain.BackupReport, error) {
	if _, _, err := s.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	report := &domain.BackupReport{BackupPath: dir}

	target := filepath.Join(dir, "vectors")
	size, err := copyTree(s.cfg.DatasetPath, target)
	if err != nil {
		report.Duration = time.Since(start)
		report.Errors = append(report.Errors, fmt.Sprintf("vectors: %v", err))
		return report, nil
	}

	report.Duration = time.Since(start)
	report.TotalSizeBytes = size
	report.VectorsBackedUp = true
	return report, nil
}

// copyTree recursively copies src to dst, returning the bytes copied.
// In-flight temp files are skipped.
func copyTree(src, dst string) (int64, error) {
	var total int64
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(out, 0o700)
		}
		if filepath.Ext(path) == ".tmp" {
			return nil
		}
		n, err := copyFile(path, out)
		total += n
		return err
	})
	return total, err
}

// copyFile copies one file, returning the bytes copied.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector has zero norm.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
