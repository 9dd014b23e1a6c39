package driven

import (
	"context"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

// StorageEngine is the capability surface shared by every storage backend.
//
// Three implementations exist: the SQLite metadata store, the columnar
// vector store, and the hybrid engine composing both. Each backend
// implements the full surface; operations outside a backend's competence
// return empty results rather than errors, so callers can treat any
// implementation uniformly.
type StorageEngine interface {
	// Initialize prepares the backend for use. It must be called exactly
	// once before any other operation; until it succeeds other calls
	// fail with domain.ErrNotInitialized.
	Initialize(ctx context.Context) error

	// StoreDocumentMetadata stores or updates a document's metadata,
	// keyed by path. A write carrying the same path, content hash and
	// size as the stored row is a no-op.
	StoreDocumentMetadata(ctx context.Context, path string, meta domain.DocumentMetadata) error

	// StoreDocumentContent stores the document's searchable plain text
	// alongside its metadata.
	StoreDocumentContent(ctx context.Context, path string, meta domain.DocumentMetadata, plainText string) error

	// StoreDocumentEmbeddings stores the document-level embedding,
	// replacing any previous embedding for the path.
	StoreDocumentEmbeddings(ctx context.Context, path string, emb domain.DocumentEmbeddings) error

	// StoreBlockEmbeddings stores block-level embeddings for a document,
	// replacing any previous blocks for the path. Blocks whose vector
	// length does not match the configured dimension are skipped with a
	// warning; the remaining blocks are still stored.
	StoreBlockEmbeddings(ctx context.Context, path string, blocks []domain.BlockEmbedding) error

	// SemanticSearch executes a vector, text or hybrid query and returns
	// fused results ordered by descending score. An empty query returns
	// empty results.
	SemanticSearch(ctx context.Context, query domain.HybridQuery) ([]domain.SearchResult, error)

	// TextSearch executes a full-text query and returns results ordered
	// by descending relevance.
	TextSearch(ctx context.Context, text string, limit int) ([]domain.SearchResult, error)

	// GetDocument retrieves a document record by path. A missing path
	// returns (nil, nil), not an error.
	GetDocument(ctx context.Context, path string) (*domain.DocumentRecord, error)

	// GetDocumentsByTag returns documents carrying the given tag.
	GetDocumentsByTag(ctx context.Context, tag string) ([]domain.DocumentRecord, error)

	// GetRecentDocuments returns the most recently modified documents.
	GetRecentDocuments(ctx context.Context, limit int) ([]domain.DocumentRecord, error)

	// RemoveDocument removes a document and everything derived from it
	// from every backend. Removing an unknown path is a no-op.
	RemoveDocument(ctx context.Context, path string) error

	// Stats reports the backend's counts, sizes and runtime metrics.
	Stats(ctx context.Context) (*domain.StorageStats, error)

	// Optimize compacts and re-analyzes the backend's storage.
	Optimize(ctx context.Context) (*domain.OptimizeReport, error)

	// Backup writes a consistent copy of the backend's data under dir.
	Backup(ctx context.Context, dir string) (*domain.BackupReport, error)

	// Close releases resources. The engine is unusable afterwards.
	Close() error
}
