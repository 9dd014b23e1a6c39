package driving

import (
	"context"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

// SearchOptions controls a search request issued through the driving port.
type SearchOptions struct {
	// Limit caps the number of results. Zero means the default of 10.
	Limit int

	// Threshold is the minimum semantic similarity for vector hits.
	Threshold float32

	// TextOnly disables the semantic leg even when an embedding service
	// is configured.
	TextOnly bool

	// SemanticOnly disables the full-text leg. Ignored when no embedding
	// service is configured.
	SemanticOnly bool
}

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search performs hybrid search across all indexed documents.
	Search(ctx context.Context, query string, opts SearchOptions) ([]domain.SearchResult, error)
}
