package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// defaultSearchLimit applies when the caller passes no limit.
const defaultSearchLimit = 10

// SearchService implements hybrid search over the storage engine.
type SearchService struct {
	engine driven.StorageEngine

	// embedder is optional; without it every search is text-only.
	embedder driven.EmbeddingService
}

// NewSearchService creates a new search service.
func NewSearchService(engine driven.StorageEngine, embedder driven.EmbeddingService) *SearchService {
	return &SearchService{
		engine:   engine,
		embedder: embedder,
	}
}

// Search performs hybrid search across all indexed documents. The query
// text is embedded for the semantic leg when an embedding service is
// configured and TextOnly is not set; an embedding failure degrades to
// text-only search rather than failing the request.
func (s *SearchService) Search(ctx context.Context, query string, opts driving.SearchOptions) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	hq := domain.HybridQuery{
		Text:      query,
		Limit:     limit,
		Threshold: opts.Threshold,
	}

	if s.embedder != nil && !opts.TextOnly {
		vector, err := s.embedder.Embed(ctx, query)
		if err != nil {
			logger.Warn("Query embedding failed, falling back to text search: %v", err)
		} else {
			hq.Vector = vector
			if opts.SemanticOnly {
				hq.Text = ""
			}
		}
	}

	results, err := s.engine.SemanticSearch(ctx, hq)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	logger.Debug("Search %q returned %d results", query, len(results))
	return results, nil
}
