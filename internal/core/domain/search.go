package domain

// MatchType records which search strategy produced a result.
type MatchType string

// Recognised match types.
const (
	MatchSemantic MatchType = "semantic"
	MatchFullText MatchType = "full_text"
	MatchTag      MatchType = "tag"
	MatchTitle    MatchType = "title"
	MatchHybrid   MatchType = "hybrid"
)

// SearchResult is a single ranked hit returned by a search operation.
type SearchResult struct {
	// Document is the matched document record.
	Document DocumentRecord

	// Score is the fused relevance score. Higher is better.
	Score float32

	// MatchType records the strategy (or fusion) that produced the hit.
	MatchType MatchType

	// MatchedContent is the query text or block content that matched.
	MatchedContent string

	// MatchedBlocks are block-level hits belonging to this document.
	MatchedBlocks []MatchedBlock

	// Context is the surrounding-knowledge bundle for the hit.
	Context SearchContext
}

// MatchedBlock is a block-level hit inside a SearchResult.
type MatchedBlock struct {
	BlockID   string
	BlockType BlockType
	Content   string
	Score     float32
	Highlight string
}

// SearchContext bundles knowledge surrounding a hit: nearby text, related
// documents and tags, and documents linking back to the hit.
type SearchContext struct {
	SurroundingContent string
	RelatedDocuments   []string
	RelatedTags        []string
	Backlinks          []string
}

// HybridQuery describes a hybrid search request. Either Vector or Text (or
// both) must be present; an empty query short-circuits to empty results.
type HybridQuery struct {
	// Vector is the optional semantic query embedding.
	Vector []float32

	// Text is the optional full-text query string.
	Text string

	// Limit caps the number of fused results. Non-positive limits
	// short-circuit to empty results.
	Limit int

	// Threshold is the minimum semantic similarity for vector hits.
	Threshold float32
}

// IsHybrid reports whether the request genuinely carries both a vector and
// text, which enables the hybrid score boost.
func (q HybridQuery) IsHybrid() bool {
	return len(q.Vector) > 0 && q.Text != ""
}

// IsEmpty reports whether the query carries neither a vector nor text.
func (q HybridQuery) IsEmpty() bool {
	return len(q.Vector) == 0 && q.Text == ""
}
