package rag

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driven"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

// Options configures context assembly.
type Options struct {
	// TopK is the number of sources to retrieve.
	TopK int

	// Threshold is the minimum semantic similarity for vector hits.
	Threshold float32

	// MaxSourceChars truncates each source excerpt.
	MaxSourceChars int

	// SearchTimeout bounds the retrieval call.
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:           5,
		MaxSourceChars: 800,
		SearchTimeout:  5 * time.Second,
	}
}

// Source is one retrieved document backing the context.
type Source struct {
	// ID is the citation marker, "1"-based in retrieval order.
	ID      string
	Path    string
	Title   string
	Score   float32
	Excerpt string
	Context domain.SearchContext
}

// Bundle is the assembled retrieval context for a question.
type Bundle struct {
	Question string

	// Context is the formatted prompt block with [n] citations.
	Context string

	Sources []Source
}

// Builder retrieves and formats context bundles.
type Builder struct {
	engine   driven.StorageEngine
	embedder driven.EmbeddingService
	opts     Options
}

// New creates a Builder. embedder may be nil, in which case retrieval is
// text-only.
func New(engine driven.StorageEngine, embedder driven.EmbeddingService, opts Options) (*Builder, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required: %w", domain.ErrInvalidInput)
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.MaxSourceChars <= 0 {
		opts.MaxSourceChars = DefaultOptions().MaxSourceChars
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	return &Builder{engine: engine, embedder: embedder, opts: opts}, nil
}

// Build retrieves the top-K documents for the question and assembles the
// context bundle. An empty question is invalid; a question with no hits
// yields an empty bundle, not an error.
func (b *Builder) Build(ctx context.Context, question string) (*Bundle, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question: %w", domain.ErrInvalidInput)
	}

	query := domain.HybridQuery{
		Text:      question,
		Limit:     b.opts.TopK,
		Threshold: b.opts.Threshold,
	}
	if b.embedder != nil {
		vector, err := b.embedder.Embed(ctx, question)
		if err != nil {
			// Retrieval degrades to text-only rather than failing.
			logger.Warn("Query embedding failed, using text retrieval: %v", err)
		} else {
			query.Vector = vector
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, b.opts.SearchTimeout)
	defer cancel()

	results, err := b.engine.SemanticSearch(searchCtx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	logger.Debug("Retrieved %d sources for context", len(results))

	sources := b.buildSources(results)
	return &Bundle{
		Question: question,
		Context:  formatContext(sources),
		Sources:  sources,
	}, nil
}

// buildSources converts search results into citation sources and fills
// each source's knowledge bundle from the result set itself.
func (b *Builder) buildSources(results []domain.SearchResult) []Source {
	sources := make([]Source, 0, len(results))
	for i, r := range results {
		sources = append(sources, Source{
			ID:      fmt.Sprintf("%d", i+1),
			Path:    r.Document.Metadata.Path,
			Title:   r.Document.Metadata.Title,
			Score:   r.Score,
			Excerpt: b.excerpt(r),
			Context: relatedKnowledge(r, results),
		})
	}
	return sources
}

// excerpt picks the best available text for a source: the store snippet,
// then the matched content, then the strongest matched block.
func (b *Builder) excerpt(r domain.SearchResult) string {
	text := r.Document.Snippet
	if text == "" {
		text = r.MatchedContent
	}
	if text == "" && len(r.MatchedBlocks) > 0 {
		text = r.MatchedBlocks[0].Content
	}
	if len(text) > b.opts.MaxSourceChars {
		cut := b.opts.MaxSourceChars
		for cut > 0 && text[cut-1] >= 0x80 && text[cut-1] < 0xC0 {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

// relatedKnowledge derives the surrounding-knowledge bundle for one hit
// from its co-retrieved neighbours: shared tags, sibling documents, and
// neighbours whose wikilinks point back at the hit.
func relatedKnowledge(hit domain.SearchResult, results []domain.SearchResult) domain.SearchContext {
	sc := domain.SearchContext{
		SurroundingContent: hit.Document.Snippet,
	}

	tags := make(map[string]struct{})
	for _, other := range results {
		if other.Document.Metadata.Path == hit.Document.Metadata.Path {
			continue
		}
		sc.RelatedDocuments = append(sc.RelatedDocuments, other.Document.Metadata.Path)
		for _, tag := range other.Document.Metadata.Tags {
			tags[tag] = struct{}{}
		}
		if linksTo(other.Document.Metadata, hit.Document.Metadata) {
			sc.Backlinks = append(sc.Backlinks, other.Document.Metadata.Path)
		}
	}

	for tag := range tags {
		sc.RelatedTags = append(sc.RelatedTags, tag)
	}
	sort.Strings(sc.RelatedTags)
	return sc
}

// linksTo reports whether from's outbound wikilinks resolve to target.
// Wikilink targets name a note by title or by path stem.
func linksTo(from, target domain.DocumentMetadata) bool {
	stem := strings.TrimSuffix(path.Base(target.Path), path.Ext(target.Path))
	for _, link := range from.Links {
		if strings.EqualFold(link, target.Title) || strings.EqualFold(link, stem) ||
			link == target.Path {
			return true
		}
	}
	return false
}

// formatContext renders the sources as a prompt context block.
func formatContext(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Answer using ONLY the sources below. Cite sources as [n].\n\n")
	for _, src := range sources {
		fmt.Fprintf(&sb, "[%s] %s (%s, score %.3f)\n", src.ID, src.Title, src.Path, src.Score)
		if src.Excerpt != "" {
			sb.WriteString(src.Excerpt)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
