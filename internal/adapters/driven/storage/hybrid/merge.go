package hybrid

import (
	"sort"
	"time"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
)

const (
	// textWeight scales the text leg's scores during fusion.
	textWeight = 0.8

	// hybridBoost multiplies documents matched by both legs of a true
	// hybrid query (vector and text supplied).
	hybridBoost = 1.2

	// Recency boosts reward freshly modified documents.
	recencyWeekBoost  = 1.10
	recencyMonthBoost = 1.05
)

// fuse merges the vector and text result lists into one unsorted list.
//
// Scoring: vector-only hits keep their native similarity; text-only hits
// are scaled by textWeight; hits present in both legs score
// (semantic + text*textWeight), multiplied by hybridBoost when the query
// genuinely carried both a vector and text. Under a true hybrid query
// every result is reported as a hybrid match.
func fuse(vectorRes, textRes []domain.SearchResult, hybrid bool) []domain.SearchResult {
	merged := make(map[string]*domain.SearchResult, len(vectorRes)+len(textRes))
	order := make([]string, 0, len(vectorRes)+len(textRes))

	for i := range vectorRes {
		r := vectorRes[i]
		path := r.Document.Metadata.Path
		merged[path] = &r
		order = append(order, path)
	}

	for i := range textRes {
		r := textRes[i]
		path := r.Document.Metadata.Path
		if existing, ok := merged[path]; ok {
			// The text leg carries the full document record and
			// snippet; keep it and preserve the vector leg's blocks.
			score := existing.Score + r.Score*textWeight
			if hybrid {
				score *= hybridBoost
			}
			r.Score = score
			r.MatchedBlocks = existing.MatchedBlocks
			*existing = r
			continue
		}
		r.Score *= textWeight
		merged[path] = &r
		order = append(order, path)
	}

	results := make([]domain.SearchResult, 0, len(order))
	for _, path := range order {
		r := *merged[path]
		if hybrid {
			r.MatchType = domain.MatchHybrid
		}
		results = append(results, r)
	}
	return results
}

// applyRecencyBoost multiplies scores of recently modified documents.
// Documents without a modification time are left alone.
func applyRecencyBoost(results []domain.SearchResult, now time.Time) {
	for i := range results {
		modified := results[i].Document.Metadata.ModifiedAt
		if modified.IsZero() {
			continue
		}
		age := now.Sub(modified)
		switch {
		case age <= 7*24*time.Hour:
			results[i].Score *= recencyWeekBoost
		case age <= 30*24*time.Hour:
			results[i].Score *= recencyMonthBoost
		}
	}
}

// rankAndTruncate orders results best first, breaking score ties on
// ascending path, and cuts the list to limit.
func rankAndTruncate(results []domain.SearchResult, limit int) []domain.SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.Metadata.Path < results[j].Document.Metadata.Path
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
