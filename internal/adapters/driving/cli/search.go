package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-labs/mnemo-cli/internal/core/domain"
	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driving"
)

var (
	searchLimit     int
	searchThreshold float32
	searchTextOnly  bool
	searchSemantic  bool
	searchJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs hybrid search across all indexed documents.
Combines keyword (BM25) and semantic (vector) search for best results.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", 0, "minimum semantic similarity")
	searchCmd.Flags().BoolVar(&searchTextOnly, "text-only", false, "keyword search only")
	searchCmd.Flags().BoolVar(&searchSemantic, "semantic", false, "semantic search only")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}
	if searchTextOnly && searchSemantic {
		return errors.New("--text-only and --semantic are mutually exclusive")
	}

	results, err := searchService.Search(cmd.Context(), args[0], driving.SearchOptions{
		Limit:        searchLimit,
		Threshold:    searchThreshold,
		TextOnly:     searchTextOnly,
		SemanticOnly: searchSemantic,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		meta := results[i].Document.Metadata
		title := meta.Title
		if title == "" {
			title = meta.Path
		}

		cmd.Printf("  [%d] %s (%.2f, %s)\n", i+1, title, results[i].Score, results[i].MatchType)
		cmd.Printf("      %s\n", meta.Path)
		if snippet := results[i].Document.Snippet; snippet != "" {
			cmd.Printf("      %s\n", snippet)
		}
		cmd.Println()
	}
	return nil
}
