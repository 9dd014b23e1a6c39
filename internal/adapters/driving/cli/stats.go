package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vault statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if vaultService == nil {
		return errors.New("vault service not configured")
	}

	analytics, err := vaultService.Analytics(cmd.Context())
	if err != nil {
		return fmt.Errorf("collecting stats failed: %w", err)
	}

	cmd.Printf("Documents:     %d\n", analytics.TotalDocuments)
	cmd.Printf("Storage:       %.1f MB (metadata %.1f MB, vectors %.1f MB)\n",
		analytics.Breakdown.TotalSizeMB,
		analytics.Breakdown.MetadataSizeMB,
		analytics.Breakdown.VectorSizeMB)
	cmd.Printf("Queries:       %d (cache hit rate %.0f%%)\n",
		analytics.TotalQueries, analytics.CacheHitRate*100)
	if analytics.AvgQueryTimeMs > 0 {
		cmd.Printf("Avg latency:   %.1f ms\n", analytics.AvgQueryTimeMs)
	}

	if len(analytics.TopTags) > 0 {
		cmd.Println("\nTop tags:")
		for _, tag := range analytics.TopTags {
			cmd.Printf("  #%-20s %d\n", tag.Tag, tag.Count)
		}
	}

	if len(analytics.RecentActivity) > 0 {
		cmd.Println("\nRecent activity:")
		for _, act := range analytics.RecentActivity {
			cmd.Printf("  %s  %-8s %s\n",
				act.Timestamp.Format("2006-01-02 15:04"), act.Activity, act.DocumentPath)
		}
	}
	return nil
}
