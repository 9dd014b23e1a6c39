package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var indexWatch bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the vault",
	Long: `Walks the vault directory and indexes every changed file.
With --watch, keeps running and reindexes files as they change.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexWatch, "watch", "w", false, "watch the vault for changes")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	report, err := indexService.IndexVault(cmd.Context())
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	cmd.Printf("Scanned %d files: %d indexed, %d skipped, %d failed (%s)\n",
		report.FilesScanned, report.FilesIndexed, report.FilesSkipped,
		report.FilesFailed, report.Duration.Round(1e6))

	if !indexWatch {
		return nil
	}

	cmd.Println("Watching for changes, press Ctrl-C to stop.")
	if err := indexService.Watch(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
