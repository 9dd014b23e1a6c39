package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var recentLimit int

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently modified documents",
	Args:  cobra.NoArgs,
	RunE:  runRecent,
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "maximum number of documents")
	rootCmd.AddCommand(recentCmd)
}

func runRecent(cmd *cobra.Command, _ []string) error {
	if vaultService == nil {
		return errors.New("vault service not configured")
	}

	docs, err := vaultService.Recent(cmd.Context(), recentLimit)
	if err != nil {
		return fmt.Errorf("listing recent documents failed: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}
	for _, doc := range docs {
		cmd.Printf("  %s  %s (%s)\n",
			doc.Metadata.ModifiedAt.Format("2006-01-02 15:04"),
			doc.Metadata.Title, doc.Metadata.Path)
	}
	return nil
}
