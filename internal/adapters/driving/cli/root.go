// Package cli implements the mnemo command-line interface. Commands are
// thin adapters over the driving ports; service wiring happens in
// cmd/mnemo before Execute.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mnemo-labs/mnemo-cli/internal/core/ports/driving"
	"github.com/mnemo-labs/mnemo-cli/internal/logger"
)

var (
	verbose bool
	version = "dev"

	searchService driving.SearchService
	vaultService  driving.VaultService
	indexService  driving.IndexService
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Personal knowledge vault with hybrid search",
	Long: `Mnemo indexes a markdown vault into a local hybrid storage engine
and searches it by keyword (BM25), by meaning (vectors), or both.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices injects the application services the commands drive.
func SetServices(search driving.SearchService, vault driving.VaultService, index driving.IndexService) {
	searchService = search
	vaultService = vault
	indexService = index
}

// SetVersion sets the version string reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command. ctx is cancelled on interrupt so that
// long-running commands (index --watch) stop cleanly.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
