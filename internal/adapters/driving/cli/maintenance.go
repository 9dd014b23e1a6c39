package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compact and optimize the storage backends",
	Args:  cobra.NoArgs,
	RunE:  runOptimize,
}

var backupCmd = &cobra.Command{
	Use:   "backup [directory]",
	Short: "Back up the storage backends",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackup,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(backupCmd)
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	if vaultService == nil {
		return errors.New("vault service not configured")
	}

	report, err := vaultService.Optimize(cmd.Context())
	if err != nil {
		return fmt.Errorf("optimize failed: %w", err)
	}

	if report.OK() {
		cmd.Printf("Optimized both backends in %s.\n", report.Duration.Round(1e6))
		return nil
	}
	cmd.Println("Optimize finished with errors:")
	for _, msg := range report.Errors {
		cmd.Printf("  %s\n", msg)
	}
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	if vaultService == nil {
		return errors.New("vault service not configured")
	}

	report, err := vaultService.Backup(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	if report.OK() {
		cmd.Printf("Backed up %.1f MB to %s in %s.\n",
			float64(report.TotalSizeBytes)/(1024*1024), args[0],
			report.Duration.Round(1e6))
		return nil
	}
	cmd.Println("Backup finished with errors:")
	for _, msg := range report.Errors {
		cmd.Printf("  %s\n", msg)
	}
	return nil
}
