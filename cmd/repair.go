package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(repairCmd)
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Clear a failed migration so it can be retried",
	Long: `Append a REPAIR record for the most recent failed migration.

The failed record stays in the ledger. Statements of the failed script that
did run are not undone; clean them up by hand or make the corrected script
tolerate them before running migrate again.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	eng, closeSession, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSession()

	marker, repaired, err := eng.Repair(ctx)
	if err != nil {
		return err
	}
	if !repaired {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "✓ Nothing to repair")
		return nil
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✅ Repaired failed migration %s (%s); it will be retried by the next migrate\n", marker.Version, marker.Description)
	return nil
}
