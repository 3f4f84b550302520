package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lockplane/ksmigrate/internal/migration"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations to the keyspace",
	Long: `Apply every pending migration up to the target version, in version order.

The run stops at the first failing migration. A failure is recorded in the
ledger and blocks later runs until "ksmigrate repair" is used. Interrupting a
run lets the current migration finish and skips the rest.

ksmigrate does not lock the keyspace. Never run two migrators against the same
keyspace at the same time; serialize deployments outside ksmigrate.`,
	Example: `  # Apply everything
  ksmigrate migrate

  # Apply up to 2.1 in the staging environment
  ksmigrate migrate --env staging --target 2.1`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()

	candidates, err := discover(ctx, cfg, logger)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "🔍 Found %d migration(s) in %v\n", len(candidates), cfg.ScriptsLocations)

	eng, closeSession, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSession()

	result, err := eng.Migrate(ctx, candidates)
	if result != nil {
		for _, r := range result.Records {
			mark := "✓"
			if !r.Success {
				mark = "✗"
			}
			_, _ = fmt.Fprintf(out, "  %s %s %s (%dms)\n", mark, r.Version, r.Description, r.ExecutionTime.Milliseconds())
		}
	}
	if err != nil {
		var dirty *migration.DirtyLedgerError
		if errors.As(err, &dirty) {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "💡 Fix the failed script, then run: ksmigrate repair")
		}
		return err
	}

	if result.MigrationsApplied == 0 {
		_, _ = fmt.Fprintf(out, "✅ Keyspace %s is up to date\n", cfg.Keyspace.Name)
		return nil
	}
	_, _ = fmt.Fprintf(out, "✅ Applied %d migration(s)\n", result.MigrationsApplied)
	return nil
}
