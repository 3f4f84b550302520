package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/ksmigrate/internal/config"
	"github.com/lockplane/ksmigrate/internal/diagnostic"
	"github.com/lockplane/ksmigrate/internal/discovery"
	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/migration"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check discovered migrations against the ledger",
	Long: `Check discovered migrations against the ledger without applying anything.

Validation fails when the last migration failed, when an applied script was
edited since it ran, when two scripts share a version, or when a migration
older than the highest applied version is pending and out-of-order execution
is disabled. With the postgres backend every SQL script is also parsed and
syntax errors are reported with their line and column.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	candidates, err := discover(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Keyspace.Backend == keyspace.BackendPostgres {
		failed, err := checkScripts(cmd.ErrOrStderr(), cfg, candidates)
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("validation failed: %d script(s) have syntax errors", failed)
		}
	}

	eng, closeSession, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSession()

	plan, err := eng.Validate(ctx, candidates)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ %d migration(s) validated, %d pending\n", len(candidates), plan.Len())
	return nil
}

// checkScripts parses every discovered SQL script and prints its
// diagnostics. It returns the number of scripts with errors.
func checkScripts(w io.Writer, cfg config.Configuration, candidates []*migration.Descriptor) (int, error) {
	enc, err := discovery.LookupEncoding(cfg.Encoding)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, d := range candidates {
		if d.Type != migration.TypeSQL {
			continue
		}
		raw, err := os.ReadFile(d.Source)
		if err != nil {
			return 0, err
		}
		text, err := discovery.Decode(raw, enc)
		if err != nil {
			return 0, fmt.Errorf("failed to decode %s: %w", d.Source, err)
		}

		hasErrors := false
		for _, diag := range diagnostic.CheckPostgres(d.Source, text) {
			_, _ = fmt.Fprintln(w, diag.String())
			if diag.Severity == diagnostic.SeverityError {
				hasErrors = true
			}
		}
		if hasErrors {
			failed++
		}
	}
	return failed, nil
}
