package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/ksmigrate/internal/wizard"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new ksmigrate config",
	Long: `Initialize a new ksmigrate.toml and scripts directory in the current directory.

Without --yes an interactive wizard asks for the connection details. With --yes
the --backend, --keyspace, --hosts and --url flags are used as given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite existing ksmigrate.toml file")
	initCmd.Flags().Bool("yes", false, "Skip the wizard and use defaults and flags")
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	yes, _ := cmd.Flags().GetBool("yes")

	if !yes {
		return wizard.Run(force)
	}

	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	env := defaultInitEnvironment(cmd)
	result, err := wizard.GenerateFiles(dir, env, force)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "✓ Created %s\n", result.ConfigPath)
	if result.ScriptsDirCreated {
		_, _ = fmt.Fprintf(out, "✓ Created %s\n", result.ScriptsDir)
	}
	return nil
}

// defaultInitEnvironment builds the environment written by init --yes.
func defaultInitEnvironment(cmd *cobra.Command) wizard.EnvironmentInput {
	value := func(name, fallback string) string {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			return f.Value.String()
		}
		return fallback
	}

	env := wizard.EnvironmentInput{
		Name:            "local",
		Backend:         value("backend", "cassandra"),
		ScriptsLocation: value("locations", "db/migration"),
	}
	if envName != "" {
		env.Name = envName
	}
	switch env.Backend {
	case "cassandra":
		env.Hosts = value("hosts", "127.0.0.1:9042")
		env.Keyspace = value("keyspace", "app")
	case "sqlite":
		env.URL = value("url", "ksmigrate.db")
	default:
		env.URL = value("url", "")
		env.Keyspace = value("keyspace", "")
	}
	return env
}
