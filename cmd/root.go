package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lockplane/ksmigrate/internal/config"
)

var version = getVersion()

var rootCmd = &cobra.Command{
	Use:   "ksmigrate",
	Short: "Versioned schema migrations for Cassandra keyspaces",
	Long: `ksmigrate applies versioned CQL (or SQL) scripts to a keyspace in order and
records every attempt in a ledger table, so repeated runs only apply what is new.`,
	Version:      version,
	SilenceUsage: true,
}

// Global flags. Property flags are only applied when set on the command line.
var (
	envName    string
	verbose    bool
	properties map[string]string
)

// propertyFlags maps shorthand flags to configuration properties.
var propertyFlags = map[string]string{
	"backend":            config.PropBackend,
	"keyspace":           config.PropKeyspace,
	"hosts":              config.PropHosts,
	"url":                config.PropURL,
	"consistency":        config.PropConsistency,
	"locations":          config.PropLocations,
	"encoding":           config.PropEncoding,
	"target":             config.PropTarget,
	"allow-out-of-order": config.PropAllowOutOfOrder,
	"table":              config.PropTable,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envName, "env", "", "Environment from ksmigrate.toml (default: default_environment or local)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	flags.StringToStringVarP(&properties, "property", "D", nil, "Set a property, e.g. -D ksmigrate.version.target=2.0")

	flags.String("backend", "", "Keyspace backend: cassandra, postgres, sqlite or libsql")
	flags.String("keyspace", "", "Keyspace (or schema) name")
	flags.String("hosts", "", "Comma separated Cassandra contact points")
	flags.String("url", "", "Connection URL for SQL backends")
	flags.String("consistency", "", "Cassandra consistency level")
	flags.String("locations", "", "Comma separated script locations")
	flags.String("encoding", "", "Script encoding")
	flags.String("target", "", "Highest version to migrate to, or latest")
	flags.String("allow-out-of-order", "", "Apply migrations older than the highest applied version (true or false)")
	flags.String("table", "", "Ledger table name")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
