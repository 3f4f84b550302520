package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"code.cloudfoundry.org/lager/v3"
	"github.com/spf13/cobra"

	"github.com/lockplane/ksmigrate/internal/config"
	"github.com/lockplane/ksmigrate/internal/discovery"
	"github.com/lockplane/ksmigrate/internal/engine"
	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/ledger"
	"github.com/lockplane/ksmigrate/internal/migration"
)

var goMigrations []discovery.GoMigration

// Register adds a migration written in Go. It must be called before Execute.
func Register(m discovery.GoMigration) {
	goMigrations = append(goMigrations, m)
}

func newLogger(w io.Writer) lager.Logger {
	level := lager.INFO
	if verbose {
		level = lager.DEBUG
	}
	logger := lager.NewLogger("ksmigrate")
	logger.RegisterSink(lager.NewPrettySink(w, level))
	return logger
}

// collectFlags returns the properties set on the command line. Named flags
// win over -D for the same property.
func collectFlags(cmd *cobra.Command) (map[string]string, error) {
	out := make(map[string]string, len(properties))
	known := make(map[string]bool)
	for _, key := range config.Properties() {
		known[key] = true
	}
	for key, value := range properties {
		if !known[key] {
			return nil, fmt.Errorf("unknown property %q", key)
		}
		out[key] = value
	}

	names := make([]string, 0, len(propertyFlags))
	for name := range propertyFlags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		out[propertyFlags[name]] = flag.Value.String()
	}
	return out, nil
}

// loadConfiguration resolves the configuration for the selected environment.
func loadConfiguration(cmd *cobra.Command) (config.Configuration, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Configuration{}, fmt.Errorf("failed to load config: %w", err)
	}
	flags, err := collectFlags(cmd)
	if err != nil {
		return config.Configuration{}, err
	}
	resolved, err := config.Resolve(cfg, config.ResolveOptions{
		Environment: envName,
		Flags:       flags,
	})
	if err != nil {
		if cfg.ConfigFilePath == "" {
			printConfigNotFound(cmd.ErrOrStderr())
		}
		return config.Configuration{}, err
	}
	return resolved, nil
}

func discover(ctx context.Context, cfg config.Configuration, logger lager.Logger) ([]*migration.Descriptor, error) {
	scanner := &discovery.Scanner{
		Locations:    cfg.ScriptsLocations,
		Encoding:     cfg.Encoding,
		Backend:      cfg.Keyspace.Backend,
		GoMigrations: goMigrations,
		Logger:       logger,
	}
	return scanner.Scan(ctx)
}

// openEngine connects to the keyspace. The returned close function releases
// the session.
func openEngine(ctx context.Context, cfg config.Configuration, logger lager.Logger) (*engine.Engine, func(), error) {
	session, err := keyspace.Open(ctx, cfg.KeyspaceOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s keyspace: %w", cfg.Keyspace.Backend, err)
	}
	store, err := ledger.Open(session, cfg.Ledger.Table)
	if err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	return engine.New(session, store, cfg, logger), func() { _ = session.Close() }, nil
}

// setup is the common start of every command that talks to the keyspace.
func setup(cmd *cobra.Command) (context.Context, config.Configuration, lager.Logger, error) {
	cfg, err := loadConfiguration(cmd)
	if err != nil {
		return nil, config.Configuration{}, nil, err
	}
	return cmd.Context(), cfg, newLogger(cmd.ErrOrStderr()), nil
}

// printConfigNotFound prints a helpful message when ksmigrate.toml is not found
func printConfigNotFound(w io.Writer) {
	_, _ = fmt.Fprintf(w, `%s not found. Run "ksmigrate init" or create one that looks like:

[environments.local]
keyspace = "app"
hosts = ["127.0.0.1:9042"]

`, config.ConfigFileName)
}
