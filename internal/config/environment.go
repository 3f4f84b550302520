package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ResolveOptions selects an environment and supplies overrides that sit
// above the configuration file.
type ResolveOptions struct {
	// Environment names the [environments.<name>] table; "" uses the
	// configured default.
	Environment string

	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(key string) (string, bool)

	// Flags holds property values given on the command line.
	Flags map[string]string
}

// Resolve builds the Configuration for one run. Later sources win:
// defaults, the environment table of ksmigrate.toml, .env.<name>, the
// process environment, then command line flags. Every value is parsed here;
// an invalid one fails with *InvalidPropertyError.
func Resolve(cfg *Config, opts ResolveOptions) (Configuration, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	envName := strings.TrimSpace(opts.Environment)
	if envName == "" {
		if cfg.DefaultEnvironment != "" {
			envName = cfg.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	envConfig, envExists := cfg.Environments[envName]

	resolved := Default()
	resolved.Environment = envName
	resolved.ConfigFilePath = cfg.ConfigFilePath

	if err := resolved.apply(fileProperties(envConfig)); err != nil {
		return Configuration{}, err
	}

	dotenvPath, values, err := readDotenv(cfg, envName)
	if err != nil {
		return Configuration{}, err
	}
	if values != nil {
		resolved.DotenvPath = dotenvPath
		if err := resolved.apply(envProperties(func(key string) (string, bool) {
			v, ok := values[key]
			return v, ok
		})); err != nil {
			return Configuration{}, err
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := resolved.apply(envProperties(lookup)); err != nil {
		return Configuration{}, err
	}

	if err := resolved.apply(opts.Flags); err != nil {
		return Configuration{}, err
	}

	if len(cfg.Environments) > 0 && !envExists && values == nil {
		return Configuration{}, fmt.Errorf("environment %q not defined in %s and %s not found", envName, ConfigFileName, dotenvPath)
	}

	resolved.ScriptsLocations = resolveLocations(resolved.ScriptsLocations, cfg.ConfigDir())

	if err := resolved.Validate(); err != nil {
		return Configuration{}, err
	}
	return resolved, nil
}

// apply sets properties in the fixed order of Properties so results do not
// depend on map iteration.
func (c *Configuration) apply(props map[string]string) error {
	for _, key := range Properties() {
		value, ok := props[key]
		if !ok {
			continue
		}
		if err := c.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func fileProperties(ec EnvironmentConfig) map[string]string {
	props := map[string]string{
		PropBackend:     ec.Backend,
		PropKeyspace:    ec.Keyspace,
		PropHosts:       strings.Join(ec.Hosts, ","),
		PropURL:         ec.URL,
		PropUsername:    ec.Username,
		PropPassword:    ec.Password,
		PropConsistency: ec.Consistency,
		PropTimeout:     ec.Timeout,
		PropLocations:   strings.Join(ec.ScriptsLocations, ","),
		PropEncoding:    ec.Encoding,
		PropTarget:      ec.Target,
		PropTable:       ec.Table,
		PropInstalledBy: ec.InstalledBy,
	}
	if ec.AllowOutOfOrder != nil {
		props[PropAllowOutOfOrder] = strconv.FormatBool(*ec.AllowOutOfOrder)
	}
	return props
}

func envProperties(lookup func(string) (string, bool)) map[string]string {
	props := make(map[string]string)
	for _, key := range Properties() {
		if value, ok := lookup(EnvName(key)); ok {
			props[key] = value
		}
	}
	return props
}

// readDotenv loads .env.<name> next to the configuration file, or in the
// working directory when there is none. values is nil when the file is
// absent.
func readDotenv(cfg *Config, envName string) (string, map[string]string, error) {
	baseDir := cfg.ConfigDir()
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	dotenvPath := filepath.Join(baseDir, ".env."+envName)

	info, err := os.Stat(dotenvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return dotenvPath, nil, nil
		}
		return dotenvPath, nil, fmt.Errorf("failed to access %s: %w", dotenvPath, err)
	}
	if info.IsDir() {
		return dotenvPath, nil, nil
	}

	values, err := godotenv.Read(dotenvPath)
	if err != nil {
		return dotenvPath, nil, fmt.Errorf("failed to read %s: %w", dotenvPath, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return dotenvPath, values, nil
}

// resolveLocations makes relative filesystem locations relative to the
// directory of the configuration file.
func resolveLocations(locations []string, baseDir string) []string {
	if baseDir == "" {
		return locations
	}
	out := make([]string, len(locations))
	for i, loc := range locations {
		path, prefixed := strings.CutPrefix(loc, "filesystem:")
		if (strings.Contains(path, ":") && !prefixed) || filepath.IsAbs(path) {
			out[i] = loc
			continue
		}
		out[i] = "filesystem:" + filepath.Join(baseDir, path)
	}
	return out
}
