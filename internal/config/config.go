package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
)

// ConfigFileName is the project configuration file looked up by LoadConfig.
const ConfigFileName = "ksmigrate.toml"

const defaultEnvironmentName = "local"

//go:embed schema.json
var configSchema []byte

// EnvironmentConfig describes a single named environment from ksmigrate.toml.
type EnvironmentConfig struct {
	Backend     string   `toml:"backend,omitempty"`
	Keyspace    string   `toml:"keyspace,omitempty"`
	Hosts       []string `toml:"hosts,omitempty"`
	URL         string   `toml:"url,omitempty"`
	Username    string   `toml:"username,omitempty"`
	Password    string   `toml:"password,omitempty"`
	Consistency string   `toml:"consistency,omitempty"`
	Timeout     string   `toml:"timeout,omitempty"`

	ScriptsLocations []string `toml:"scripts_locations,omitempty"`
	Encoding         string   `toml:"encoding,omitempty"`
	AllowOutOfOrder  *bool    `toml:"allow_out_of_order,omitempty"`
	Target           string   `toml:"target,omitempty"`

	Table       string `toml:"table,omitempty"`
	InstalledBy string `toml:"installed_by,omitempty"`
}

type Config struct {
	DefaultEnvironment string                       `toml:"default_environment,omitempty"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	ConfigFilePath     string                       `toml:"-"`

	configDir string
}

// ConfigDir is the directory holding the configuration file, or "" when no
// file was found.
func (c *Config) ConfigDir() string {
	if c.configDir != "" {
		return c.configDir
	}
	if c.ConfigFilePath != "" {
		return filepath.Dir(c.ConfigFilePath)
	}
	return ""
}

// LoadConfig finds ksmigrate.toml in the working directory or one of its
// parents, stopping at the project root. A missing file yields an empty
// Config.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom is LoadConfig starting at dir.
func LoadConfigFrom(startDir string) (*Config, error) {
	dir := startDir
	for {
		// Check if ksmigrate.toml exists in current directory
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return ReadConfigFile(configPath)
		}

		// Check if we've reached a project boundary
		if isProjectRoot(dir) {
			break
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return &Config{}, nil
}

// ReadConfigFile parses and validates one configuration file.
func ReadConfigFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := validateDocument(data); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}

	config.ConfigFilePath = configPath
	config.configDir = filepath.Dir(configPath)
	return &config, nil
}

// SchemaError lists the problems found validating ksmigrate.toml.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "invalid configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// validateDocument checks the decoded TOML document against the embedded
// JSON schema.
func validateDocument(data []byte) error {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse toml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert configuration to json: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(configSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return fmt.Errorf("failed to validate configuration: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &SchemaError{Problems: problems}
}

// DefaultConfigTOML renders the starter configuration written by init.
func DefaultConfigTOML(env string, ec EnvironmentConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	err := enc.Encode(Config{
		DefaultEnvironment: env,
		Environments:       map[string]EnvironmentConfig{env: ec},
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}
