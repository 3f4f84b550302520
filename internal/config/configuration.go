package config

import (
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/ledger"
	"github.com/lockplane/ksmigrate/internal/version"
)

// Property keys accepted as overrides. The environment variable form is
// EnvName(key).
const (
	PropEncoding        = "ksmigrate.scripts.encoding"
	PropLocations       = "ksmigrate.scripts.locations"
	PropAllowOutOfOrder = "ksmigrate.scripts.allowoutoforder"
	PropTarget          = "ksmigrate.version.target"
	PropBackend         = "ksmigrate.keyspace.backend"
	PropKeyspace        = "ksmigrate.keyspace.name"
	PropHosts           = "ksmigrate.keyspace.hosts"
	PropURL             = "ksmigrate.keyspace.url"
	PropUsername        = "ksmigrate.keyspace.username"
	PropPassword        = "ksmigrate.keyspace.password"
	PropConsistency     = "ksmigrate.keyspace.consistency"
	PropTimeout         = "ksmigrate.keyspace.timeout"
	PropTable           = "ksmigrate.ledger.table"
	PropInstalledBy     = "ksmigrate.ledger.installedby"
)

// EnvName returns the environment variable that overrides a property, e.g.
// KSMIGRATE_SCRIPTS_ALLOWOUTOFORDER.
func EnvName(prop string) string {
	return strings.ToUpper(strings.ReplaceAll(prop, ".", "_"))
}

// KeyspaceConfig describes the target keyspace.
type KeyspaceConfig struct {
	Backend     keyspace.Backend
	Name        string
	Hosts       []string
	URL         string
	Username    string
	Password    string
	Consistency string
	Timeout     time.Duration
}

// LedgerConfig describes the ledger table.
type LedgerConfig struct {
	Table       string
	InstalledBy string
}

// Configuration is the resolved, validated settings for one run. It is
// built once by Resolve and passed by value afterwards.
type Configuration struct {
	Environment      string
	Encoding         string
	ScriptsLocations []string
	AllowOutOfOrder  bool
	Target           version.Version
	Keyspace         KeyspaceConfig
	Ledger           LedgerConfig

	// Where settings came from, for display.
	ConfigFilePath string
	DotenvPath     string
}

// Default returns the configuration used when nothing is overridden.
func Default() Configuration {
	return Configuration{
		Environment:      defaultEnvironmentName,
		Encoding:         "UTF-8",
		ScriptsLocations: []string{"db/migration"},
		Target:           version.Latest,
		Keyspace: KeyspaceConfig{
			Backend:     keyspace.BackendCassandra,
			Hosts:       []string{"127.0.0.1:9042"},
			Consistency: "QUORUM",
			Timeout:     10 * time.Second,
		},
		Ledger: LedgerConfig{
			Table:       ledger.DefaultTable,
			InstalledBy: currentUser(),
		},
	}
}

// KeyspaceOptions converts the keyspace settings for keyspace.Open.
func (c Configuration) KeyspaceOptions() keyspace.Options {
	return keyspace.Options{
		Backend:     c.Keyspace.Backend,
		Keyspace:    c.Keyspace.Name,
		Hosts:       c.Keyspace.Hosts,
		URL:         c.Keyspace.URL,
		Username:    c.Keyspace.Username,
		Password:    c.Keyspace.Password,
		Consistency: c.Keyspace.Consistency,
		Timeout:     c.Keyspace.Timeout,
	}
}

// Validate checks settings that depend on each other.
func (c Configuration) Validate() error {
	switch {
	case c.Keyspace.Backend == keyspace.BackendCassandra && c.Keyspace.Name == "":
		return fmt.Errorf("keyspace name is required (set keyspace in %s or %s)", ConfigFileName, EnvName(PropKeyspace))
	case c.Keyspace.Backend.IsSQL() && c.Keyspace.URL == "":
		return fmt.Errorf("%s backend requires a url (set url in %s or %s)", c.Keyspace.Backend, ConfigFileName, EnvName(PropURL))
	case len(c.ScriptsLocations) == 0:
		return fmt.Errorf("at least one scripts location is required")
	}
	return nil
}

// InvalidPropertyError is returned when an override value cannot be parsed.
type InvalidPropertyError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidPropertyError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Key, e.Err)
}

func (e *InvalidPropertyError) Unwrap() error { return e.Err }

// ParseBool accepts only "true" or "false", ignoring case and surrounding
// space.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected true or false")
	}
}

// ParseTarget accepts "latest" or a version.
func ParseTarget(s string) (version.Version, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "latest") {
		return version.Latest, nil
	}
	return version.Parse(s)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setters apply one property value to a configuration.
var setters = map[string]func(c *Configuration, value string) error{
	PropEncoding: func(c *Configuration, value string) error {
		if _, err := htmlindex.Get(value); err != nil {
			return fmt.Errorf("unknown encoding")
		}
		c.Encoding = value
		return nil
	},
	PropLocations: func(c *Configuration, value string) error {
		locations := splitList(value)
		if len(locations) == 0 {
			return fmt.Errorf("no locations given")
		}
		c.ScriptsLocations = locations
		return nil
	},
	PropAllowOutOfOrder: func(c *Configuration, value string) error {
		b, err := ParseBool(value)
		if err != nil {
			return err
		}
		c.AllowOutOfOrder = b
		return nil
	},
	PropTarget: func(c *Configuration, value string) error {
		v, err := ParseTarget(value)
		if err != nil {
			return err
		}
		c.Target = v
		return nil
	},
	PropBackend: func(c *Configuration, value string) error {
		b, err := keyspace.ParseBackend(value)
		if err != nil {
			return err
		}
		c.Keyspace.Backend = b
		return nil
	},
	PropKeyspace: func(c *Configuration, value string) error {
		if !identifierPattern.MatchString(value) {
			return fmt.Errorf("not a valid identifier")
		}
		c.Keyspace.Name = value
		return nil
	},
	PropHosts: func(c *Configuration, value string) error {
		hosts := splitList(value)
		if len(hosts) == 0 {
			return fmt.Errorf("no hosts given")
		}
		c.Keyspace.Hosts = hosts
		return nil
	},
	PropURL: func(c *Configuration, value string) error {
		c.Keyspace.URL = value
		return nil
	},
	PropUsername: func(c *Configuration, value string) error {
		c.Keyspace.Username = value
		return nil
	},
	PropPassword: func(c *Configuration, value string) error {
		c.Keyspace.Password = value
		return nil
	},
	PropConsistency: func(c *Configuration, value string) error {
		c.Keyspace.Consistency = strings.ToUpper(value)
		return nil
	},
	PropTimeout: func(c *Configuration, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("must be positive")
		}
		c.Keyspace.Timeout = d
		return nil
	},
	PropTable: func(c *Configuration, value string) error {
		if !identifierPattern.MatchString(value) {
			return fmt.Errorf("not a valid identifier")
		}
		c.Ledger.Table = value
		return nil
	},
	PropInstalledBy: func(c *Configuration, value string) error {
		c.Ledger.InstalledBy = value
		return nil
	},
}

// Properties lists every override key.
func Properties() []string {
	return []string{
		PropEncoding, PropLocations, PropAllowOutOfOrder, PropTarget,
		PropBackend, PropKeyspace, PropHosts, PropURL, PropUsername, PropPassword,
		PropConsistency, PropTimeout, PropTable, PropInstalledBy,
	}
}

// Set applies a single property. Blank values are ignored.
func (c *Configuration) Set(key, value string) error {
	setter, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown property %q", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if err := setter(c, value); err != nil {
		return &InvalidPropertyError{Key: key, Value: value, Err: err}
	}
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}
