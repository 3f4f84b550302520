package wizard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lockplane/ksmigrate/internal/config"
	"github.com/lockplane/ksmigrate/internal/keyspace"
)

// ValidateEnvironmentName checks if an environment name is valid
func ValidateEnvironmentName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name cannot be empty")
	}

	// Must be alphanumeric or underscore
	for _, ch := range name {
		isValid := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-'
		if !isValid {
			return fmt.Errorf("environment name must contain only letters, numbers, underscores, and hyphens")
		}
	}

	return nil
}

// ValidateIdentifier checks a keyspace or schema name
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("keyspace name cannot be empty")
	}
	for i, ch := range name {
		isLetter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
		isDigit := ch >= '0' && ch <= '9'
		if !isLetter && !(isDigit && i > 0) {
			return fmt.Errorf("keyspace name must start with a letter or underscore and contain only letters, numbers, and underscores")
		}
	}
	return nil
}

// ValidatePort checks if a port number is valid
func ValidatePort(port string) error {
	if port == "" {
		return fmt.Errorf("port cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	return nil
}

// ValidateHosts checks a comma separated list of contact points. The port is
// optional.
func ValidateHosts(hosts string) error {
	list := splitHosts(hosts)
	if len(list) == 0 {
		return fmt.Errorf("at least one host is required")
	}
	for _, h := range list {
		host, port, err := net.SplitHostPort(h)
		if err != nil {
			if strings.Contains(err.Error(), "missing port") {
				continue
			}
			return fmt.Errorf("invalid host %q: %w", h, err)
		}
		if host == "" {
			return fmt.Errorf("invalid host %q: missing host name", h)
		}
		if err := ValidatePort(port); err != nil {
			return fmt.Errorf("invalid host %q: %w", h, err)
		}
	}
	return nil
}

func splitHosts(hosts string) []string {
	var out []string
	for _, h := range strings.Split(hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// ValidateConnectionString checks if a connection string is well-formed
func ValidateConnectionString(connStr string, backend string) error {
	if connStr == "" {
		return fmt.Errorf("connection string cannot be empty")
	}

	switch backend {
	case "postgres":
		if !strings.HasPrefix(connStr, "postgres://") &&
			!strings.HasPrefix(connStr, "postgresql://") {
			return fmt.Errorf("PostgreSQL connection string must start with postgres:// or postgresql://")
		}
		if _, err := url.Parse(connStr); err != nil {
			return fmt.Errorf("invalid PostgreSQL connection string: %w", err)
		}

	case "sqlite":
		if strings.Contains(connStr, "://") && !strings.HasPrefix(connStr, "file:") {
			return fmt.Errorf("SQLite connection string must be a file path or file: URI")
		}

	case "libsql":
		if !strings.HasPrefix(connStr, "libsql://") &&
			!strings.HasPrefix(connStr, "https://") &&
			!strings.HasPrefix(connStr, "http://") {
			return fmt.Errorf("libSQL connection string must start with libsql://, https:// or http://")
		}
	}

	return nil
}

// ValidateEnvironment checks every field the backend needs
func ValidateEnvironment(env EnvironmentInput) map[string]string {
	problems := make(map[string]string)
	if err := ValidateEnvironmentName(env.Name); err != nil {
		problems["name"] = err.Error()
	}
	switch env.Backend {
	case "cassandra":
		if err := ValidateHosts(env.Hosts); err != nil {
			problems["hosts"] = err.Error()
		}
		if err := ValidateIdentifier(env.Keyspace); err != nil {
			problems["keyspace"] = err.Error()
		}
	case "postgres":
		if err := ValidateConnectionString(env.URL, env.Backend); err != nil {
			problems["url"] = err.Error()
		}
		if env.Keyspace != "" {
			if err := ValidateIdentifier(env.Keyspace); err != nil {
				problems["keyspace"] = err.Error()
			}
		}
	case "sqlite", "libsql":
		if err := ValidateConnectionString(env.URL, env.Backend); err != nil {
			problems["url"] = err.Error()
		}
	default:
		problems["backend"] = fmt.Sprintf("unsupported backend %q", env.Backend)
	}
	if strings.TrimSpace(env.ScriptsLocation) == "" {
		problems["scripts_location"] = "scripts location cannot be empty"
	}
	return problems
}

// KeyspaceOptions converts the wizard input into connection options
func KeyspaceOptions(env EnvironmentInput) (keyspace.Options, error) {
	backend, err := keyspace.ParseBackend(env.Backend)
	if err != nil {
		return keyspace.Options{}, err
	}
	return keyspace.Options{
		Backend:  backend,
		Keyspace: env.Keyspace,
		Hosts:    splitHosts(env.Hosts),
		URL:      BuildConnectionURL(env),
		Username: env.Username,
		Password: env.Password,
		Timeout:  5 * time.Second,
	}, nil
}

// TestConnection attempts a single connection to the keyspace
func TestConnection(ctx context.Context, env EnvironmentInput) error {
	opts, err := KeyspaceOptions(env)
	if err != nil {
		return err
	}
	opts.ConnectAttempts = 1

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := keyspace.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return session.Close()
}

// BuildConnectionURL returns the url used to connect, with the libSQL auth
// token attached.
func BuildConnectionURL(env EnvironmentInput) string {
	if env.Backend == "libsql" && env.Password != "" {
		sep := "?"
		if strings.Contains(env.URL, "?") {
			sep = "&"
		}
		return env.URL + sep + "authToken=" + url.QueryEscape(env.Password)
	}
	return env.URL
}

// EnvironmentConfig returns the ksmigrate.toml section for env. Secrets are
// left out and written to the .env file instead.
func EnvironmentConfig(env EnvironmentInput) config.EnvironmentConfig {
	ec := config.EnvironmentConfig{
		Backend:          env.Backend,
		ScriptsLocations: []string{env.ScriptsLocation},
	}
	switch env.Backend {
	case "cassandra":
		ec.Hosts = splitHosts(env.Hosts)
		ec.Keyspace = env.Keyspace
		ec.Username = env.Username
	case "postgres":
		ec.Keyspace = env.Keyspace
		if !hasPassword(env.URL) {
			ec.URL = env.URL
		}
	case "sqlite":
		ec.URL = env.URL
	case "libsql":
		if env.Password == "" {
			ec.URL = env.URL
		}
	}
	return ec
}

// EnvFileValues returns the overrides written to .env.<name>
func EnvFileValues(env EnvironmentInput) map[string]string {
	values := make(map[string]string)
	switch env.Backend {
	case "cassandra":
		if env.Password != "" {
			values[config.EnvName(config.PropPassword)] = env.Password
		}
	case "postgres":
		if hasPassword(env.URL) {
			values[config.EnvName(config.PropURL)] = env.URL
		}
	case "libsql":
		if env.Password != "" {
			values[config.EnvName(config.PropURL)] = BuildConnectionURL(env)
		}
	}
	return values
}

func hasPassword(connStr string) bool {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}
