// Package keyspace opens sessions against the store that migrations are
// applied to. Cassandra is the primary backend; PostgreSQL, SQLite and libSQL
// databases can stand in as keyspace stores.
package keyspace

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend identifies the kind of store a session talks to.
type Backend string

const (
	BackendCassandra Backend = "cassandra"
	BackendPostgres  Backend = "postgres"
	BackendSQLite    Backend = "sqlite"
	BackendLibSQL    Backend = "libsql"
)

// ParseBackend converts a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cassandra", "cql", "scylla":
		return BackendCassandra, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	case "libsql", "turso":
		return BackendLibSQL, nil
	default:
		return "", fmt.Errorf("unsupported keyspace backend: %q", s)
	}
}

// IsSQL reports whether the backend is reached through database/sql.
func (b Backend) IsSQL() bool {
	return b == BackendPostgres || b == BackendSQLite || b == BackendLibSQL
}

// Session executes statements against a keyspace.
// Exec blocks until the store acknowledges the statement.
type Session interface {
	Exec(ctx context.Context, statement string) error
	Backend() Backend
	Keyspace() string
	Close() error
}

// Options describes how to reach a keyspace.
type Options struct {
	Backend     Backend
	Keyspace    string
	Hosts       []string
	URL         string
	Username    string
	Password    string
	Consistency string
	Timeout     time.Duration

	// ConnectAttempts bounds the retries of the initial connection. Zero uses
	// the default.
	ConnectAttempts uint64
}

const defaultConnectAttempts = 5

// Open connects to the keyspace described by opts.
func Open(ctx context.Context, opts Options) (Session, error) {
	if opts.Keyspace == "" && opts.Backend == BackendCassandra {
		return nil, fmt.Errorf("keyspace name is required")
	}
	switch opts.Backend {
	case BackendCassandra:
		return OpenCQL(ctx, opts)
	case BackendPostgres, BackendSQLite, BackendLibSQL:
		return OpenSQL(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported keyspace backend: %q", opts.Backend)
	}
}
