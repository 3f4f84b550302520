package keyspace

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// SQLSession is a Session backed by a database/sql connection pool.
type SQLSession struct {
	db       *sql.DB
	backend  Backend
	keyspace string
}

// DriverName returns the database/sql driver registered for a backend.
func DriverName(backend Backend) string {
	switch backend {
	case BackendPostgres:
		return "postgres"
	case BackendLibSQL:
		return "libsql"
	default:
		return "sqlite"
	}
}

// OpenSQL opens a database/sql pool and pings it, retrying transient failures.
func OpenSQL(ctx context.Context, opts Options) (*SQLSession, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%s backend requires a connection url", opts.Backend)
	}

	dsn := opts.URL
	if opts.Backend == BackendPostgres && opts.Keyspace != "" {
		dsn = withSearchPath(dsn, opts.Keyspace)
	}

	db, err := sql.Open(DriverName(opts.Backend), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	if opts.Backend == BackendSQLite {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	err = retryConnect(ctx, opts.ConnectAttempts, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLSession{db: db, backend: opts.Backend, keyspace: opts.Keyspace}, nil
}

// NewSQLSession wraps an open database handle.
func NewSQLSession(db *sql.DB, backend Backend, keyspace string) *SQLSession {
	return &SQLSession{db: db, backend: backend, keyspace: keyspace}
}

func (s *SQLSession) Exec(ctx context.Context, statement string) error {
	_, err := s.db.ExecContext(ctx, statement)
	return err
}

func (s *SQLSession) Backend() Backend { return s.backend }

func (s *SQLSession) Keyspace() string { return s.keyspace }

// DB returns the underlying database handle.
func (s *SQLSession) DB() *sql.DB { return s.db }

func (s *SQLSession) Close() error { return s.db.Close() }

// withSearchPath points unqualified postgres identifiers at the keyspace
// schema. lib/pq forwards unknown parameters as runtime settings.
func withSearchPath(dsn, schema string) string {
	if !strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "search_path=") {
			return dsn
		}
		return dsn + " search_path=" + schema
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	if q.Get("search_path") == "" {
		q.Set("search_path", schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
