package keyspace

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// CQLSession is a Session backed by a Cassandra cluster.
type CQLSession struct {
	session  *gocql.Session
	keyspace string
}

// OpenCQL connects to a Cassandra cluster. Transient connection failures are
// retried with backoff; per-query retries are delegated to the gocql retry
// policy.
func OpenCQL(ctx context.Context, opts Options) (*CQLSession, error) {
	hosts := opts.Hosts
	if len(hosts) == 0 {
		hosts = []string{"127.0.0.1:9042"}
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = opts.Keyspace
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}
	if opts.Timeout > 0 {
		cluster.Timeout = opts.Timeout
		cluster.ConnectTimeout = opts.Timeout
	} else {
		cluster.Timeout = 10 * time.Second
	}
	if opts.Consistency != "" {
		consistency, err := gocql.ParseConsistencyWrapper(opts.Consistency)
		if err != nil {
			return nil, fmt.Errorf("invalid consistency %q: %w", opts.Consistency, err)
		}
		cluster.Consistency = consistency
	} else {
		cluster.Consistency = gocql.Quorum
	}
	if opts.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		}
	}

	var session *gocql.Session
	err := retryConnect(ctx, opts.ConnectAttempts, func() error {
		s, err := cluster.CreateSession()
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cassandra %v: %w", hosts, err)
	}

	return &CQLSession{session: session, keyspace: opts.Keyspace}, nil
}

// NewCQLSession wraps an existing gocql session.
func NewCQLSession(session *gocql.Session, keyspace string) *CQLSession {
	return &CQLSession{session: session, keyspace: keyspace}
}

// Exec runs a single CQL statement. gocql waits for schema agreement after
// schema-altering statements before returning.
func (s *CQLSession) Exec(ctx context.Context, statement string) error {
	return s.session.Query(statement).WithContext(ctx).Exec()
}

func (s *CQLSession) Backend() Backend { return BackendCassandra }

func (s *CQLSession) Keyspace() string { return s.keyspace }

// Raw returns the underlying gocql session.
func (s *CQLSession) Raw() *gocql.Session { return s.session }

func (s *CQLSession) Close() error {
	s.session.Close()
	return nil
}
