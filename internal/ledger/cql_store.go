package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/lockplane/ksmigrate/internal/migration"
)

// CQLStore keeps the ledger in a Cassandra table inside the migrated keyspace.
type CQLStore struct {
	session  *gocql.Session
	keyspace string
	table    string
}

func NewCQLStore(session *gocql.Session, keyspace, table string) *CQLStore {
	return &CQLStore{session: session, keyspace: keyspace, table: table}
}

// qualifiedTable leaves identifiers unquoted so they fold to lower case the
// same way they do in system_schema.
func (s *CQLStore) qualifiedTable() string {
	return s.keyspace + "." + s.table
}

func (s *CQLStore) EnsureInitialized(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	version_rank int PRIMARY KEY,
	version text,
	description text,
	script_type text,
	checksum bigint,
	installed_by text,
	installed_on timestamp,
	execution_time_ms int,
	success boolean
)`, s.qualifiedTable())
	if err := s.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create ledger table %s: %w", s.table, err)
	}

	iter := s.session.Query(
		`SELECT column_name FROM system_schema.columns WHERE keyspace_name = ? AND table_name = ?`,
		strings.ToLower(s.keyspace), strings.ToLower(s.table),
	).WithContext(ctx).Iter()

	var (
		name  string
		found []string
	)
	for iter.Scan(&name) {
		found = append(found, name)
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("failed to inspect ledger table %s: %w", s.table, err)
	}
	if missing := missingColumns(found); len(missing) > 0 {
		return &IncompatibleTableError{Table: s.table, Missing: missing}
	}
	return nil
}

// Load reads every record. Cassandra returns partitions in token order, so
// the snapshot sorts by rank.
func (s *CQLStore) Load(ctx context.Context) (*Ledger, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), s.qualifiedTable())
	iter := s.session.Query(stmt).WithContext(ctx).Iter()

	var (
		records     []migration.Record
		rank        int
		versionText string
		description string
		scriptType  string
		checksum    int64
		installedBy string
		installedOn time.Time
		elapsedMs   int
		success     bool
	)
	for iter.Scan(&rank, &versionText, &description, &scriptType, &checksum, &installedBy, &installedOn, &elapsedMs, &success) {
		r, err := buildRecord(rank, versionText, description, scriptType, checksum, installedBy, int64(elapsedMs), success)
		if err != nil {
			_ = iter.Close()
			return nil, err
		}
		r.InstalledOn = installedOn
		records = append(records, r)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return New(records)
}

// Append inserts with a lightweight transaction so two writers can never
// share a rank.
func (s *CQLStore) Append(ctx context.Context, r migration.Record) (migration.Record, error) {
	if err := checkAppendable(r); err != nil {
		return migration.Record{}, err
	}

	l, err := s.Load(ctx)
	if err != nil {
		return migration.Record{}, err
	}

	r.Rank = l.LastRank() + 1
	if r.InstalledOn.IsZero() {
		r.InstalledOn = time.Now()
	}
	r.InstalledOn = r.InstalledOn.UTC().Truncate(time.Millisecond)

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS",
		s.qualifiedTable(), strings.Join(columns, ", "))
	applied, err := s.session.Query(stmt,
		r.Rank, r.Version.String(), r.Description, string(r.Type), r.Checksum,
		r.InstalledBy, r.InstalledOn, int(r.ExecutionTime.Milliseconds()), r.Success,
	).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		return migration.Record{}, fmt.Errorf("failed to insert ledger record: %w", err)
	}
	if !applied {
		return migration.Record{}, fmt.Errorf("rank %d: %w", r.Rank, ErrRankConflict)
	}

	return r, nil
}
