package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/version"
)

// SQLStore keeps the ledger in a PostgreSQL, SQLite or libSQL table.
type SQLStore struct {
	db      *sql.DB
	backend keyspace.Backend
	schema  string
	table   string
	builder squirrel.StatementBuilderType
}

// NewSQLStore returns a store for table. On PostgreSQL the table lives in
// schema; the SQLite family has a single namespace and ignores it.
func NewSQLStore(db *sql.DB, backend keyspace.Backend, schema, table string) *SQLStore {
	var placeholder squirrel.PlaceholderFormat = squirrel.Question
	if backend == keyspace.BackendPostgres {
		placeholder = squirrel.Dollar
	} else {
		schema = ""
	}
	return &SQLStore{
		db:      db,
		backend: backend,
		schema:  schema,
		table:   table,
		builder: squirrel.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// qualifiedTable returns the quoted, schema-qualified table name.
func (s *SQLStore) qualifiedTable() string {
	if s.schema == "" {
		return quoteIdent(s.table)
	}
	return quoteIdent(s.schema) + "." + quoteIdent(s.table)
}

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (s *SQLStore) createTableSQL() string {
	timestampType, boolType := "TIMESTAMP", "BOOLEAN"
	if s.backend == keyspace.BackendPostgres {
		timestampType = "TIMESTAMPTZ"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	version_rank INTEGER PRIMARY KEY,
	version TEXT NOT NULL,
	description TEXT NOT NULL,
	script_type TEXT NOT NULL,
	checksum BIGINT NOT NULL,
	installed_by TEXT NOT NULL,
	installed_on %s NOT NULL,
	execution_time_ms BIGINT NOT NULL,
	success %s NOT NULL
)`, s.qualifiedTable(), timestampType, boolType)
}

func (s *SQLStore) EnsureInitialized(ctx context.Context) error {
	if s.schema != "" {
		if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(s.schema)); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", s.schema, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create ledger table %s: %w", s.table, err)
	}

	found, err := s.tableColumns(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect ledger table %s: %w", s.table, err)
	}
	if missing := missingColumns(found); len(missing) > 0 {
		return &IncompatibleTableError{Table: s.table, Missing: missing}
	}
	return nil
}

// tableColumns lists the columns of the ledger table.
func (s *SQLStore) tableColumns(ctx context.Context) ([]string, error) {
	var rows *sql.Rows
	var err error
	if s.backend == keyspace.BackendPostgres {
		query := s.builder.Select("column_name").
			From("information_schema.columns").
			Where(squirrel.Eq{"table_name": s.table})
		if s.schema != "" {
			query = query.Where(squirrel.Eq{"table_schema": s.schema})
		} else {
			query = query.Where("table_schema = current_schema()")
		}
		rows, err = query.RunWith(s.db).QueryContext(ctx)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", s.table)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLStore) Load(ctx context.Context) (*Ledger, error) {
	rows, err := s.builder.Select(columns...).
		From(s.qualifiedTable()).
		OrderBy("version_rank").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []migration.Record
	for rows.Next() {
		var (
			rank        int
			versionText string
			description string
			scriptType  string
			checksum    int64
			installedBy string
			installedOn any
			elapsedMs   int64
			success     bool
		)
		if err := rows.Scan(&rank, &versionText, &description, &scriptType, &checksum, &installedBy, &installedOn, &elapsedMs, &success); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		r, err := buildRecord(rank, versionText, description, scriptType, checksum, installedBy, elapsedMs, success)
		if err != nil {
			return nil, err
		}
		if r.InstalledOn, err = asTime(installedOn); err != nil {
			return nil, &CorruptLedgerError{Reason: fmt.Sprintf("rank %d: %v", rank, err)}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return New(records)
}

func (s *SQLStore) Append(ctx context.Context, r migration.Record) (stored migration.Record, err error) {
	if err := checkAppendable(r); err != nil {
		return migration.Record{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return migration.Record{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err = commit(tx, err); err != nil {
			stored = migration.Record{}
		}
	}()

	var last int64
	err = s.builder.Select("COALESCE(MAX(version_rank), 0)").
		From(s.qualifiedTable()).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&last)
	if err != nil {
		return migration.Record{}, fmt.Errorf("failed to read last rank: %w", err)
	}

	r.Rank = int(last) + 1
	if r.InstalledOn.IsZero() {
		r.InstalledOn = time.Now()
	}
	r.InstalledOn = r.InstalledOn.UTC()

	_, err = s.builder.Insert(s.qualifiedTable()).
		Columns(columns...).
		Values(r.Rank, r.Version.String(), r.Description, string(r.Type), r.Checksum,
			r.InstalledBy, r.InstalledOn, r.ExecutionTime.Milliseconds(), r.Success).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return migration.Record{}, fmt.Errorf("rank %d: %w", r.Rank, ErrRankConflict)
		}
		return migration.Record{}, fmt.Errorf("failed to insert ledger record: %w", err)
	}

	return r, nil
}

func commit(tx *sql.Tx, err error) error {
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrRankConflict
		}
		return fmt.Errorf("failed to commit ledger record: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

func buildRecord(rank int, versionText, description, scriptType string, checksum int64, installedBy string, elapsedMs int64, success bool) (migration.Record, error) {
	v, err := version.Parse(versionText)
	if err != nil {
		return migration.Record{}, &CorruptLedgerError{Reason: fmt.Sprintf("rank %d: %v", rank, err)}
	}
	return migration.Record{
		Rank:          rank,
		Version:       v,
		Description:   description,
		Type:          migration.ScriptType(scriptType),
		Checksum:      checksum,
		InstalledBy:   installedBy,
		ExecutionTime: time.Duration(elapsedMs) * time.Millisecond,
		Success:       success,
	}, nil
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// asTime converts the driver value of installed_on. SQLite drivers return
// declared TIMESTAMP columns as time.Time, text or unix seconds depending on
// how the row was written.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case []byte:
		return asTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized installed_on value %q", t)
	default:
		return time.Time{}, fmt.Errorf("unsupported installed_on type %T", v)
	}
}
