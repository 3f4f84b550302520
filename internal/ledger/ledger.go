// Package ledger persists the append-only history of migration attempts.
//
// A Store owns the ledger table in the target keyspace. Load returns an
// immutable Ledger snapshot that planning reads from; Append adds a record
// with the next version_rank.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/version"
)

// DefaultTable is the ledger table name used when none is configured.
const DefaultTable = "ksmigrate_version"

// Store reads and appends ledger records.
type Store interface {
	// EnsureInitialized creates the ledger table when it is missing. An
	// existing table is never altered.
	EnsureInitialized(ctx context.Context) error
	Load(ctx context.Context) (*Ledger, error)
	// Append stores r with the next rank and returns the stored record.
	Append(ctx context.Context, r migration.Record) (migration.Record, error)
}

// ErrRankConflict is returned by Append when another writer took the rank
// first. Concurrent runs against one keyspace are not supported.
var ErrRankConflict = errors.New("ledger rank already taken by a concurrent writer")

// IncompatibleTableError is returned when the ledger table exists but lacks
// columns the engine needs.
type IncompatibleTableError struct {
	Table   string
	Missing []string
}

func (e *IncompatibleTableError) Error() string {
	return fmt.Sprintf("ledger table %s exists but is missing columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

// CorruptLedgerError is returned when stored records break a ledger invariant.
type CorruptLedgerError struct {
	Reason string
}

func (e *CorruptLedgerError) Error() string {
	return "corrupt ledger: " + e.Reason
}

// columns lists the ledger table columns in scan order.
var columns = []string{
	"version_rank",
	"version",
	"description",
	"script_type",
	"checksum",
	"installed_by",
	"installed_on",
	"execution_time_ms",
	"success",
}

// missingColumns reports required columns absent from found.
func missingColumns(found []string) []string {
	have := make(map[string]bool, len(found))
	for _, c := range found {
		have[strings.ToLower(c)] = true
	}
	var missing []string
	for _, c := range columns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func checkAppendable(r migration.Record) error {
	if r.Version.IsLatest() {
		return fmt.Errorf("cannot record the latest sentinel as a migration version")
	}
	if r.Version.IsZero() {
		return fmt.Errorf("cannot record a migration without a version")
	}
	return nil
}

// Ledger is a snapshot of the ledger ordered by rank.
type Ledger struct {
	records []migration.Record
	applied map[string]migration.Record
}

// New builds a snapshot from records in any order.
func New(records []migration.Record) (*Ledger, error) {
	sorted := make([]migration.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	l := &Ledger{records: sorted, applied: make(map[string]migration.Record)}
	for i, r := range sorted {
		if i > 0 && sorted[i-1].Rank == r.Rank {
			return nil, &CorruptLedgerError{Reason: fmt.Sprintf("rank %d appears more than once", r.Rank)}
		}
		if !r.Success || !r.IsApplication() {
			continue
		}
		key := r.Version.Key()
		if prev, ok := l.applied[key]; ok {
			return nil, &CorruptLedgerError{
				Reason: fmt.Sprintf("version %s applied successfully at ranks %d and %d", r.Version, prev.Rank, r.Rank),
			}
		}
		l.applied[key] = r
	}
	return l, nil
}

// Records returns every record in rank order.
func (l *Ledger) Records() []migration.Record {
	out := make([]migration.Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int { return len(l.records) }

// LastRank returns the highest rank, or 0 for an empty ledger.
func (l *Ledger) LastRank() int {
	if len(l.records) == 0 {
		return 0
	}
	return l.records[len(l.records)-1].Rank
}

// Last returns the most recent record.
func (l *Ledger) Last() (migration.Record, bool) {
	if len(l.records) == 0 {
		return migration.Record{}, false
	}
	return l.records[len(l.records)-1], true
}

// CurrentVersion is the version of the most recent successful application,
// or the zero version when there is none.
func (l *Ledger) CurrentVersion() version.Version {
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if r.Success && r.IsApplication() {
			return r.Version
		}
	}
	return version.Version{}
}

// HighestApplied is the greatest version among successful applications.
func (l *Ledger) HighestApplied() version.Version {
	var highest version.Version
	for _, r := range l.applied {
		if version.Compare(r.Version, highest) > 0 {
			highest = r.Version
		}
	}
	return highest
}

// IsDirty reports whether the most recent record is a failure.
func (l *Ledger) IsDirty() bool {
	last, ok := l.Last()
	return ok && !last.Success
}

// Applied returns the successful application record for v.
func (l *Ledger) Applied(v version.Version) (migration.Record, bool) {
	r, ok := l.applied[v.Key()]
	return r, ok
}

// AppliedRecords returns the successful applications in rank order.
func (l *Ledger) AppliedRecords() []migration.Record {
	var out []migration.Record
	for _, r := range l.records {
		if r.Success && r.IsApplication() {
			out = append(out, r)
		}
	}
	return out
}

// Open returns the Store that matches the session's backend.
func Open(session keyspace.Session, table string) (Store, error) {
	if table == "" {
		table = DefaultTable
	}
	switch s := session.(type) {
	case *keyspace.CQLSession:
		return NewCQLStore(s.Raw(), s.Keyspace(), table), nil
	case *keyspace.SQLSession:
		return NewSQLStore(s.DB(), s.Backend(), s.Keyspace(), table), nil
	default:
		return nil, fmt.Errorf("no ledger store for %s sessions", session.Backend())
	}
}
