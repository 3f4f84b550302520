// Package migration defines the values shared by discovery, planning,
// execution and the ledger: migration descriptors, ledger records and the
// error taxonomy of the engine.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/version"
)

// ScriptType tags how a migration is expressed.
type ScriptType string

const (
	TypeCQL ScriptType = "CQL"
	TypeSQL ScriptType = "SQL"
	TypeGo  ScriptType = "GO"

	// TypeRepair marks a ledger record written by a manual repair. It is not
	// a migration and never appears on a Descriptor.
	TypeRepair ScriptType = "REPAIR"
)

// Script is the runnable body of a migration.
type Script interface {
	Apply(ctx context.Context, session keyspace.Session) error
}

// Statements is a script made of statements applied in order. Execution
// stops at the first failing statement; earlier statements are not undone.
type Statements []string

func (s Statements) Apply(ctx context.Context, session keyspace.Session) error {
	for i, stmt := range s {
		if err := session.Exec(ctx, stmt); err != nil {
			return &StatementError{Index: i, Statement: stmt, Err: err}
		}
	}
	return nil
}

// Func adapts a Go function to a Script.
type Func func(ctx context.Context, session keyspace.Session) error

// Apply runs the function. A panic is returned as an error so the attempt is
// still recorded.
func (f Func) Apply(ctx context.Context, session keyspace.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("migration panicked: %v", r)
		}
	}()
	return f(ctx, session)
}

// Descriptor is one discovered migration. Descriptors are immutable once
// built by discovery.
type Descriptor struct {
	Version     version.Version
	Description string
	Type        ScriptType
	Checksum    int64
	Script      Script

	// Source is where the migration was discovered, for error messages.
	Source string
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.Version, d.Description)
}

// CheckDuplicates fails when two descriptors resolve to the same version.
func CheckDuplicates(ds []*Descriptor) error {
	seen := make(map[string]*Descriptor, len(ds))
	for _, d := range ds {
		key := d.Version.Key()
		if prev, ok := seen[key]; ok {
			return &DuplicateVersionError{
				Version: d.Version,
				Sources: []string{prev.Source, d.Source},
			}
		}
		seen[key] = d
	}
	return nil
}

// Record is one row of the ledger. Records are append-only; Rank is the
// insertion sequence number.
type Record struct {
	Rank          int
	Version       version.Version
	Description   string
	Type          ScriptType
	Checksum      int64
	InstalledBy   string
	InstalledOn   time.Time
	ExecutionTime time.Duration
	Success       bool
}

// IsApplication reports whether the record describes an attempt to run a
// migration, as opposed to a repair marker.
func (r Record) IsApplication() bool {
	return r.Type != TypeRepair
}

// StatementError identifies the statement of a script that failed.
type StatementError struct {
	Index     int
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %v\n  %s", e.Index+1, e.Err, e.Statement)
}

func (e *StatementError) Unwrap() error { return e.Err }
