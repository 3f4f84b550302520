package migration

import (
	"fmt"
	"strings"

	"github.com/lockplane/ksmigrate/internal/version"
)

// DuplicateVersionError is returned when two candidates resolve to the same
// version. Nothing is executed.
type DuplicateVersionError struct {
	Version version.Version
	Sources []string
}

func (e *DuplicateVersionError) Error() string {
	if len(e.Sources) == 0 {
		return fmt.Sprintf("duplicate migration version %s", e.Version)
	}
	return fmt.Sprintf("duplicate migration version %s found in: %s", e.Version, strings.Join(e.Sources, ", "))
}

// DirtyLedgerError is returned when the most recent ledger record is a
// failed attempt. The ledger has to be repaired before planning resumes.
type DirtyLedgerError struct {
	Version version.Version
}

func (e *DirtyLedgerError) Error() string {
	return fmt.Sprintf("ledger is dirty: migration %s failed on the last run; fix the script and run repair before migrating again", e.Version)
}

// ChecksumMismatchError is returned when an applied migration was edited
// after it ran. The whole plan is rejected.
type ChecksumMismatchError struct {
	Version    version.Version
	Recorded   int64
	Discovered int64
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for applied migration %s: recorded %d, discovered %d", e.Version, e.Recorded, e.Discovered)
}

// OutOfOrderNotAllowedError is returned when an unapplied migration sorts
// below the highest applied version and out-of-order execution is disabled.
type OutOfOrderNotAllowedError struct {
	Version version.Version
	Highest version.Version
}

func (e *OutOfOrderNotAllowedError) Error() string {
	return fmt.Sprintf("migration %s is below the highest applied version %s and out-of-order migrations are not allowed", e.Version, e.Highest)
}

// MigrationExecutionError is returned when a migration's script fails. The
// failure has already been recorded in the ledger.
type MigrationExecutionError struct {
	Version version.Version
	Cause   error
}

func (e *MigrationExecutionError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Version, e.Cause)
}

func (e *MigrationExecutionError) Unwrap() error { return e.Cause }
