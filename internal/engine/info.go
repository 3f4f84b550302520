package engine

import (
	"context"
	"sort"
	"time"

	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/version"
)

// State describes where a migration stands relative to the ledger.
type State string

const (
	StateSuccess    State = "Success"
	StateFailed     State = "Failed"
	StatePending    State = "Pending"
	StateOutOfOrder State = "Out of order"
	StateIgnored    State = "Ignored"
	StateAbove      State = "Above target"
	StateMissing    State = "Missing"
	StateRepaired   State = "Repaired"
)

// InfoEntry is one line of the migration status report. Rank is 0 for
// migrations that have never been attempted.
type InfoEntry struct {
	Version       version.Version
	Description   string
	Type          migration.ScriptType
	Checksum      int64
	State         State
	Rank          int
	InstalledBy   string
	InstalledOn   time.Time
	ExecutionTime time.Duration
}

// Info reports every ledger application and every discovered migration that
// was never applied, ordered by version and then by rank. It does not fail
// on a dirty ledger or on checksum drift.
func (e *Engine) Info(ctx context.Context, candidates []*migration.Descriptor) ([]InfoEntry, error) {
	l, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	discovered := make(map[string]bool, len(candidates))
	for _, d := range candidates {
		discovered[d.Version.Key()] = true
	}

	records := l.Records()
	var entries []InfoEntry
	var highestSoFar version.Version
	for i, r := range records {
		if !r.IsApplication() {
			continue
		}
		entry := InfoEntry{
			Version:       r.Version,
			Description:   r.Description,
			Type:          r.Type,
			Checksum:      r.Checksum,
			Rank:          r.Rank,
			InstalledBy:   r.InstalledBy,
			InstalledOn:   r.InstalledOn,
			ExecutionTime: r.ExecutionTime,
		}
		switch {
		case !r.Success && repairedLater(records[i+1:], r.Version):
			entry.State = StateRepaired
		case !r.Success:
			entry.State = StateFailed
		case !discovered[r.Version.Key()]:
			entry.State = StateMissing
		case r.Version.Less(highestSoFar):
			entry.State = StateOutOfOrder
		default:
			entry.State = StateSuccess
		}
		if r.Success && version.Compare(r.Version, highestSoFar) > 0 {
			highestSoFar = r.Version
		}
		entries = append(entries, entry)
	}

	target := e.Options.Target
	if target.IsZero() {
		target = version.Latest
	}
	highest := l.HighestApplied()
	for _, d := range candidates {
		if _, ok := l.Applied(d.Version); ok {
			continue
		}
		entry := InfoEntry{
			Version:     d.Version,
			Description: d.Description,
			Type:        d.Type,
			Checksum:    d.Checksum,
		}
		switch {
		case version.Compare(d.Version, target) > 0:
			entry.State = StateAbove
		case !highest.IsZero() && d.Version.Less(highest) && !e.Options.AllowOutOfOrder:
			entry.State = StateIgnored
		default:
			entry.State = StatePending
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if c := version.Compare(entries[i].Version, entries[j].Version); c != 0 {
			return c < 0
		}
		return rankOrder(entries[i].Rank) < rankOrder(entries[j].Rank)
	})
	return entries, nil
}

// repairedLater reports whether a REPAIR marker for v follows in rest.
func repairedLater(rest []migration.Record, v version.Version) bool {
	for _, r := range rest {
		if r.Type == migration.TypeRepair && r.Version.Equal(v) {
			return true
		}
	}
	return false
}

// rankOrder sorts unattempted migrations after recorded ones.
func rankOrder(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}
