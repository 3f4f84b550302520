// Package planner decides which discovered migrations to run, and in what
// order, given the current ledger. Build has no side effects; a rejected
// plan leaves the keyspace and the ledger untouched.
package planner

import (
	"sort"

	"github.com/lockplane/ksmigrate/internal/ledger"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/version"
)

// Build computes the plan for candidates against l.
//
// Order of checks:
// 1. A dirty ledger blocks everything
// 2. Duplicate candidate versions
// 3. Checksums of already-applied candidates
// 4. Target cutoff
// 5. Ascending version order
// 6. Out-of-order gating against the highest applied version
//
// The out-of-order reference is HighestApplied, the highest successful
// application, not the version of the last ledger record. A failed or
// repaired record never lowers it.
func Build(candidates []*migration.Descriptor, l *ledger.Ledger, opts Options) (*Plan, error) {
	if l.IsDirty() {
		last, _ := l.Last()
		return nil, &migration.DirtyLedgerError{Version: last.Version}
	}

	pending, err := Pending(candidates, l)
	if err != nil {
		return nil, err
	}

	target := opts.Target
	if target.IsZero() {
		target = version.Latest
	}

	var admitted []*migration.Descriptor
	for _, d := range pending {
		if version.Compare(d.Version, target) > 0 {
			continue
		}
		admitted = append(admitted, d)
	}
	SortByVersion(admitted)

	plan := &Plan{Items: []Item{}}
	highest := l.HighestApplied()
	for _, d := range admitted {
		reason := ReasonInOrder
		if !highest.IsZero() && version.Compare(d.Version, highest) < 0 {
			if !opts.AllowOutOfOrder {
				return nil, &migration.OutOfOrderNotAllowedError{Version: d.Version, Highest: highest}
			}
			reason = ReasonOutOfOrder
		}
		plan.Items = append(plan.Items, Item{Descriptor: d, Reason: reason})
	}

	return plan, nil
}

// Pending returns the candidates with no successful ledger record. It fails
// on duplicate candidate versions and on applied migrations whose checksum
// changed.
func Pending(candidates []*migration.Descriptor, l *ledger.Ledger) ([]*migration.Descriptor, error) {
	if err := migration.CheckDuplicates(candidates); err != nil {
		return nil, err
	}

	var pending []*migration.Descriptor
	for _, d := range candidates {
		applied, ok := l.Applied(d.Version)
		if !ok {
			pending = append(pending, d)
			continue
		}
		if applied.Checksum != d.Checksum {
			return nil, &migration.ChecksumMismatchError{
				Version:    d.Version,
				Recorded:   applied.Checksum,
				Discovered: d.Checksum,
			}
		}
	}
	return pending, nil
}

// SortByVersion sorts descriptors ascending by version.
func SortByVersion(ds []*migration.Descriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		return ds[i].Version.Less(ds[j].Version)
	})
}
