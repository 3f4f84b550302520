package planner

import (
	"errors"
	"testing"

	"github.com/lockplane/ksmigrate/internal/ledger"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/version"
)

func desc(v string, checksum int64) *migration.Descriptor {
	return &migration.Descriptor{
		Version:     version.MustParse(v),
		Description: "migration " + v,
		Type:        migration.TypeCQL,
		Checksum:    checksum,
		Script:      migration.Statements{"SELECT now() FROM system.local"},
		Source:      "V" + v + "__test.cql",
	}
}

func applied(rank int, v string, checksum int64) migration.Record {
	return migration.Record{Rank: rank, Version: version.MustParse(v), Type: migration.TypeCQL, Checksum: checksum, Success: true}
}

func mustLedger(t *testing.T, records ...migration.Record) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(records)
	if err != nil {
		t.Fatalf("ledger.New returned error: %v", err)
	}
	return l
}

func versions(p *Plan) []string {
	var out []string
	for _, v := range p.Versions() {
		out = append(out, v.String())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuild_OrdersAscending(t *testing.T) {
	candidates := []*migration.Descriptor{desc("2.0", 1), desc("1.10", 1), desc("1.2", 1), desc("1_9", 1)}

	plan, err := Build(candidates, mustLedger(t), Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	want := []string{"1.2", "1.9", "1.10", "2.0"}
	if got := versions(plan); !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	for _, item := range plan.Items {
		if item.Reason != ReasonInOrder {
			t.Errorf("expected %s to be in order, got %s", item.Descriptor.Version, item.Reason)
		}
	}
}

func TestBuild_EmptyCandidates(t *testing.T) {
	plan, err := Build(nil, mustLedger(t, applied(1, "1.0", 1)), Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %v", versions(plan))
	}
}

func TestBuild_FullyAppliedIsEmpty(t *testing.T) {
	candidates := []*migration.Descriptor{desc("1.0", 10), desc("1.1", 11)}
	l := mustLedger(t, applied(1, "1.0", 10), applied(2, "1.1", 11))

	plan, err := Build(candidates, l, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected rerun to plan nothing, got %v", versions(plan))
	}
}

func TestBuild_SkipsAppliedAndPlansNew(t *testing.T) {
	candidates := []*migration.Descriptor{desc("1.0", 10), desc("1.1", 11), desc("1.2", 12)}
	l := mustLedger(t, applied(1, "1.0", 10))

	plan, err := Build(candidates, l, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := versions(plan); !equalStrings(got, []string{"1.1", "1.2"}) {
		t.Errorf("expected [1.1 1.2], got %v", got)
	}
}

func TestBuild_DirtyLedger(t *testing.T) {
	l := mustLedger(t,
		applied(1, "1.0", 10),
		migration.Record{Rank: 2, Version: version.MustParse("1.1"), Type: migration.TypeCQL, Success: false},
	)

	_, err := Build([]*migration.Descriptor{desc("1.0", 10), desc("1.1", 11)}, l, Options{})
	var dirty *migration.DirtyLedgerError
	if !errors.As(err, &dirty) {
		t.Fatalf("expected DirtyLedgerError, got %v", err)
	}
	if dirty.Version.String() != "1.1" {
		t.Errorf("expected dirty version 1.1, got %s", dirty.Version)
	}
}

func TestBuild_DuplicateVersions(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{name: "same text", a: "1.0", b: "1.0"},
		{name: "trailing zero", a: "2.1", b: "2.1.0"},
		{name: "underscore", a: "3_0", b: "3.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build([]*migration.Descriptor{desc(tt.a, 1), desc(tt.b, 2)}, mustLedger(t), Options{})
			var dup *migration.DuplicateVersionError
			if !errors.As(err, &dup) {
				t.Fatalf("expected DuplicateVersionError, got %v", err)
			}
			if len(dup.Sources) != 2 {
				t.Errorf("expected both sources, got %v", dup.Sources)
			}
		})
	}
}

func TestBuild_ChecksumMismatchRejectsWholePlan(t *testing.T) {
	candidates := []*migration.Descriptor{desc("1.0", 99), desc("1.1", 11)}
	l := mustLedger(t, applied(1, "1.0", 10))

	plan, err := Build(candidates, l, Options{})
	if plan != nil {
		t.Errorf("expected no plan, got %v", versions(plan))
	}
	var mismatch *migration.ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChecksumMismatchError, got %v", err)
	}
	if mismatch.Recorded != 10 || mismatch.Discovered != 99 {
		t.Errorf("unexpected checksums: recorded %d, discovered %d", mismatch.Recorded, mismatch.Discovered)
	}
}

func TestBuild_OutOfOrderGating(t *testing.T) {
	candidates := []*migration.Descriptor{desc("1.0", 10), desc("1.5", 15), desc("2.0", 20), desc("2.5", 25)}
	l := mustLedger(t, applied(1, "1.0", 10), applied(2, "2.0", 20))

	t.Run("disallowed", func(t *testing.T) {
		_, err := Build(candidates, l, Options{})
		var ooo *migration.OutOfOrderNotAllowedError
		if !errors.As(err, &ooo) {
			t.Fatalf("expected OutOfOrderNotAllowedError, got %v", err)
		}
		if ooo.Version.String() != "1.5" || ooo.Highest.String() != "2.0" {
			t.Errorf("unexpected error fields: %+v", ooo)
		}
	})

	t.Run("allowed", func(t *testing.T) {
		plan, err := Build(candidates, l, Options{AllowOutOfOrder: true})
		if err != nil {
			t.Fatalf("Build returned error: %v", err)
		}
		if got := versions(plan); !equalStrings(got, []string{"1.5", "2.5"}) {
			t.Fatalf("expected [1.5 2.5], got %v", got)
		}
		if plan.Items[0].Reason != ReasonOutOfOrder {
			t.Errorf("expected 1.5 to be out of order, got %s", plan.Items[0].Reason)
		}
		if plan.Items[1].Reason != ReasonInOrder {
			t.Errorf("expected 2.5 to be in order, got %s", plan.Items[1].Reason)
		}
	})
}

func TestBuild_OutOfOrderUsesHighestNotMostRecent(t *testing.T) {
	// 1.5 was applied out of order after 2.0; 1.7 is still below 2.0.
	candidates := []*migration.Descriptor{desc("1.5", 15), desc("1.7", 17), desc("2.0", 20)}
	l := mustLedger(t, applied(1, "2.0", 20), applied(2, "1.5", 15))

	_, err := Build(candidates, l, Options{})
	var ooo *migration.OutOfOrderNotAllowedError
	if !errors.As(err, &ooo) {
		t.Fatalf("expected OutOfOrderNotAllowedError, got %v", err)
	}
}

func TestBuild_TargetCutoff(t *testing.T) {
	candidates := []*migration.Descriptor{desc("1.0", 1), desc("1.1", 1), desc("1.2", 1), desc("2.0", 1)}

	tests := []struct {
		name   string
		target version.Version
		want   []string
	}{
		{name: "zero means latest", target: version.Version{}, want: []string{"1.0", "1.1", "1.2", "2.0"}},
		{name: "latest", target: version.Latest, want: []string{"1.0", "1.1", "1.2", "2.0"}},
		{name: "inclusive", target: version.MustParse("1.1"), want: []string{"1.0", "1.1"}},
		{name: "padded", target: version.MustParse("1.2.0"), want: []string{"1.0", "1.1", "1.2"}},
		{name: "below all", target: version.MustParse("0.9"), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Build(candidates, mustLedger(t), Options{Target: tt.target})
			if err != nil {
				t.Fatalf("Build returned error: %v", err)
			}
			if got := versions(plan); !equalStrings(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBuild_TargetBelowCurrentOnlyLimitsFuture(t *testing.T) {
	candidates := []*migration.Descriptor{desc("1.0", 10), desc("2.0", 20), desc("3.0", 30)}
	l := mustLedger(t, applied(1, "1.0", 10), applied(2, "2.0", 20))

	plan, err := Build(candidates, l, Options{Target: version.MustParse("1.0")})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %v", versions(plan))
	}
}

func TestBuild_RetryAfterRepair(t *testing.T) {
	l := mustLedger(t,
		applied(1, "1.0", 10),
		migration.Record{Rank: 2, Version: version.MustParse("1.1"), Type: migration.TypeCQL, Checksum: 11, Success: false},
		migration.Record{Rank: 3, Version: version.MustParse("1.1"), Type: migration.TypeRepair, Success: true},
	)

	plan, err := Build([]*migration.Descriptor{desc("1.0", 10), desc("1.1", 12)}, l, Options{})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if got := versions(plan); !equalStrings(got, []string{"1.1"}) {
		t.Errorf("expected the repaired migration to be retried, got %v", got)
	}
}
