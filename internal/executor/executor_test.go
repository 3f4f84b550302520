package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/lager/v3/lagertest"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/ledger"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/planner"
	"github.com/lockplane/ksmigrate/internal/version"
)

func setupExecutor(t *testing.T) (*Executor, *keyspace.SQLSession) {
	t.Helper()
	ctx := context.Background()

	session, err := keyspace.OpenSQL(ctx, keyspace.Options{Backend: keyspace.BackendSQLite, URL: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	store := ledger.NewSQLStore(session.DB(), keyspace.BackendSQLite, "", ledger.DefaultTable)
	if err := store.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized returned error: %v", err)
	}

	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(5 * time.Millisecond)
		return tick
	}

	return &Executor{
		Session:     session,
		Store:       store,
		InstalledBy: "tester",
		Clock:       clock,
		Logger:      lagertest.NewTestLogger("executor"),
	}, session
}

func sqlMigration(v string, statements ...string) *migration.Descriptor {
	return &migration.Descriptor{
		Version:     version.MustParse(v),
		Description: "migration " + v,
		Type:        migration.TypeSQL,
		Checksum:    int64(len(statements)),
		Script:      migration.Statements(statements),
	}
}

func planOf(ds ...*migration.Descriptor) *planner.Plan {
	plan := &planner.Plan{}
	for _, d := range ds {
		plan.Items = append(plan.Items, planner.Item{Descriptor: d, Reason: planner.ReasonInOrder})
	}
	return plan
}

func TestExecuteRecordsSuccess(t *testing.T) {
	exec, _ := setupExecutor(t)

	record, err := exec.Execute(context.Background(), sqlMigration("1.0", "CREATE TABLE users (id INTEGER PRIMARY KEY)"))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if record.Rank != 1 || !record.Success {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.InstalledBy != "tester" {
		t.Errorf("expected installed_by tester, got %q", record.InstalledBy)
	}
	if record.ExecutionTime != 5*time.Millisecond {
		t.Errorf("expected 5ms execution time, got %s", record.ExecutionTime)
	}
}

func TestExecuteRecordsFailure(t *testing.T) {
	exec, _ := setupExecutor(t)
	ctx := context.Background()

	record, err := exec.Execute(ctx, sqlMigration("1.0", "CREATE TABLE users (id INTEGER PRIMARY KEY)", "CREATE TABLE broken ("))

	var execErr *migration.MigrationExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected MigrationExecutionError, got %v", err)
	}
	var stmtErr *migration.StatementError
	if !errors.As(err, &stmtErr) || stmtErr.Index != 1 {
		t.Errorf("expected the second statement to be reported, got %v", err)
	}
	if record.Success || record.Rank != 1 {
		t.Errorf("expected failed record at rank 1, got %+v", record)
	}

	l, err := exec.Store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !l.IsDirty() {
		t.Error("expected ledger to be dirty")
	}
}

func TestRunHaltsOnFirstFailure(t *testing.T) {
	exec, session := setupExecutor(t)
	ctx := context.Background()

	plan := planOf(
		sqlMigration("1.0", "CREATE TABLE a (id INTEGER PRIMARY KEY)"),
		sqlMigration("1.1", "CREATE TABLE b ("),
		sqlMigration("1.2", "CREATE TABLE c (id INTEGER PRIMARY KEY)"),
	)

	result, err := exec.Run(ctx, plan)
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Success {
		t.Error("expected Success=false")
	}
	if result.MigrationsApplied != 1 {
		t.Errorf("expected 1 migration applied, got %d", result.MigrationsApplied)
	}
	if len(result.Records) != 2 || result.Records[1].Success {
		t.Errorf("expected a success and a failure record, got %+v", result.Records)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", result.Errors)
	}

	var name string
	err = session.DB().QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'c'").Scan(&name)
	if err == nil {
		t.Error("migration after the failure should not have run")
	}

	// The next run refuses to plan until the ledger is repaired.
	l, err := exec.Store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	_, err = planner.Build([]*migration.Descriptor{plan.Items[0].Descriptor, plan.Items[1].Descriptor, plan.Items[2].Descriptor}, l, planner.Options{})
	var dirty *migration.DirtyLedgerError
	if !errors.As(err, &dirty) {
		t.Fatalf("expected DirtyLedgerError, got %v", err)
	}
	if dirty.Version.String() != "1.1" {
		t.Errorf("expected dirty version 1.1, got %s", dirty.Version)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	exec, _ := setupExecutor(t)
	ctx := context.Background()

	candidates := []*migration.Descriptor{
		sqlMigration("1.0", "CREATE TABLE a (id INTEGER PRIMARY KEY)"),
		sqlMigration("2.0", "CREATE TABLE b (id INTEGER PRIMARY KEY)"),
	}

	for run := 1; run <= 2; run++ {
		l, err := exec.Store.Load(ctx)
		if err != nil {
			t.Fatalf("run %d: Load returned error: %v", run, err)
		}
		plan, err := planner.Build(candidates, l, planner.Options{})
		if err != nil {
			t.Fatalf("run %d: Build returned error: %v", run, err)
		}
		result, err := exec.Run(ctx, plan)
		if err != nil {
			t.Fatalf("run %d: Run returned error: %v", run, err)
		}

		want := 2
		if run == 2 {
			want = 0
		}
		if result.MigrationsApplied != want {
			t.Errorf("run %d: expected %d applied, got %d", run, want, result.MigrationsApplied)
		}
	}

	l, err := exec.Store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 ledger records, got %d", l.Len())
	}
}

func TestRunStopsBetweenMigrationsOnCancel(t *testing.T) {
	exec, _ := setupExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scriptCtxErr error
	first := &migration.Descriptor{
		Version:     version.MustParse("1.0"),
		Description: "cancels mid-run",
		Type:        migration.TypeGo,
		Script: migration.Func(func(ctx context.Context, s keyspace.Session) error {
			cancel()
			scriptCtxErr = ctx.Err()
			return s.Exec(ctx, "CREATE TABLE a (id INTEGER PRIMARY KEY)")
		}),
	}
	second := sqlMigration("2.0", "CREATE TABLE b (id INTEGER PRIMARY KEY)")

	result, err := exec.Run(ctx, planOf(first, second))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if scriptCtxErr != nil {
		t.Errorf("running migration should not observe cancellation, got %v", scriptCtxErr)
	}
	if result.MigrationsApplied != 1 {
		t.Errorf("expected the started migration to finish, got %d applied", result.MigrationsApplied)
	}

	l, err := exec.Store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if l.Len() != 1 || l.IsDirty() {
		t.Errorf("expected a single success record, got %+v", l.Records())
	}
}

type failingStore struct {
	ledger.Store
	err error
}

func (f failingStore) Append(context.Context, migration.Record) (migration.Record, error) {
	return migration.Record{}, f.err
}

func TestExecuteReportsLedgerFailure(t *testing.T) {
	exec, _ := setupExecutor(t)
	exec.Store = failingStore{Store: exec.Store, err: ledger.ErrRankConflict}

	_, err := exec.Execute(context.Background(), sqlMigration("1.0", "CREATE TABLE a (id INTEGER PRIMARY KEY)"))
	if !errors.Is(err, ledger.ErrRankConflict) {
		t.Fatalf("expected ErrRankConflict, got %v", err)
	}
}

func TestExecuteReportsLedgerFailureAfterScriptFailure(t *testing.T) {
	exec, _ := setupExecutor(t)
	exec.Store = failingStore{Store: exec.Store, err: ledger.ErrRankConflict}

	_, err := exec.Execute(context.Background(), sqlMigration("1.0", "CREATE TABLE broken ("))

	var execErr *migration.MigrationExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected MigrationExecutionError, got %v", err)
	}
	if !execErr.Version.Equal(version.MustParse("1.0")) {
		t.Errorf("expected version 1.0, got %s", execErr.Version)
	}
	if !errors.Is(err, ledger.ErrRankConflict) {
		t.Errorf("expected the ledger failure to be kept, got %v", err)
	}
	var stmtErr *migration.StatementError
	if !errors.As(err, &stmtErr) {
		t.Errorf("expected the script failure to be kept, got %v", err)
	}
}

func TestExecuteRecordsPanickingGoMigration(t *testing.T) {
	exec, _ := setupExecutor(t)
	ctx := context.Background()

	d := &migration.Descriptor{
		Version:     version.MustParse("2"),
		Description: "seed users",
		Type:        migration.TypeGo,
		Script: migration.Func(func(context.Context, keyspace.Session) error {
			var seen map[string]bool
			seen["admin"] = true
			return nil
		}),
	}

	record, err := exec.Execute(ctx, d)
	var execErr *migration.MigrationExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected MigrationExecutionError, got %v", err)
	}
	if !strings.Contains(err.Error(), "migration panicked") {
		t.Errorf("expected the panic to be reported, got %v", err)
	}
	if record.Success || record.Rank != 1 {
		t.Errorf("expected failed record at rank 1, got %+v", record)
	}

	l, err := exec.Store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !l.IsDirty() || len(l.Records()) != 1 {
		t.Errorf("expected one failed record, got %+v", l.Records())
	}
}
