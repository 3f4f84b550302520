package ledger

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/lockplane/ksmigrate/internal/keyspace"
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/version"
)

func newSQLiteStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()
	session, err := keyspace.OpenSQL(context.Background(), keyspace.Options{
		Backend: keyspace.BackendSQLite,
		URL:     ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return NewSQLStore(session.DB(), keyspace.BackendSQLite, "", DefaultTable), session.DB()
}

func TestSQLStoreEnsureInitializedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	for i := 0; i < 2; i++ {
		if err := store.EnsureInitialized(ctx); err != nil {
			t.Fatalf("EnsureInitialized call %d returned error: %v", i+1, err)
		}
	}

	l, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("expected empty ledger, got %d records", l.Len())
	}
}

func TestSQLStoreKeepsExistingRecords(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)
	if err := store.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized returned error: %v", err)
	}
	if _, err := store.Append(ctx, migration.Record{Version: version.MustParse("1.0"), Type: migration.TypeSQL, Success: true}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	if err := store.EnsureInitialized(ctx); err != nil {
		t.Fatalf("second EnsureInitialized returned error: %v", err)
	}
	l, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if l.Len() != 1 {
		t.Errorf("expected existing record to survive, got %d records", l.Len())
	}
}

func TestSQLStoreIncompatibleTable(t *testing.T) {
	ctx := context.Background()
	store, db := newSQLiteStore(t)

	if _, err := db.ExecContext(ctx, `CREATE TABLE ksmigrate_version (version_rank INTEGER PRIMARY KEY, version TEXT)`); err != nil {
		t.Fatalf("failed to create legacy table: %v", err)
	}

	err := store.EnsureInitialized(ctx)
	var incompatible *IncompatibleTableError
	if !errors.As(err, &incompatible) {
		t.Fatalf("expected IncompatibleTableError, got %v", err)
	}
	if len(incompatible.Missing) != len(columns)-2 {
		t.Errorf("expected %d missing columns, got %v", len(columns)-2, incompatible.Missing)
	}
}

func TestSQLStoreAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)
	if err := store.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized returned error: %v", err)
	}

	installedOn := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	inputs := []migration.Record{
		{Version: version.MustParse("1.0"), Description: "First", Type: migration.TypeSQL, Checksum: 42, InstalledBy: "ci", InstalledOn: installedOn, ExecutionTime: 120 * time.Millisecond, Success: true},
		{Version: version.MustParse("2_0"), Description: "Second", Type: migration.TypeSQL, Checksum: -7, InstalledBy: "ci", InstalledOn: installedOn, Success: false},
	}
	for i, r := range inputs {
		stored, err := store.Append(ctx, r)
		if err != nil {
			t.Fatalf("Append %d returned error: %v", i, err)
		}
		if stored.Rank != i+1 {
			t.Errorf("expected rank %d, got %d", i+1, stored.Rank)
		}
	}

	l, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	records := l.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.Version.String() != "1.0" || first.Description != "First" || first.Checksum != 42 {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.ExecutionTime != 120*time.Millisecond {
		t.Errorf("expected 120ms execution time, got %s", first.ExecutionTime)
	}
	if !first.InstalledOn.Equal(installedOn) {
		t.Errorf("expected installed_on %s, got %s", installedOn, first.InstalledOn)
	}
	if records[1].Version.String() != "2.0" || records[1].Checksum != -7 || records[1].Success {
		t.Errorf("unexpected second record: %+v", records[1])
	}
	if !l.IsDirty() {
		t.Error("expected ledger to be dirty after a failed record")
	}
}

func TestSQLStoreAppendRejectsSentinels(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)
	if err := store.EnsureInitialized(ctx); err != nil {
		t.Fatalf("EnsureInitialized returned error: %v", err)
	}

	for _, v := range []version.Version{version.Latest, {}} {
		if _, err := store.Append(ctx, migration.Record{Version: v, Success: true}); err == nil {
			t.Errorf("expected Append to reject version %s", v)
		}
	}
}

func TestSQLStorePostgresRankConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db, keyspace.BackendPostgres, "app", DefaultTable)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(version_rank), 0) FROM "app"."ksmigrate_version"`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "app"."ksmigrate_version"`)).
		WithArgs(4, "1.2", "Add users", "SQL", int64(9), "ci", sqlmock.AnyArg(), int64(0), true).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err = store.Append(context.Background(), migration.Record{
		Version:     version.MustParse("1.2"),
		Description: "Add users",
		Type:        migration.TypeSQL,
		Checksum:    9,
		InstalledBy: "ci",
		Success:     true,
	})
	if !errors.Is(err, ErrRankConflict) {
		t.Fatalf("expected ErrRankConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLStorePostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewSQLStore(db, keyspace.BackendPostgres, "app", DefaultTable)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "app"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "app"."ksmigrate_version"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"column_name"})
	for _, c := range columns {
		rows.AddRow(c)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = $2`)).
		WithArgs(DefaultTable, "app").
		WillReturnRows(rows)

	if err := store.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("EnsureInitialized returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAsTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	inputs := []any{
		want,
		"2024-03-01 12:30:00+00:00",
		"2024-03-01T12:30:00Z",
		[]byte("2024-03-01 12:30:00"),
		want.Unix(),
	}
	for _, in := range inputs {
		got, err := asTime(in)
		if err != nil {
			t.Errorf("asTime(%v) returned error: %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("asTime(%v) = %s, want %s", in, got, want)
		}
	}

	if _, err := asTime(3.5); err == nil {
		t.Error("expected error for float input")
	}
}
