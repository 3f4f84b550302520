package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lockplane/ksmigrate/internal/migration"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	writeFile(t, filepath.Join(dir, "ksmigrate.toml"), `default_environment = "local"

[environments.local]
backend = "sqlite"
url = "`+filepath.ToSlash(filepath.Join(dir, "app.db"))+`"
scripts_locations = ["db/migration"]
`)
	writeFile(t, filepath.Join(dir, "db", "migration", "V1__Create_users.sql"),
		"CREATE TABLE users (id INTEGER PRIMARY KEY);\n")
	writeFile(t, filepath.Join(dir, "db", "migration", "V1_1__Add_name.sql"),
		"-- users get names\nALTER TABLE users ADD COLUMN name TEXT;\n")
	return dir
}

func TestMigrateInfoValidateRepair(t *testing.T) {
	dir := setupProject(t)

	stdout, stderr, err := run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "Applied 2 migration(s)") {
		t.Errorf("unexpected migrate output:\n%s", stdout)
	}

	stdout, _, err = run(t, "migrate")
	if err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if !strings.Contains(stdout, "up to date") {
		t.Errorf("expected up to date message, got:\n%s", stdout)
	}

	stdout, _, err = run(t, "info", "--output-format", "json")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	var entries []infoJSON
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("info output is not json: %v\n%s", err, stdout)
	}
	if len(entries) != 2 || entries[0].Version != "1" || entries[1].Version != "1.1" {
		t.Fatalf("unexpected info entries: %+v", entries)
	}
	for _, e := range entries {
		if e.State != "Success" || e.Type != "SQL" {
			t.Errorf("unexpected entry %+v", e)
		}
	}

	writeFile(t, filepath.Join(dir, "db", "migration", "V2__Broken.sql"), "NOT SQL;\n")
	if _, _, err := run(t, "migrate"); err == nil {
		t.Fatal("expected migrate to fail on the broken script")
	}

	_, stderr, err = run(t, "validate")
	var dirty *migration.DirtyLedgerError
	if !errors.As(err, &dirty) {
		t.Fatalf("expected DirtyLedgerError from validate, got %v\n%s", err, stderr)
	}

	stdout, _, err = run(t, "repair")
	if err != nil {
		t.Fatalf("repair failed: %v", err)
	}
	if !strings.Contains(stdout, "Repaired failed migration 2") {
		t.Errorf("unexpected repair output:\n%s", stdout)
	}

	writeFile(t, filepath.Join(dir, "db", "migration", "V2__Broken.sql"), "CREATE TABLE orders (id INTEGER);\n")
	stdout, _, err = run(t, "validate")
	if err != nil {
		t.Fatalf("validate after repair failed: %v", err)
	}
	if !strings.Contains(stdout, "1 pending") {
		t.Errorf("expected one pending migration, got:\n%s", stdout)
	}

	stdout, _, err = run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate after repair failed: %v", err)
	}
	if !strings.Contains(stdout, "Applied 1 migration(s)") {
		t.Errorf("unexpected migrate output:\n%s", stdout)
	}

	stdout, _, err = run(t, "info")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{"Create users", "Repaired", "Success"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected info table to contain %q, got:\n%s", want, stdout)
		}
	}
}

func TestMigrateDetectsEditedScript(t *testing.T) {
	dir := setupProject(t)

	if _, _, err := run(t, "migrate"); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	writeFile(t, filepath.Join(dir, "db", "migration", "V1__Create_users.sql"),
		"CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT);\n")

	_, _, err := run(t, "migrate")
	var mismatch *migration.ChecksumMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ChecksumMismatchError, got %v", err)
	}
}

func TestMigrateTargetFlag(t *testing.T) {
	setupProject(t)

	stdout, _, err := run(t, "migrate", "--target", "1")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(stdout, "Applied 1 migration(s)") {
		t.Errorf("expected only version 1 to be applied, got:\n%s", stdout)
	}

	stdout, _, err = run(t, "info", "--target", "1")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(stdout, "Above target") {
		t.Errorf("expected version 1.1 above target, got:\n%s", stdout)
	}
}

func TestInvalidPropertyFailsFast(t *testing.T) {
	setupProject(t)

	if _, _, err := run(t, "migrate", "--allow-out-of-order", "yes"); err == nil {
		t.Fatal("expected an invalid boolean to fail")
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "ksmigrate ") {
		t.Errorf("unexpected version output %q", stdout)
	}
}
