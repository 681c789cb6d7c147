package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/txgroup/internal/logger"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, "0001", "init_schema_migrations"},
		{"0012_create_categories.sql", true, "0012", "create_categories"},
		{"001_invalid.sql", false, "", ""},        // wrong number format
		{"0001_test", false, "", ""},              // missing .sql
		{"0001.sql", false, "", ""},               // missing name
		{"invalid_0001_test.sql", false, "", ""}, // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if tt.valid && (m[1] != tt.version || m[2] != tt.name) {
				t.Errorf("parts = %q %q, want %q %q", m[1], m[2], tt.version, tt.name)
			}
		})
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestReadMigrations(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"0002_create_records.sql": "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.transaction_records` (x INT64);",
		"0001_init.sql":           "SELECT 1;",
		"README.md":               "not a migration",
	})

	got, err := readMigrations(logger.NewWithWriter(io.Discard), dir, "proj", "ds")
	if err != nil {
		t.Fatalf("readMigrations() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("readMigrations() returned %d migrations, want 2", len(got))
	}
	if got[0].Version != 1 || got[1].Version != 2 || got[1].Name != "create_records" {
		t.Errorf("migrations = %+v", got)
	}
	if !strings.Contains(got[1].SQL, "`proj.ds.transaction_records`") {
		t.Errorf("placeholders not replaced: %s", got[1].SQL)
	}

	// The checksum is taken before placeholders are filled in.
	other, err := readMigrations(logger.NewWithWriter(io.Discard), dir, "other", "ds2")
	if err != nil {
		t.Fatal(err)
	}
	if other[1].Checksum != got[1].Checksum {
		t.Error("checksum depends on the target dataset")
	}
}

func TestReadMigrations_Errors(t *testing.T) {
	log := logger.NewWithWriter(io.Discard)

	if _, err := readMigrations(log, filepath.Join(t.TempDir(), "missing"), "p", "d"); err == nil {
		t.Error("missing directory accepted")
	}

	dir := writeFiles(t, map[string]string{
		"0001_a.sql": "SELECT 1;",
		"0001_b.sql": "SELECT 2;",
	})
	if _, err := readMigrations(log, dir, "p", "d"); err == nil {
		t.Error("duplicate versions accepted")
	}
}

func TestMigrationChecksumConsistency(t *testing.T) {
	a := checksum([]byte("CREATE TABLE test (id INT64);"))
	b := checksum([]byte("CREATE TABLE test (id INT64);"))
	c := checksum([]byte("CREATE TABLE different (id INT64);"))

	if a != b {
		t.Error("same content produced different checksums")
	}
	if a == c {
		t.Error("different content produced the same checksum")
	}
	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64 hex characters", len(a))
	}
}

func TestPendingMigrations(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
		{Version: 3, Filename: "0003_c.sql", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "old"},
	}

	pending, changed := pendingMigrations(migrations, applied)
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Errorf("pending = %+v", pending)
	}
	if len(changed) != 1 || changed[0].Version != 2 {
		t.Errorf("changed = %+v", changed)
	}
}
