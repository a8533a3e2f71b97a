package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"
)

// ============================================================================
// Open / lifecycle
// ============================================================================

func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})

	t.Run("creates directory if not exists", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(context.Background(), Config{Path: dbPath, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
			t.Error("database directory was not created")
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	db.DB = nil
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %v, want 1", got)
	}
}

// ============================================================================
// WithTx
// ============================================================================

func TestWithTx_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)", "a", "1")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	var v string
	if err := db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = ?", "a").Scan(&v); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if v != "1" {
		t.Errorf("v = %q, want %q", v, "1")
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE error = %v", err)
	}

	errBoom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES (?, ?)", "a", "1"); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("WithTx() error = %v, want %v", err, errBoom)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 after rollback", count)
	}
}

// ============================================================================
// Migrations
// ============================================================================

func TestMigrate(t *testing.T) {
	prevFS, prevDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() { MigrationsFS, MigrationsDir = prevFS, prevDir })

	MigrationsFS = fstest.MapFS{
		"m/20260101_000000_first.up.sql":   {Data: []byte("CREATE TABLE first (id INTEGER)")},
		"m/20260101_000000_first.down.sql": {Data: []byte("DROP TABLE first")},
		"m/20260102_000000_second.up.sql":  {Data: []byte("INSERT INTO first (id) VALUES (7)")},
		"m/README.md":                      {Data: []byte("ignored")},
	}
	MigrationsDir = "m"

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// A second run applies nothing: the INSERT would otherwise duplicate.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM first").Scan(&count); err != nil {
		t.Fatalf("SELECT error = %v", err)
	}
	if count != 1 {
		t.Errorf("rows in first = %d, want 1", count)
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(applied) != 2 || !applied["20260101_000000"] || !applied["20260102_000000"] {
		t.Errorf("AppliedVersions() = %v", applied)
	}
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	prevFS, prevDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() { MigrationsFS, MigrationsDir = prevFS, prevDir })

	MigrationsFS = fstest.MapFS{
		"20260101_000000_ok.up.sql":  {Data: []byte("CREATE TABLE ok (id INTEGER)")},
		"20260102_000000_bad.up.sql": {Data: []byte("THIS IS NOT SQL")},
	}
	MigrationsDir = "."

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for invalid SQL")
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if !applied["20260101_000000"] || applied["20260102_000000"] {
		t.Errorf("AppliedVersions() = %v, want only the first", applied)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20261016_120000_preferences.up.sql", "20261016_120000", "preferences", true},
		{"20261016_120000_multi_word_name.up.sql", "20261016_120000", "multi_word_name", true},
		{"20261016_120000.up.sql", "20261016_120000", "20261016_120000", true},
		{"20261016_120000_preferences.down.sql", "", "", false},
		{"notes.txt", "", "", false},
		{"single.up.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK || version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.filename, version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}

// openTestDB creates a temporary database closed at test cleanup.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}
