package db

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

// setupTestMigrations creates a temporary directory with test migration files
// and returns it as an fs.FS
func setupTestMigrations(t *testing.T) fs.FS {
	t.Helper()
	tmpDir := filepath.Join(t.TempDir(), "migrations")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		t.Fatalf("failed to create temp migrations dir: %v", err)
	}

	// Create test migration files
	migrations := map[string]string{
		"000001_create_test_table.up.sql": `
			CREATE TABLE IF NOT EXISTS test_table (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
		`,
		"000001_create_test_table.down.sql": `
			DROP TABLE IF EXISTS test_table;
		`,
		"000002_add_test_column.up.sql": `
			ALTER TABLE test_table ADD COLUMN description TEXT;
		`,
		"000002_add_test_column.down.sql": `
			-- SQLite cannot drop the only added column on old versions, so recreate
			CREATE TABLE test_table_new (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
			INSERT INTO test_table_new (id, name) SELECT id, name FROM test_table;
			DROP TABLE test_table;
			ALTER TABLE test_table_new RENAME TO test_table;
		`,
	}

	for filename, content := range migrations {
		path := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write migration file %s: %v", filename, err)
		}
	}

	return os.DirFS(tmpDir)
}

// tableExists reports whether a table is present in sqlite_master.
func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return exists
}

// columnExists reports whether a table has the named column.
func columnExists(t *testing.T, db *DB, table, column string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name=?
	`, table, column).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check column %s.%s: %v", table, column, err)
	}
	return exists
}

func TestMigrateUp(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	// Run migrations up
	err := db.MigrateUp(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	// Verify migration version
	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}

	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}

	if dirty {
		t.Error("database should not be dirty after successful migration")
	}

	if !tableExists(t, db, "test_table") {
		t.Error("test_table should exist after migration")
	}

	// Verify description column exists (from second migration)
	if !columnExists(t, db, "test_table", "description") {
		t.Error("description column should exist after migration")
	}
}

func TestMigrateUp_Idempotency(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("first MigrateUp failed: %v", err)
	}

	// Second run should be a no-op, not an error
	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	version, _, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2 after repeated up, got %d", version)
	}
}

func TestMigrateDown(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	// Roll back the second migration
	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1 after down, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after rollback")
	}

	if !tableExists(t, db, "test_table") {
		t.Error("test_table should still exist at version 1")
	}
	if columnExists(t, db, "test_table", "description") {
		t.Error("description column should be gone after rollback")
	}
}

func TestMigrateVersion_NoMigrations(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed on fresh database: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on fresh database, got %d", version)
	}
	if dirty {
		t.Error("fresh database should not be dirty")
	}
}

func TestMigrateForce(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	// Force version back to 1 without running the down migration
	if err := db.MigrateForce(migrationsFS, 1); err != nil {
		t.Fatalf("MigrateForce failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected forced version 1, got %d", version)
	}
	if dirty {
		t.Error("force should clear the dirty flag")
	}

	// Schema untouched: the column from migration 2 is still there
	if !columnExists(t, db, "test_table", "description") {
		t.Error("force should not change the schema")
	}
}

func TestMigrateTo(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	// Migrate up to version 1 only
	if err := db.MigrateTo(migrationsFS, 1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}

	if !tableExists(t, db, "test_table") {
		t.Error("test_table should exist at version 1")
	}
	if columnExists(t, db, "test_table", "description") {
		t.Error("description column should not exist at version 1")
	}

	// Then up to version 2
	if err := db.MigrateTo(migrationsFS, 2); err != nil {
		t.Fatalf("MigrateTo(2) failed: %v", err)
	}
	if !columnExists(t, db, "test_table", "description") {
		t.Error("description column should exist at version 2")
	}
}

func TestBaselineAtVersion(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	if err := db.BaselineAtVersion(2); err != nil {
		t.Fatalf("BaselineAtVersion failed: %v", err)
	}

	var version uint
	var dirty bool
	err := db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty)
	if err != nil {
		t.Fatalf("failed to read schema_migrations: %v", err)
	}
	if version != 2 {
		t.Errorf("expected baseline version 2, got %d", version)
	}
	if dirty {
		t.Error("baseline should not be dirty")
	}

	// Baselining twice is an error
	if err := db.BaselineAtVersion(3); err == nil {
		t.Error("expected error when baselining an already-baselined database")
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	status, err := db.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if v, ok := status["current_version"].(uint); !ok || v != 0 {
		t.Errorf("expected current_version 0, got %v", status["current_version"])
	}
	if exists, ok := status["schema_migrations_exists"].(bool); !ok || exists {
		t.Errorf("expected schema_migrations_exists false, got %v", status["schema_migrations_exists"])
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	status, err = db.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed after up: %v", err)
	}
	if v, ok := status["current_version"].(uint); !ok || v != 2 {
		t.Errorf("expected current_version 2, got %v", status["current_version"])
	}
	if exists, ok := status["schema_migrations_exists"].(bool); !ok || !exists {
		t.Errorf("expected schema_migrations_exists true, got %v", status["schema_migrations_exists"])
	}
}

func TestMigrateUpDown_FullCycle(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS := setupTestMigrations(t)

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	// Roll everything back one step at a time
	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("first MigrateDown failed: %v", err)
	}
	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("second MigrateDown failed: %v", err)
	}

	version, _, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 after full rollback, got %d", version)
	}

	if tableExists(t, db, "test_table") {
		t.Error("test_table should be gone after full rollback")
	}
}

func TestMigrateLogger(t *testing.T) {
	logger := &migrateLogger{}

	// Should not panic
	logger.Printf("test message: %s", "value")

	if logger.Verbose() {
		t.Error("Expected Verbose() to return false")
	}
}

func TestMigrateUp_ClosedDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "closed.db")

	database, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}

	migrationsFS := fstest.MapFS{
		"000001_init.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE IF NOT EXISTS t1 (id INTEGER PRIMARY KEY);")},
		"000001_init.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE IF EXISTS t1;")},
	}

	database.Close()

	if err := database.MigrateUp(migrationsFS); err == nil {
		t.Error("expected error from MigrateUp on closed DB, got nil")
	}
}

// TestEmbeddedMigrationsUpDown runs the production migrations end to end.
func TestEmbeddedMigrationsUpDown(t *testing.T) {
	db := setupEmptyTestDB(t)
	defer cleanupTestDB(t, db)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	version, _, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("expected version %d after up, got %d", latest, version)
	}

	if !tableExists(t, db, "replay_runs") {
		t.Error("replay_runs should exist after migrations")
	}
	if !tableExists(t, db, "track_observations") {
		t.Error("track_observations should exist after migrations")
	}
	if !columnExists(t, db, "replay_runs", "total_detections") {
		t.Error("total_detections column should exist at latest version")
	}

	// Roll back the detection-totals migration
	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if columnExists(t, db, "replay_runs", "total_detections") {
		t.Error("total_detections column should be gone at version 1")
	}
	if !tableExists(t, db, "replay_runs") {
		t.Error("replay_runs should still exist at version 1")
	}

	// Roll back the initial migration
	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown to zero failed: %v", err)
	}
	if tableExists(t, db, "replay_runs") {
		t.Error("replay_runs should be gone after full rollback")
	}
	if tableExists(t, db, "track_observations") {
		t.Error("track_observations should be gone after full rollback")
	}
}
