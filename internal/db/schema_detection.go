package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// GetDatabaseSchema returns the normalized CREATE statements of every user
// table, index, and trigger, keyed by object name. schema_migrations and its
// index are excluded so migrated and baselined databases compare equal.
func (db *DB) GetDatabaseSchema() (map[string]string, error) {
	return databaseSchema(db.DB)
}

func databaseSchema(sqlDB *sql.DB) (map[string]string, error) {
	rows, err := sqlDB.Query(`
		SELECT name, sql
		FROM sqlite_master
		WHERE type IN ('table', 'index', 'trigger')
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
		  AND name != 'version_unique'
		  AND sql IS NOT NULL
		ORDER BY type, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema: %w", err)
	}
	defer rows.Close()

	schema := make(map[string]string)
	for rows.Next() {
		var name, createSQL string
		if err := rows.Scan(&name, &createSQL); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		schema[name] = normalizeSchemaSQL(createSQL)
	}

	return schema, rows.Err()
}

// normalizeSchemaSQL flattens whitespace and paren spacing so formatting
// differences between schema.sql and migration files do not show up as
// schema differences. ALTER TABLE ADD COLUMN rewrites the stored CREATE
// statement with its own spacing, so this has to be tolerant.
func normalizeSchemaSQL(raw string) string {
	flat := strings.Join(strings.Fields(strings.TrimSpace(raw)), " ")
	flat = strings.TrimSuffix(flat, ";")
	flat = strings.ReplaceAll(flat, " ,", ",")
	flat = strings.ReplaceAll(flat, "( ", "(")
	flat = strings.ReplaceAll(flat, " )", ")")
	return flat
}

// CompareSchemas scores how closely the current schema matches an expected
// one. The score is the percentage of objects (by name) in either schema
// whose definitions match exactly; differences describes every mismatch.
func CompareSchemas(current, expected map[string]string) (int, []string) {
	names := make(map[string]bool, len(current)+len(expected))
	for name := range current {
		names[name] = true
	}
	for name := range expected {
		names[name] = true
	}
	if len(names) == 0 {
		return 100, nil
	}

	var matched int
	var differences []string
	for name := range names {
		curSQL, inCurrent := current[name]
		expSQL, inExpected := expected[name]
		switch {
		case inCurrent && inExpected && curSQL == expSQL:
			matched++
		case inCurrent && inExpected:
			differences = append(differences, fmt.Sprintf("~ %s: definition differs", name))
		case inCurrent:
			differences = append(differences, fmt.Sprintf("+ %s: present in database but not in migrations", name))
		default:
			differences = append(differences, fmt.Sprintf("- %s: missing from database", name))
		}
	}
	sort.Strings(differences)

	return matched * 100 / len(names), differences
}

// GetSchemaAtMigration replays migrations into a scratch in-memory database
// and returns the schema as of the given version.
func (db *DB) GetSchemaAtMigration(migrationsFS fs.FS, version uint) (map[string]string, error) {
	scratchSQL, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch database: %w", err)
	}
	// In-memory sqlite databases are per-connection; keep the pool at one
	// so the migration and the schema query see the same database.
	scratchSQL.SetMaxOpenConns(1)
	scratch := &DB{scratchSQL}
	defer scratch.Close()

	if err := scratch.MigrateTo(migrationsFS, version); err != nil {
		return nil, fmt.Errorf("failed to replay migrations to version %d: %w", version, err)
	}

	return scratch.GetDatabaseSchema()
}

// DetectSchemaVersion finds the migration version whose schema most closely
// matches this database. Used for legacy databases that predate the
// schema_migrations table. Returns the best-matching version, its match
// score (0-100), and the differences against that version.
func (db *DB) DetectSchemaVersion(migrationsFS fs.FS) (uint, int, []string, error) {
	current, err := db.GetDatabaseSchema()
	if err != nil {
		return 0, 0, nil, err
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return 0, 0, nil, err
	}

	var bestVersion uint
	bestScore := -1
	var bestDiffs []string
	for version := uint(1); version <= latest; version++ {
		expected, err := db.GetSchemaAtMigration(migrationsFS, version)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("failed to build schema for version %d: %w", version, err)
		}

		score, diffs := CompareSchemas(current, expected)
		// Ties go to the newer version: with purely additive migrations an
		// older schema is a strict subset of a newer one.
		if score >= bestScore {
			bestVersion, bestScore, bestDiffs = version, score, diffs
		}
		if score == 100 {
			break
		}
	}

	return bestVersion, bestScore, bestDiffs, nil
}
