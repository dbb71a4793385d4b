package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// schemaSQL is the canonical schema for a fresh database. It must stay in
// sync with the migrations directory; TestSchemaConsistency enforces that.
//
//go:embed schema.sql
var schemaSQL string

//go:embed migrations
var migrationsFS embed.FS

// DevMode makes getMigrationsFS read migrations from the working tree
// instead of the compiled binary, for iterating on a migration without
// rebuilding.
var DevMode = false

// devMigrationsDir is relative to the repo root, where `go run` invocations
// start.
const devMigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migration files, with the version-numbered
// .sql files at the root of the returned filesystem.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(devMigrationsDir); err != nil {
			return nil, fmt.Errorf("dev migrations dir %s: %w", devMigrationsDir, err)
		}
		return os.DirFS(devMigrationsDir), nil
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	return sub, nil
}
