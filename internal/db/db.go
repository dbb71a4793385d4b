package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps database/sql for the replay results database. The underlying
// *sql.DB is embedded so stores and ad-hoc queries can use it directly.
type DB struct {
	*sql.DB
}

// connectionPragmas are applied to every database we open. WAL keeps the
// monitor API's readers from blocking the pipeline's writes; busy_timeout
// backstops the store-level retry loop.
var connectionPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

func applyPragmas(sqlDB *sql.DB) error {
	for _, pragma := range connectionPragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

// OpenDB opens the database and applies connection pragmas without touching
// the schema. The migrate CLI uses this so migrations fully own schema state.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{sqlDB}, nil
}

// NewDB opens the database and bootstraps the schema from the embedded
// schema.sql. A database created this way is baselined in schema_migrations
// at the latest migration version, so a later `replay-vision migrate up`
// has nothing to do.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	if err := db.baselineIfUnversioned(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// baselineIfUnversioned records the latest migration version for databases
// just bootstrapped from schema.sql. Databases that already carry a version
// are left alone.
func (db *DB) baselineIfUnversioned() error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("check schema_migrations: %w", err)
	}
	if count > 0 {
		return nil
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return err
	}
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return err
	}
	return db.BaselineAtVersion(latest)
}

// NewDBWithMigrationCheck opens the database for service use. Fresh databases
// are created from schema.sql and baselined. Existing databases must be at
// the latest migration version; otherwise the returned error tells the
// operator to run `replay-vision migrate up`. verbose adds a schema version
// log line on success.
func NewDBWithMigrationCheck(path string, verbose bool) (*DB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if verbose {
			log.Printf("Database %s does not exist, creating with current schema", path)
		}
		return NewDB(path)
	}

	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}

	var hasMigrations bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&hasMigrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("inspect schema_migrations: %w", err)
	}

	if !hasMigrations {
		var hasTables bool
		err = db.QueryRow(`
			SELECT COUNT(*) > 0
			FROM sqlite_master
			WHERE type='table' AND name NOT LIKE 'sqlite_%'
		`).Scan(&hasTables)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("inspect schema: %w", err)
		}
		if !hasTables {
			// An empty file: created by touch(1) or a previously failed
			// open. Treat it like a fresh database.
			if _, err := db.Exec(schemaSQL); err != nil {
				db.Close()
				return nil, fmt.Errorf("bootstrap schema: %w", err)
			}
			if err := db.baselineIfUnversioned(); err != nil {
				db.Close()
				return nil, err
			}
			return db, nil
		}
		db.Close()
		return nil, fmt.Errorf("database %s has tables but no schema_migrations; run 'replay-vision migrate detect' to identify its version", path)
	}

	shouldExit, err := db.CheckAndPromptMigrations(migrationsFS)
	if err != nil {
		db.Close()
		return nil, err
	}
	if shouldExit {
		db.Close()
		return nil, fmt.Errorf("database %s needs migrations", path)
	}

	if verbose {
		version, dirty, _ := db.MigrateVersion(migrationsFS)
		log.Printf("Database schema at version %d (dirty: %v)", version, dirty)
	}

	return db, nil
}

// DBStats reports coarse size and row-count numbers for /debug/db-stats.
type DBStats struct {
	PageCount         int64 `json:"page_count"`
	PageSize          int64 `json:"page_size"`
	SizeBytes         int64 `json:"size_bytes"`
	ReplayRuns        int64 `json:"replay_runs"`
	TrackObservations int64 `json:"track_observations"`
	SchemaVersion     int64 `json:"schema_version"`
}

// Stats collects the numbers behind the db-stats debug endpoint.
func (db *DB) Stats() (DBStats, error) {
	var s DBStats
	if err := db.QueryRow("PRAGMA page_count").Scan(&s.PageCount); err != nil {
		return s, fmt.Errorf("page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&s.PageSize); err != nil {
		return s, fmt.Errorf("page_size: %w", err)
	}
	s.SizeBytes = s.PageCount * s.PageSize
	if err := db.QueryRow("SELECT COUNT(*) FROM replay_runs").Scan(&s.ReplayRuns); err != nil {
		return s, fmt.Errorf("count replay_runs: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM track_observations").Scan(&s.TrackObservations); err != nil {
		return s, fmt.Errorf("count track_observations: %w", err)
	}
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&s.SchemaVersion); err != nil {
		return s, fmt.Errorf("schema version: %w", err)
	}
	return s, nil
}

// AttachAdminRoutes mounts the database debug surface on mux: a tailSQL
// live-query browser, a db-stats JSON endpoint, and a backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://replay.db", db.DB, &tailsql.DBOptions{
		Label: "Replay DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Row counts and size of the results database", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.Stats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to collect db stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Printf("Failed to encode db stats: %v", err)
		}
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		// remove the snapshot once it has been streamed out
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to stream backup file: %v", err)
		}
	}))
}
