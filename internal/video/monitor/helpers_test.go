package monitor

import (
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// setupTestDB creates a test database with proper schema from schema.sql.
// This avoids hardcoded CREATE TABLE statements that can get out of sync with migrations.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	// Apply essential PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			t.Fatalf("Failed to execute %q: %v", pragma, err)
		}
	}

	// Read and execute schema.sql from the db package (relative path from monitor/)
	schemaPath := filepath.Join("..", "..", "db", "schema.sql")
	schemaSQL, err := os.ReadFile(schemaPath)
	if err != nil {
		db.Close()
		t.Fatalf("Failed to read schema.sql: %v", err)
	}

	if _, err := db.Exec(string(schemaSQL)); err != nil {
		db.Close()
		t.Fatalf("Failed to execute schema.sql: %v", err)
	}

	// Baseline at latest migration version
	// NOTE: Update this when new migrations are added to internal/db/migrations/
	latestMigrationVersion := 2
	if _, err := db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, false)`, latestMigrationVersion); err != nil {
		db.Close()
		t.Fatalf("Failed to baseline migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-shm")
		os.Remove(dbPath + "-wal")
	}

	return db, cleanup
}

// seedRun inserts a completed run.
func seedRun(t *testing.T, db *sql.DB, runID, label string) {
	t.Helper()
	err := sqlite.NewRunStore(db).Insert(&sqlite.ReplayRun{
		RunID:        runID,
		Label:        label,
		SourceType:   "detlog",
		SourcePath:   "/data/court-a/game.jsonl",
		ParamsJSON:   json.RawMessage(`{"version":"1.0"}`),
		Status:       sqlite.RunStatusCompleted,
		StartedNanos: time.Now().Add(-time.Minute).UnixNano(),
	})
	if err != nil {
		t.Fatalf("Failed to insert test run: %v", err)
	}
}

// seedObservation inserts one per-frame box for a track.
func seedObservation(t *testing.T, db *sql.DB, runID string, frame, trackID int64, x1, y1 float32) {
	t.Helper()
	err := sqlite.NewObservationStore(db).Insert(&sqlite.TrackObservation{
		RunID:      runID,
		Frame:      frame,
		TrackID:    trackID,
		X1:         x1,
		Y1:         y1,
		X2:         x1 + 40,
		Y2:         y1 + 80,
		Confidence: 0.9,
		State:      string(sqlite.TrackConfirmed),
	})
	if err != nil {
		t.Fatalf("Failed to insert test observation: %v", err)
	}
}

// seedTrailAt inserts a short diagonal trail for one track starting at a
// given position.
func seedTrailAt(t *testing.T, db *sql.DB, runID string, trackID int64, frames int, baseX, baseY float32) {
	t.Helper()
	for f := 0; f < frames; f++ {
		seedObservation(t, db, runID, int64(f), trackID, baseX+float32(10*f), baseY+float32(5*f))
	}
}

// seedTrail places each track in its own corner so trails within one run
// never overlap.
func seedTrail(t *testing.T, db *sql.DB, runID string, trackID int64, frames int) {
	t.Helper()
	seedTrailAt(t, db, runID, trackID, frames, float32(100+int(trackID)*300), 200)
}

func testDetection(cx, cy float32) video.Detection {
	return video.Detection{CX: cx, CY: cy, W: 40, H: 80, Confidence: 0.9}
}

func jsonDecode(rr *httptest.ResponseRecorder, dst interface{}) error {
	return json.Unmarshal(rr.Body.Bytes(), dst)
}

// newConfirmedTracker returns a live tracker that has already promoted one
// track, plus that track's identity.
func newConfirmedTracker(t *testing.T) (*l5tracks.Tracker, int64) {
	t.Helper()

	tracker := l5tracks.NewTracker(l5tracks.TrackerConfig{MinHits: 3, MaxAge: 30})
	var outputs []video.TrackOutput
	for i := 0; i < 3; i++ {
		outputs = tracker.Update([]video.Detection{testDetection(float32(500+2*i), 300)})
	}
	if len(outputs) != 1 {
		t.Fatalf("Expected 1 confirmed track after 3 hits, got %d", len(outputs))
	}
	return tracker, outputs[0].TrackID
}
