package sqlite

import (
	"strings"
	"testing"
)

func TestNewRunManager(t *testing.T) {
	db, cleanup := setupReplayTestDB(t)
	defer cleanup()

	manager := NewRunManager(db, "court-a")
	if manager == nil {
		t.Fatal("NewRunManager returned nil")
	}
	if manager.streamID != "court-a" {
		t.Errorf("streamID = %q, want court-a", manager.streamID)
	}
	if manager.runs == nil || manager.obs == nil {
		t.Error("expected stores to be initialized")
	}
	if manager.tracksSeen == nil {
		t.Error("expected tracksSeen map to be initialized")
	}
	if manager.currentRun != nil {
		t.Error("expected no active run on a fresh manager")
	}
	if manager.IsRunActive() {
		t.Error("IsRunActive should be false on a fresh manager")
	}
	if manager.CurrentRunID() != "" {
		t.Error("CurrentRunID should be empty on a fresh manager")
	}
}

func TestRunManagerRegistry(t *testing.T) {
	db, cleanup := setupReplayTestDB(t)
	defer cleanup()

	manager := NewRunManager(db, "court-b")
	RegisterRunManager("court-b", manager)

	if got := GetRunManager("court-b"); got != manager {
		t.Error("GetRunManager did not return the registered manager")
	}
	if got := GetRunManager("court-z"); got != nil {
		t.Error("GetRunManager returned a manager for an unknown stream")
	}
}

func TestRunManagerStartRun(t *testing.T) {
	db, cleanup := setupReplayTestDB(t)
	defer cleanup()

	manager := NewRunManager(db, "court-a")
	runID, err := manager.StartRun("detlog", "/data/game.jsonl", "game 3", DefaultRunParams())
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if !strings.HasPrefix(runID, "run_") {
		t.Errorf("run id = %q, want run_ prefix", runID)
	}
	if !manager.IsRunActive() {
		t.Error("IsRunActive should be true after StartRun")
	}
	if manager.CurrentRunID() != runID {
		t.Errorf("CurrentRunID = %q, want %q", manager.CurrentRunID(), runID)
	}

	// The run row is persisted immediately.
	run, err := NewRunStore(db).Get(runID)
	if err != nil {
		t.Fatalf("Get inserted run failed: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("Status = %q, want %q", run.Status, RunStatusRunning)
	}
	if run.SourceType != "detlog" || run.SourcePath != "/data/game.jsonl" {
		t.Errorf("source = %s:%s", run.SourceType, run.SourcePath)
	}
	if run.Label != "game 3" {
		t.Errorf("Label = %q", run.Label)
	}
	if len(run.ParamsJSON) == 0 {
		t.Error("ParamsJSON not persisted")
	}
}

func TestRunManagerRecordTracks(t *testing.T) {
	db, cleanup := setupReplayTestDB(t)
	defer cleanup()

	manager := NewRunManager(db, "court-a")

	// Without an active run, recording is a no-op.
	if n := manager.RecordTracks(1, []Track{confirmedTrack(1, 100, 100, 40, 80)}); n != 0 {
		t.Errorf("RecordTracks without a run returned %d", n)
	}

	runID, err := manager.StartRun("detlog", "/data/game.jsonl", "", DefaultRunParams())
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	tracks := []Track{
		confirmedTrack(1, 100, 100, 40, 80),
		confirmedTrack(2, 300, 200, 40, 80),
	}
	if n := manager.RecordTracks(5, tracks); n != 2 {
		t.Errorf("new identities = %d, want 2", n)
	}
	// Same identities on the next frame are no longer new.
	if n := manager.RecordTracks(6, tracks); n != 0 {
		t.Errorf("new identities on second frame = %d, want 0", n)
	}

	count, err := NewObservationStore(db).CountForRun(runID)
	if err != nil {
		t.Fatalf("CountForRun failed: %v", err)
	}
	if count != 4 {
		t.Errorf("observation count = %d, want 4", count)
	}
}

func TestRunManagerCompleteRun(t *testing.T) {
	db, cleanup := setupReplayTestDB(t)
	defer cleanup()

	manager := NewRunManager(db, "court-a")
	runID, err := manager.StartRun("udp", ":9001", "", DefaultRunParams())
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	for i := 0; i < 7; i++ {
		manager.RecordFrame()
	}
	manager.RecordDetections(3)
	manager.RecordDetections(4)
	manager.RecordTracks(3, []Track{confirmedTrack(1, 100, 100, 40, 80)})

	if err := manager.CompleteRun(); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}
	if manager.IsRunActive() {
		t.Error("run still active after CompleteRun")
	}

	run, err := NewRunStore(db).Get(runID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Errorf("Status = %q, want %q", run.Status, RunStatusCompleted)
	}
	if run.TotalFrames != 7 {
		t.Errorf("TotalFrames = %d, want 7", run.TotalFrames)
	}
	if run.TotalDetections != 7 {
		t.Errorf("TotalDetections = %d, want 7", run.TotalDetections)
	}
	if run.TotalTracks != 1 {
		t.Errorf("TotalTracks = %d, want 1", run.TotalTracks)
	}

	// Completing again without an active run is a no-op.
	if err := manager.CompleteRun(); err != nil {
		t.Errorf("second CompleteRun returned %v", err)
	}
}

func TestRunManagerFailRun(t *testing.T) {
	db, cleanup := setupReplayTestDB(t)
	defer cleanup()

	manager := NewRunManager(db, "court-a")
	runID, err := manager.StartRun("pcap", "/data/capture.pcap", "", DefaultRunParams())
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	if err := manager.FailRun("decoder choked on frame 42"); err != nil {
		t.Fatalf("FailRun failed: %v", err)
	}
	if manager.IsRunActive() {
		t.Error("run still active after FailRun")
	}

	run, err := NewRunStore(db).Get(runID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("Status = %q, want %q", run.Status, RunStatusFailed)
	}
	if run.ErrorMessage != "decoder choked on frame 42" {
		t.Errorf("ErrorMessage = %q", run.ErrorMessage)
	}
}

func TestRunManagerGetCurrentRunParams(t *testing.T) {
	db, cleanup := setupReplayTestDB(t)
	defer cleanup()

	manager := NewRunManager(db, "court-a")

	if _, ok := manager.GetCurrentRunParams(); ok {
		t.Error("GetCurrentRunParams should report no params without a run")
	}

	params := DefaultRunParams()
	params.Tracking.MaxAge = 45
	if _, err := manager.StartRun("detlog", "/data/game.jsonl", "", params); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	got, ok := manager.GetCurrentRunParams()
	if !ok {
		t.Fatal("GetCurrentRunParams reported no params during a run")
	}
	if got.Tracking.MaxAge != 45 {
		t.Errorf("MaxAge = %d, want 45", got.Tracking.MaxAge)
	}
}
