package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// newRunMux wires a RunAPI over the test database.
func newRunMux(t *testing.T, api *RunAPI) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	return mux
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, rr.Body.String())
	}
	return resp
}

func TestRunAPI_ListRuns(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "first half")
	seedRun(t, db, "run_b", "second half")

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeJSONBody(t, rr)
	if resp["count"].(float64) != 2 {
		t.Errorf("expected count=2, got %v", resp["count"])
	}
}

func TestRunAPI_ListRuns_Limit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")
	seedRun(t, db, "run_b", "")
	seedRun(t, db, "run_c", "")

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs?limit=2", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	resp := decodeJSONBody(t, rr)
	if resp["count"].(float64) != 2 {
		t.Errorf("expected count=2 with limit, got %v", resp["count"])
	}
}

func TestRunAPI_ListRuns_MethodNotAllowed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodDelete, "/api/replay/runs", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestRunAPI_GetRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "first half")
	seedTrail(t, db, "run_a", 1, 4)

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}

	resp := decodeJSONBody(t, rr)
	run := resp["run"].(map[string]interface{})
	if run["run_id"] != "run_a" {
		t.Errorf("expected run_id=run_a, got %v", run["run_id"])
	}
	if resp["observation_count"].(float64) != 4 {
		t.Errorf("expected observation_count=4, got %v", resp["observation_count"])
	}
}

func TestRunAPI_GetRun_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_missing", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing run, got %d", rr.Code)
	}
}

func TestRunAPI_DeleteRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")
	seedTrail(t, db, "run_a", 1, 3)

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodDelete, "/api/replay/runs/run_a", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}

	// Run and observations are gone.
	req = httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rr.Code)
	}

	count, err := sqlite.NewObservationStore(db).CountForRun("run_a")
	if err != nil {
		t.Fatalf("CountForRun failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 observations after delete, got %d", count)
	}
}

func TestRunAPI_Observations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")
	seedTrail(t, db, "run_a", 1, 5)
	seedTrail(t, db, "run_a", 2, 5)

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	// All observations.
	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/observations", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONBody(t, rr)
	if resp["count"].(float64) != 10 {
		t.Errorf("expected 10 observations, got %v", resp["count"])
	}

	// Filter by track.
	req = httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/observations?track_id=2", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	resp = decodeJSONBody(t, rr)
	if resp["count"].(float64) != 5 {
		t.Errorf("expected 5 observations for track 2, got %v", resp["count"])
	}

	// Filter by frame window.
	req = httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/observations?start_frame=1&end_frame=2", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	resp = decodeJSONBody(t, rr)
	if resp["count"].(float64) != 4 {
		t.Errorf("expected 4 observations in frames 1-2, got %v", resp["count"])
	}

	// Bad track id.
	req = httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/observations?track_id=abc", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad track_id, got %d", rr.Code)
	}
}

func TestRunAPI_RunTracks(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")
	seedTrail(t, db, "run_a", 1, 5)
	seedTrail(t, db, "run_a", 2, 3)

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/tracks", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONBody(t, rr)
	if resp["count"].(float64) != 2 {
		t.Errorf("expected 2 track summaries, got %v", resp["count"])
	}

	tracks := resp["tracks"].([]interface{})
	first := tracks[0].(map[string]interface{})
	if first["observation_count"].(float64) != 5 {
		t.Errorf("expected 5 observations for first track, got %v", first["observation_count"])
	}
}

func TestRunAPI_Timeline(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")
	seedTrail(t, db, "run_a", 1, 4)
	seedTrail(t, db, "run_a", 2, 4)

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/timeline", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONBody(t, rr)
	if resp["first_frame"].(float64) != 0 {
		t.Errorf("expected first_frame=0, got %v", resp["first_frame"])
	}
	if resp["last_frame"].(float64) != 3 {
		t.Errorf("expected last_frame=3, got %v", resp["last_frame"])
	}
	if resp["count"].(float64) != 2 {
		t.Errorf("expected 2 timelines, got %v", resp["count"])
	}
}

func TestRunAPI_Timeline_Empty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/timeline", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for empty run, got %d", rr.Code)
	}
}

func TestRunAPI_Compare(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Identical geometry under different identities: the runs should
	// line up one-to-one.
	seedRun(t, db, "run_a", "")
	seedTrailAt(t, db, "run_a", 1, 5, 400, 200)
	seedRun(t, db, "run_b", "")
	seedTrailAt(t, db, "run_b", 7, 5, 400, 200)

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/compare?run1=run_a&run2=run_b", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONBody(t, rr)
	matched := resp["matched_tracks"].([]interface{})
	if len(matched) != 1 {
		t.Fatalf("expected 1 matched track pair, got %d", len(matched))
	}
	pair := matched[0].(map[string]interface{})
	if pair["track1_id"].(float64) != 1 || pair["track2_id"].(float64) != 7 {
		t.Errorf("expected pairing 1<->7, got %v<->%v", pair["track1_id"], pair["track2_id"])
	}
	if resp["identity_churn"].(float64) != 0 {
		t.Errorf("expected zero identity churn, got %v", resp["identity_churn"])
	}
}

func TestRunAPI_Compare_MissingRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/compare?run1=run_a&run2=run_missing", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing comparison run, got %d", rr.Code)
	}
}

func TestRunAPI_Compare_MissingParams(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/compare?run1=run_a", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without run2, got %d", rr.Code)
	}
}

func TestRunAPI_StartStopLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	api := NewRunAPI(db, "court-lifecycle")
	api.SetRunManager(sqlite.NewRunManager(db, "court-lifecycle"))
	mux := newRunMux(t, api)

	// Start a labelled run.
	body := strings.NewReader(`{"label": "tuning sweep", "source_type": "live"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/replay/runs/start", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("start: expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONBody(t, rr)
	runID, _ := resp["run_id"].(string)
	if !strings.HasPrefix(runID, "run_") {
		t.Fatalf("expected run_-prefixed id, got %q", runID)
	}

	// Active reports the run.
	req = httptest.NewRequest(http.MethodGet, "/api/replay/runs/active", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	resp = decodeJSONBody(t, rr)
	if resp["active"] != true {
		t.Error("expected active=true after start")
	}
	if resp["run_id"] != runID {
		t.Errorf("expected active run %q, got %v", runID, resp["run_id"])
	}

	// Second start conflicts.
	req = httptest.NewRequest(http.MethodPost, "/api/replay/runs/start", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 on double start, got %d", rr.Code)
	}

	// Stop returns the finished run id.
	req = httptest.NewRequest(http.MethodPost, "/api/replay/runs/stop", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop: expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}
	resp = decodeJSONBody(t, rr)
	if resp["run_id"] != runID {
		t.Errorf("expected stopped run %q, got %v", runID, resp["run_id"])
	}

	// Active is clear again; a second stop conflicts.
	req = httptest.NewRequest(http.MethodGet, "/api/replay/runs/active", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	resp = decodeJSONBody(t, rr)
	if resp["active"] != false {
		t.Error("expected active=false after stop")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/replay/runs/stop", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 on double stop, got %d", rr.Code)
	}

	// The run row records completion.
	run, err := sqlite.NewRunStore(db).Get(runID)
	if err != nil {
		t.Fatalf("Get after stop failed: %v", err)
	}
	if run.Status != sqlite.RunStatusCompleted {
		t.Errorf("expected completed status, got %q", run.Status)
	}
}

func TestRunAPI_Start_NoManager(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Unique stream id: nothing registered for it.
	mux := newRunMux(t, NewRunAPI(db, "court-no-manager"))

	req := httptest.NewRequest(http.MethodPost, "/api/replay/runs/start", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without run manager, got %d", rr.Code)
	}
}

func TestRunAPI_Start_MethodNotAllowed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/start", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET start, got %d", rr.Code)
	}
}

func TestRunAPI_RegistryFallback(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// A manager registered for the stream is picked up without SetRunManager.
	rm := sqlite.NewRunManager(db, "court-registry")
	sqlite.RegisterRunManager("court-registry", rm)

	mux := newRunMux(t, NewRunAPI(db, "court-registry"))

	req := httptest.NewRequest(http.MethodPost, "/api/replay/runs/start", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 via registry fallback, got %d: %s", rr.Code, rr.Body.String())
	}

	if err := rm.CompleteRun(); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}
}

func TestRunAPI_TrailPNG(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "plot me")
	seedTrail(t, db, "run_a", 1, 6)

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/plot.png", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}
	if ctype := rr.Header().Get("Content-Type"); ctype != "image/png" {
		t.Errorf("expected image/png, got %q", ctype)
	}
	if rr.Body.Len() == 0 {
		t.Error("expected non-empty PNG body")
	}
}

func TestRunAPI_UnknownSubResource(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")

	mux := newRunMux(t, NewRunAPI(db, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs/run_a/nonsense", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown sub-resource, got %d", rr.Code)
	}
}

func TestRunAPI_NoDatabase(t *testing.T) {
	mux := newRunMux(t, NewRunAPI(nil, "court-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/replay/runs", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without database, got %d", rr.Code)
	}
}
