package monitor

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/courtside-data/replay.vision/internal/httputil"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l6replay"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// runsPrefix is the base path of the runs API; sub-resources hang off it.
const runsPrefix = "/api/replay/runs/"

// RunAPI provides HTTP handlers over persisted replay runs and the run
// lifecycle of the live stream.
type RunAPI struct {
	db       *sql.DB
	streamID string

	mu         sync.RWMutex
	runManager *sqlite.RunManager
	params     func() sqlite.RunParams
}

// NewRunAPI creates a new RunAPI instance.
func NewRunAPI(db *sql.DB, streamID string) *RunAPI {
	return &RunAPI{
		db:       db,
		streamID: streamID,
		params:   sqlite.DefaultRunParams,
	}
}

// SetRunManager sets the run manager used for starting and stopping runs.
func (api *RunAPI) SetRunManager(rm *sqlite.RunManager) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.runManager = rm
}

// SetParamsSource sets the function that captures the parameter set to
// record when a run is started through the API. The tuning API provides
// this so monitor-started runs store the operator's current overrides.
func (api *RunAPI) SetParamsSource(fn func() sqlite.RunParams) {
	api.mu.Lock()
	defer api.mu.Unlock()
	if fn != nil {
		api.params = fn
	}
}

// manager returns the configured run manager, falling back to the
// per-stream registry so runs started by the pipeline are visible too.
func (api *RunAPI) manager() *sqlite.RunManager {
	api.mu.RLock()
	rm := api.runManager
	api.mu.RUnlock()
	if rm != nil {
		return rm
	}
	return sqlite.GetRunManager(api.streamID)
}

// RegisterRoutes registers run API routes on the provided mux.
func (api *RunAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/replay/runs", api.handleListRuns)
	mux.HandleFunc(runsPrefix, api.handleRunDispatch)
}

// handleListRuns returns recent runs, newest first.
//
// Query params:
//
//	limit (optional, default 50, max 500)
func (api *RunAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if api.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "results database not configured")
		return
	}

	limit := parseLimit(r, 50, 500)

	runs, err := sqlite.NewRunStore(api.db).List(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleRunDispatch routes /api/replay/runs/* sub-paths:
//
//	POST   /api/replay/runs/start
//	POST   /api/replay/runs/stop
//	GET    /api/replay/runs/active
//	GET    /api/replay/runs/compare?run1=..&run2=..
//	GET    /api/replay/runs/{id}
//	DELETE /api/replay/runs/{id}
//	GET    /api/replay/runs/{id}/observations
//	GET    /api/replay/runs/{id}/tracks
//	GET    /api/replay/runs/{id}/timeline
//	GET    /api/replay/runs/{id}/plot.png
func (api *RunAPI) handleRunDispatch(w http.ResponseWriter, r *http.Request) {
	runID, rest := parseRunPath(r.URL.Path)
	if runID == "" {
		httputil.NotFound(w, "run id required")
		return
	}

	// Lifecycle and comparison verbs are reserved path segments, not run ids.
	switch runID {
	case "start":
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleStartRun(w, r)
		return
	case "stop":
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleStopRun(w, r)
		return
	case "active":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleActiveRun(w, r)
		return
	case "compare":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleCompareRuns(w, r)
		return
	}

	if api.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "results database not configured")
		return
	}

	switch rest {
	case "":
		switch r.Method {
		case http.MethodGet:
			api.handleGetRun(w, r, runID)
		case http.MethodDelete:
			api.handleDeleteRun(w, r, runID)
		default:
			httputil.MethodNotAllowed(w)
		}
	case "observations":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleObservations(w, r, runID)
	case "tracks":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleRunTracks(w, r, runID)
	case "timeline":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleTimeline(w, r, runID)
	case "plot.png":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		api.handleTrailPNG(w, r, runID)
	default:
		httputil.NotFound(w, "unknown run resource: "+rest)
	}
}

// parseRunPath splits a runs API path into the run id and the remaining
// sub-resource, e.g. "/api/replay/runs/run_1/tracks" -> ("run_1", "tracks").
func parseRunPath(path string) (runID, rest string) {
	trimmed := strings.TrimPrefix(path, runsPrefix)
	if trimmed == path || trimmed == "" {
		return "", ""
	}
	parts := strings.SplitN(trimmed, "/", 2)
	runID = parts[0]
	if len(parts) == 2 {
		rest = parts[1]
	}
	return runID, rest
}

// parseLimit reads the limit query parameter with a default and a cap.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= max {
			limit = v
		}
	}
	return limit
}

// StartRunRequest is the request body for starting a replay run.
type StartRunRequest struct {
	Label      string `json:"label,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
}

// handleStartRun begins recording the live stream into a new run.
func (api *RunAPI) handleStartRun(w http.ResponseWriter, r *http.Request) {
	rm := api.manager()
	if rm == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no run manager for stream "+api.streamID)
		return
	}
	if rm.IsRunActive() {
		httputil.WriteJSONError(w, http.StatusConflict, "run already active: "+rm.CurrentRunID())
		return
	}

	var req StartRunRequest
	// An empty body starts an unlabelled live run.
	if r.ContentLength != 0 {
		if !httputil.DecodeJSON(w, r, &req) {
			return
		}
	}
	if req.SourceType == "" {
		req.SourceType = "live"
	}

	api.mu.RLock()
	params := api.params()
	api.mu.RUnlock()

	runID, err := rm.StartRun(req.SourceType, req.SourcePath, req.Label, params)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("start run: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status": "ok",
		"run_id": runID,
	})
}

// handleStopRun completes the active run and writes its final counters.
func (api *RunAPI) handleStopRun(w http.ResponseWriter, r *http.Request) {
	rm := api.manager()
	if rm == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no run manager for stream "+api.streamID)
		return
	}
	if !rm.IsRunActive() {
		httputil.WriteJSONError(w, http.StatusConflict, "no active run to stop")
		return
	}

	runID := rm.CurrentRunID()
	if err := rm.CompleteRun(); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("complete run: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status": "ok",
		"run_id": runID,
	})
}

// handleActiveRun reports whether a run is recording and which one.
func (api *RunAPI) handleActiveRun(w http.ResponseWriter, r *http.Request) {
	rm := api.manager()
	if rm == nil || !rm.IsRunActive() {
		httputil.WriteJSONOK(w, map[string]interface{}{"active": false})
		return
	}

	resp := map[string]interface{}{
		"active": true,
		"run_id": rm.CurrentRunID(),
	}
	if params, ok := rm.GetCurrentRunParams(); ok {
		resp["params"] = params
	}
	httputil.WriteJSONOK(w, resp)
}

// handleGetRun returns one run with its stored parameter set.
func (api *RunAPI) handleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := sqlite.NewRunStore(api.db).Get(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.WriteJSONError(w, http.StatusNotFound, "run not found: "+runID)
			return
		}
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get run: %v", err))
		return
	}

	resp := map[string]interface{}{"run": run}
	if count, err := sqlite.NewObservationStore(api.db).CountForRun(runID); err == nil {
		resp["observation_count"] = count
	}
	if len(run.ParamsJSON) > 0 {
		if params, err := sqlite.ParseRunParams(run.ParamsJSON); err == nil {
			resp["params"] = params
		}
	}
	httputil.WriteJSONOK(w, resp)
}

// handleDeleteRun removes a run and all of its observations.
func (api *RunAPI) handleDeleteRun(w http.ResponseWriter, r *http.Request, runID string) {
	store := sqlite.NewRunStore(api.db)
	if _, err := store.Get(runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.WriteJSONError(w, http.StatusNotFound, "run not found: "+runID)
			return
		}
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get run: %v", err))
		return
	}
	if err := store.Delete(runID); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("delete run: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status": "deleted",
		"run_id": runID,
	})
}

// handleObservations returns per-frame track boxes for a run.
//
// Query params:
//
//	track_id    (optional, default all tracks)
//	start_frame (optional, default 0)
//	end_frame   (optional, default open-ended)
//	limit       (optional, default 1000, max 10000)
func (api *RunAPI) handleObservations(w http.ResponseWriter, r *http.Request, runID string) {
	trackID := int64(-1)
	if t := r.URL.Query().Get("track_id"); t != "" {
		v, err := strconv.ParseInt(t, 10, 64)
		if err != nil || v < 0 {
			httputil.BadRequest(w, "invalid track_id: "+t)
			return
		}
		trackID = v
	}
	var startFrame, endFrame int64
	if s := r.URL.Query().Get("start_frame"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			startFrame = v
		}
	}
	if e := r.URL.Query().Get("end_frame"); e != "" {
		if v, err := strconv.ParseInt(e, 10, 64); err == nil && v > 0 {
			endFrame = v
		}
	}
	limit := parseLimit(r, 1000, 10000)

	observations, err := sqlite.NewObservationStore(api.db).ListByRun(runID, trackID, startFrame, endFrame, limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list observations: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id":       runID,
		"observations": observations,
		"count":        len(observations),
	})
}

// handleRunTracks returns per-track aggregates for a run.
func (api *RunAPI) handleRunTracks(w http.ResponseWriter, r *http.Request, runID string) {
	summaries, err := sqlite.NewObservationStore(api.db).TrackSummaries(runID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("track summaries: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id": runID,
		"tracks": summaries,
		"count":  len(summaries),
	})
}

// handleTimeline rebuilds the dense per-player box sequences of a run from
// its stored observations.
func (api *RunAPI) handleTimeline(w http.ResponseWriter, r *http.Request, runID string) {
	observations, err := sqlite.NewObservationStore(api.db).ListAllByRun(runID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list observations: %v", err))
		return
	}
	if len(observations) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no observations for run: "+runID)
		return
	}

	builder := l6replay.NewTimelineBuilder()
	cur := int64(-1)
	var outputs []video.TrackOutput
	for _, obs := range observations {
		if obs.Frame != cur {
			if cur >= 0 {
				builder.Add(cur, outputs)
			}
			cur = obs.Frame
			outputs = nil
		}
		outputs = append(outputs, video.TrackOutput{Box: obs.Box(), TrackID: obs.TrackID})
	}
	builder.Add(cur, outputs)

	first, last, _ := builder.FrameRange()
	timelines := builder.Timelines()

	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id":      runID,
		"first_frame": first,
		"last_frame":  last,
		"timelines":   timelines,
		"count":       len(timelines),
	})
}

// handleCompareRuns aligns the tracks of two runs by box-overlap voting.
//
// Query params:
//
//	run1 (required)
//	run2 (required)
func (api *RunAPI) handleCompareRuns(w http.ResponseWriter, r *http.Request) {
	if api.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "results database not configured")
		return
	}
	run1 := r.URL.Query().Get("run1")
	run2 := r.URL.Query().Get("run2")
	if run1 == "" || run2 == "" {
		httputil.BadRequest(w, "both 'run1' and 'run2' parameters are required")
		return
	}

	comparison, err := sqlite.CompareRuns(api.db, run1, run2)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("run not found: %v", err))
			return
		}
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("compare runs: %v", err))
		return
	}

	httputil.WriteJSONOK(w, comparison)
}

// handleTrailPNG streams a rendered trail plot of the run's observations.
func (api *RunAPI) handleTrailPNG(w http.ResponseWriter, r *http.Request, runID string) {
	store := sqlite.NewRunStore(api.db)
	run, err := store.Get(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.WriteJSONError(w, http.StatusNotFound, "run not found: "+runID)
			return
		}
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get run: %v", err))
		return
	}

	observations, err := sqlite.NewObservationStore(api.db).ListAllByRun(runID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list observations: %v", err))
		return
	}
	if len(observations) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no observations for run: "+runID)
		return
	}

	p, err := BuildTrailPlot(run, observations)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("build plot: %v", err))
		return
	}

	wt, err := p.WriterTo(trailPlotWidth, trailPlotHeight, "png")
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		// Headers are already out; a client disconnect mid-PNG is routine.
		log.Printf("Trail plot write for %s interrupted: %v", runID, err)
	}
}
