package monitor

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/courtside-data/replay.vision/internal/httputil"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/pipeline"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

const tracksPrefix = "/api/replay/tracks/"

// TrackAPI provides HTTP handlers over the live tracker state. When no
// tracker is attached (or the stream is idle) it falls back to the last
// persisted frame of the most recent run.
type TrackAPI struct {
	db       *sql.DB
	streamID string

	mu      sync.RWMutex
	tracker video.TrackerInterface
}

// NewTrackAPI creates a new TrackAPI instance.
func NewTrackAPI(db *sql.DB, streamID string) *TrackAPI {
	return &TrackAPI{
		db:       db,
		streamID: streamID,
	}
}

// SetTracker attaches the live tracker. Safe to call while handlers run.
func (api *TrackAPI) SetTracker(t video.TrackerInterface) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.tracker = t
}

func (api *TrackAPI) currentTracker() video.TrackerInterface {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return api.tracker
}

// RegisterRoutes registers track API routes on the provided mux.
func (api *TrackAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/replay/tracks", api.handleActiveTracks)
	mux.HandleFunc(tracksPrefix, api.handleTrackDispatch)
}

// TrackResponse is the JSON view of one track.
type TrackResponse struct {
	TrackID         int64   `json:"track_id"`
	State           string  `json:"state"`
	X1              float32 `json:"x1"`
	Y1              float32 `json:"y1"`
	X2              float32 `json:"x2"`
	Y2              float32 `json:"y2"`
	Confidence      float32 `json:"confidence"`
	ClassID         int     `json:"class_id"`
	Hits            int     `json:"hits,omitempty"`
	TimeSinceUpdate int     `json:"time_since_update,omitempty"`
	StartFrame      int64   `json:"start_frame,omitempty"`
	LastFrame       int64   `json:"last_frame,omitempty"`
}

// TracksListResponse is the JSON envelope for track listings.
type TracksListResponse struct {
	StreamID  string          `json:"stream_id"`
	Source    string          `json:"source"`
	Frame     int64           `json:"frame"`
	Tracks    []TrackResponse `json:"tracks"`
	Count     int             `json:"count"`
	Timestamp string          `json:"timestamp"`
}

// handleActiveTracks returns the confirmed tracks of the current frame.
func (api *TrackAPI) handleActiveTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if t := api.currentTracker(); t != nil {
		httputil.WriteJSONOK(w, api.liveTracksResponse(t))
		return
	}

	resp, err := api.storedTracksResponse()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteJSONOK(w, resp)
}

// liveTracksResponse reads the tracker snapshot. The concrete tracker
// exposes full track records; any other TrackerInterface implementation
// degrades to bare boxes.
func (api *TrackAPI) liveTracksResponse(t video.TrackerInterface) TracksListResponse {
	resp := TracksListResponse{
		StreamID:  api.streamID,
		Source:    "live",
		Tracks:    []TrackResponse{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if fr, ok := t.(interface{ CurrentFrame() int64 }); ok {
		resp.Frame = fr.CurrentFrame()
	}

	if src, ok := t.(pipeline.ConfirmedTrackSource); ok {
		for _, trk := range src.ConfirmedTracks() {
			box := trk.Box()
			resp.Tracks = append(resp.Tracks, TrackResponse{
				TrackID:         trk.ID,
				State:           string(trk.State),
				X1:              box.X1,
				Y1:              box.Y1,
				X2:              box.X2,
				Y2:              box.Y2,
				Confidence:      trk.Confidence,
				ClassID:         trk.ClassID,
				Hits:            trk.Hits,
				TimeSinceUpdate: trk.TimeSinceUpdate,
				StartFrame:      trk.StartFrame,
				LastFrame:       trk.LastFrame,
			})
		}
	} else {
		for _, out := range t.Snapshot() {
			resp.Tracks = append(resp.Tracks, TrackResponse{
				TrackID: out.TrackID,
				State:   string(l5tracks.TrackConfirmed),
				X1:      out.X1,
				Y1:      out.Y1,
				X2:      out.X2,
				Y2:      out.Y2,
			})
		}
	}
	resp.Count = len(resp.Tracks)
	return resp
}

// storedTracksResponse reads the latest persisted frame of the newest run.
func (api *TrackAPI) storedTracksResponse() (TracksListResponse, error) {
	var resp TracksListResponse
	if api.db == nil {
		return resp, fmt.Errorf("no tracker attached and no results database configured")
	}

	runs, err := sqlite.NewRunStore(api.db).List(1)
	if err != nil || len(runs) == 0 {
		return resp, fmt.Errorf("no tracker attached and no stored runs available")
	}
	runID := runs[0].RunID

	obsStore := sqlite.NewObservationStore(api.db)
	frame, ok, err := obsStore.LatestFrame(runID)
	if err != nil || !ok {
		return resp, fmt.Errorf("no tracker attached and no observations in run %s", runID)
	}

	observations, err := obsStore.ListByRun(runID, -1, frame, frame, 0)
	if err != nil {
		return resp, fmt.Errorf("read observations for run %s: %w", runID, err)
	}

	resp = TracksListResponse{
		StreamID:  api.streamID,
		Source:    "run:" + runID,
		Frame:     frame,
		Tracks:    []TrackResponse{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, obs := range observations {
		resp.Tracks = append(resp.Tracks, TrackResponse{
			TrackID:    obs.TrackID,
			State:      obs.State,
			X1:         obs.X1,
			Y1:         obs.Y1,
			X2:         obs.X2,
			Y2:         obs.Y2,
			Confidence: obs.Confidence,
			LastFrame:  obs.Frame,
		})
	}
	resp.Count = len(resp.Tracks)
	return resp, nil
}

// handleTrackDispatch routes /api/replay/tracks/* sub-paths:
//
//	GET /api/replay/tracks/summary
//	GET /api/replay/tracks/metrics
//	GET /api/replay/tracks/{id}
//	GET /api/replay/tracks/{id}?run_id=..
func (api *TrackAPI) handleTrackDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, tracksPrefix)
	switch rest {
	case "summary":
		api.handleTrackSummary(w, r)
		return
	case "metrics":
		api.handleMetrics(w, r)
		return
	}

	trackID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || trackID < 0 {
		httputil.BadRequest(w, "invalid track id: "+rest)
		return
	}
	api.handleTrackByID(w, r, trackID)
}

// handleTrackByID returns one track, from the live tracker by default or
// from a stored run when run_id is given.
func (api *TrackAPI) handleTrackByID(w http.ResponseWriter, r *http.Request, trackID int64) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		api.handleStoredTrack(w, runID, trackID)
		return
	}

	t := api.currentTracker()
	if t == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no tracker attached; pass run_id to query stored runs")
		return
	}

	if src, ok := t.(pipeline.ConfirmedTrackSource); ok {
		for _, trk := range src.ConfirmedTracks() {
			if trk.ID != trackID {
				continue
			}
			box := trk.Box()
			httputil.WriteJSONOK(w, TrackResponse{
				TrackID:         trk.ID,
				State:           string(trk.State),
				X1:              box.X1,
				Y1:              box.Y1,
				X2:              box.X2,
				Y2:              box.Y2,
				Confidence:      trk.Confidence,
				ClassID:         trk.ClassID,
				Hits:            trk.Hits,
				TimeSinceUpdate: trk.TimeSinceUpdate,
				StartFrame:      trk.StartFrame,
				LastFrame:       trk.LastFrame,
			})
			return
		}
	} else {
		for _, out := range t.Snapshot() {
			if out.TrackID != trackID {
				continue
			}
			httputil.WriteJSONOK(w, TrackResponse{
				TrackID: out.TrackID,
				State:   string(l5tracks.TrackConfirmed),
				X1:      out.X1,
				Y1:      out.Y1,
				X2:      out.X2,
				Y2:      out.Y2,
			})
			return
		}
	}

	httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("track %d not found", trackID))
}

// handleStoredTrack returns the full observation history of one track in
// one run.
func (api *TrackAPI) handleStoredTrack(w http.ResponseWriter, runID string, trackID int64) {
	if api.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "results database not configured")
		return
	}

	observations, err := sqlite.NewObservationStore(api.db).ListByRun(runID, trackID, 0, 0, 0)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list observations: %v", err))
		return
	}
	if len(observations) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, fmt.Sprintf("track %d not found in run %s", trackID, runID))
		return
	}

	first := observations[0]
	last := observations[len(observations)-1]
	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id":       runID,
		"track_id":     trackID,
		"first_frame":  first.Frame,
		"last_frame":   last.Frame,
		"observations": observations,
		"count":        len(observations),
	})
}

// handleTrackSummary returns aggregate counts over the live tracks.
func (api *TrackAPI) handleTrackSummary(w http.ResponseWriter, r *http.Request) {
	t := api.currentTracker()
	if t == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no tracker attached")
		return
	}

	metrics := t.Metrics()
	resp := map[string]interface{}{
		"stream_id":        api.streamID,
		"active_tracks":    metrics.ActiveTracks,
		"confirmed_tracks": metrics.ConfirmedTracks,
		"frames_processed": metrics.FramesProcessed,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	if fr, ok := t.(interface{ CurrentFrame() int64 }); ok {
		resp["frame"] = fr.CurrentFrame()
	}

	if src, ok := t.(pipeline.ConfirmedTrackSource); ok {
		byClass := make(map[string]int)
		var confSum float64
		tracks := src.ConfirmedTracks()
		for _, trk := range tracks {
			byClass[strconv.Itoa(trk.ClassID)]++
			confSum += float64(trk.Confidence)
		}
		resp["by_class"] = byClass
		if len(tracks) > 0 {
			resp["mean_confidence"] = confSum / float64(len(tracks))
		}
	}

	httputil.WriteJSONOK(w, resp)
}

// handleMetrics returns the tracker lifecycle counters.
func (api *TrackAPI) handleMetrics(w http.ResponseWriter, r *http.Request) {
	t := api.currentTracker()
	if t == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no tracker attached")
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"stream_id": api.streamID,
		"metrics":   t.Metrics(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
