package monitor

import (
	"net/http"
	"sync"
	"time"

	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/httputil"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l2detect"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/l6replay"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// trackerConfigSink is the capability the tuning API needs from a live
// tracker. The concrete *l5tracks.Tracker implements it.
type trackerConfigSink interface {
	UpdateConfig(l5tracks.TrackerConfig)
}

// TuningAPI serves and updates the stream's tuning parameters at runtime.
//
// The API keeps the operator's overrides as a TuningConfig with nil for
// every untouched field. GET responses show both the overrides and the
// effective values (override or stock default), and updates merge into
// the existing overrides so repeated partial POSTs compose.
type TuningAPI struct {
	streamID string

	mu      sync.RWMutex
	current *config.TuningConfig
	tracker video.TrackerInterface
}

// NewTuningAPI creates a new TuningAPI instance. A nil initial config
// starts with no overrides.
func NewTuningAPI(streamID string, initial *config.TuningConfig) *TuningAPI {
	if initial == nil {
		initial = config.EmptyTuningConfig()
	}
	return &TuningAPI{
		streamID: streamID,
		current:  initial,
	}
}

// SetTracker attaches the live tracker so updates take effect immediately.
func (api *TuningAPI) SetTracker(t video.TrackerInterface) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.tracker = t
}

// Config returns the current override set.
func (api *TuningAPI) Config() *config.TuningConfig {
	api.mu.RLock()
	defer api.mu.RUnlock()
	return api.current
}

// RunParams captures the effective parameter set for persisting with a
// run started right now.
func (api *TuningAPI) RunParams() sqlite.RunParams {
	api.mu.RLock()
	cfg := api.current
	api.mu.RUnlock()

	return sqlite.RunParams{
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Filter:    sqlite.FromFilterConfig(l2detect.ConfigFromTuning(cfg)),
		Tracking:  sqlite.FromTrackerConfig(l5tracks.TrackerConfigFromTuning(cfg)),
		Replay:    sqlite.FromAugmentConfig(l6replay.AugmentConfigFromTuning(cfg), cfg.GetFrameInterval()),
	}
}

// RegisterRoutes registers tuning API routes on the provided mux.
func (api *TuningAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/replay/tuning", api.handleTuning)
}

func (api *TuningAPI) handleTuning(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.handleGetTuning(w, r)
	case http.MethodPost, http.MethodPut:
		api.handleUpdateTuning(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleGetTuning returns the overrides and the effective values.
func (api *TuningAPI) handleGetTuning(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, api.tuningResponse())
}

// handleUpdateTuning applies a partial update. Only fields present in the
// request body change; the merged result is validated before it replaces
// the current overrides, so a bad request leaves the stream untouched.
func (api *TuningAPI) handleUpdateTuning(w http.ResponseWriter, r *http.Request) {
	update := config.EmptyTuningConfig()
	if !httputil.DecodeJSON(w, r, update) {
		return
	}

	api.mu.Lock()
	merged := *api.current
	mergeTuning(&merged, update)
	if err := merged.Validate(); err != nil {
		api.mu.Unlock()
		httputil.BadRequest(w, err.Error())
		return
	}
	api.current = &merged
	tracker := api.tracker
	api.mu.Unlock()

	if sink, ok := tracker.(trackerConfigSink); ok {
		sink.UpdateConfig(l5tracks.TrackerConfigFromTuning(&merged))
	}

	httputil.WriteJSONOK(w, api.tuningResponse())
}

func (api *TuningAPI) tuningResponse() map[string]interface{} {
	api.mu.RLock()
	cfg := api.current
	applied := api.tracker != nil
	api.mu.RUnlock()

	return map[string]interface{}{
		"stream_id": api.streamID,
		"applied":   applied,
		"overrides": cfg,
		"effective": map[string]interface{}{
			"target_class":              cfg.GetTargetClass(),
			"confidence_threshold":      cfg.GetConfidenceThreshold(),
			"min_area":                  cfg.GetMinArea(),
			"max_age":                   cfg.GetMaxAge(),
			"min_hits":                  cfg.GetMinHits(),
			"motion_gate_threshold":     cfg.GetMotionGateThreshold(),
			"appearance_gate_threshold": cfg.GetAppearanceGate(),
			"appearance_memory_size":    cfg.GetAppearanceMemorySize(),
			"max_iou_distance":          cfg.GetMaxIoUDistance(),
			"strict_tentative":          cfg.GetStrictTentative(),
			"max_tracks":                cfg.GetMaxTracks(),
			"std_weight_position":       cfg.GetStdWeightPosition(),
			"std_weight_velocity":       cfg.GetStdWeightVelocity(),
			"frame_interval":            cfg.GetFrameInterval(),
			"augment_width_ratio":       cfg.GetAugmentWidthRatio(),
			"augment_height_ratio":      cfg.GetAugmentHeightRatio(),
			"frame_width":               cfg.GetFrameWidth(),
			"frame_height":              cfg.GetFrameHeight(),
		},
	}
}

// mergeTuning copies every set field of src over dst.
func mergeTuning(dst, src *config.TuningConfig) {
	if src.TargetClass != nil {
		dst.TargetClass = src.TargetClass
	}
	if src.ConfidenceThreshold != nil {
		dst.ConfidenceThreshold = src.ConfidenceThreshold
	}
	if src.MinArea != nil {
		dst.MinArea = src.MinArea
	}
	if src.MaxAge != nil {
		dst.MaxAge = src.MaxAge
	}
	if src.MinHits != nil {
		dst.MinHits = src.MinHits
	}
	if src.MotionGateThreshold != nil {
		dst.MotionGateThreshold = src.MotionGateThreshold
	}
	if src.AppearanceGate != nil {
		dst.AppearanceGate = src.AppearanceGate
	}
	if src.AppearanceMemorySize != nil {
		dst.AppearanceMemorySize = src.AppearanceMemorySize
	}
	if src.MaxIoUDistance != nil {
		dst.MaxIoUDistance = src.MaxIoUDistance
	}
	if src.StrictTentative != nil {
		dst.StrictTentative = src.StrictTentative
	}
	if src.MaxTracks != nil {
		dst.MaxTracks = src.MaxTracks
	}
	if src.StdWeightPosition != nil {
		dst.StdWeightPosition = src.StdWeightPosition
	}
	if src.StdWeightVelocity != nil {
		dst.StdWeightVelocity = src.StdWeightVelocity
	}
	if src.FrameInterval != nil {
		dst.FrameInterval = src.FrameInterval
	}
	if src.AugmentWidthRatio != nil {
		dst.AugmentWidthRatio = src.AugmentWidthRatio
	}
	if src.AugmentHeightRatio != nil {
		dst.AugmentHeightRatio = src.AugmentHeightRatio
	}
	if src.FrameWidth != nil {
		dst.FrameWidth = src.FrameWidth
	}
	if src.FrameHeight != nil {
		dst.FrameHeight = src.FrameHeight
	}
}
