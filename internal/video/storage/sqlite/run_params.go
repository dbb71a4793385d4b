package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/courtside-data/replay.vision/internal/video/l2detect"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/l6replay"
)

// RunParams captures the complete parameter set of a replay run. It is
// serialized into the replay_runs row so a run can be reproduced or
// diffed against another run later.
//
// The sub-structs mirror the layer configs rather than embedding them:
// persisted JSON must stay stable even when the in-memory configs grow
// fields that have no business being stored.
type RunParams struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	Filter   FilterParamsExport   `json:"filter"`
	Tracking TrackingParamsExport `json:"tracking"`
	Replay   ReplayParamsExport   `json:"replay"`
}

// FilterParamsExport mirrors the L2 detection filter config.
type FilterParamsExport struct {
	TargetClass   int     `json:"target_class"`
	MinConfidence float32 `json:"min_confidence"`
	MinArea       float32 `json:"min_area"`
}

// TrackingParamsExport mirrors the L5 tracker config.
type TrackingParamsExport struct {
	MaxAge           int     `json:"max_age"`
	MinHits          int     `json:"min_hits"`
	MotionGate       float64 `json:"motion_gate_threshold"`
	AppearanceGate   float64 `json:"appearance_gate_threshold"`
	AppearanceBudget int     `json:"appearance_memory_size"`
	MaxIoUDistance   float64 `json:"max_iou_distance"`
	StrictTentative  bool    `json:"strict_tentative"`
	MaxTracks        int     `json:"max_tracks"`
}

// ReplayParamsExport mirrors the L6 post-processing config plus the
// pipeline cadence.
type ReplayParamsExport struct {
	FrameInterval      int     `json:"frame_interval"`
	AugmentWidthRatio  float32 `json:"augment_width_ratio"`
	AugmentHeightRatio float32 `json:"augment_height_ratio"`
}

// FromFilterConfig converts an L2 filter config to its export mirror.
func FromFilterConfig(cfg l2detect.Config) FilterParamsExport {
	return FilterParamsExport{
		TargetClass:   cfg.TargetClass,
		MinConfidence: cfg.MinConfidence,
		MinArea:       cfg.MinArea,
	}
}

// FromTrackerConfig converts an L5 tracker config to its export mirror.
func FromTrackerConfig(cfg l5tracks.TrackerConfig) TrackingParamsExport {
	return TrackingParamsExport{
		MaxAge:           cfg.MaxAge,
		MinHits:          cfg.MinHits,
		MotionGate:       cfg.MotionGate,
		AppearanceGate:   cfg.AppearanceGate,
		AppearanceBudget: cfg.AppearanceBudget,
		MaxIoUDistance:   cfg.MaxIoUDistance,
		StrictTentative:  cfg.StrictTentative,
		MaxTracks:        cfg.MaxTracks,
	}
}

// FromAugmentConfig converts an L6 augment config plus the pipeline
// frame interval to the replay export mirror.
func FromAugmentConfig(cfg l6replay.AugmentConfig, frameInterval int) ReplayParamsExport {
	return ReplayParamsExport{
		FrameInterval:      frameInterval,
		AugmentWidthRatio:  cfg.WidthRatio,
		AugmentHeightRatio: cfg.HeightRatio,
	}
}

// DefaultRunParams returns a RunParams populated from the layer defaults.
func DefaultRunParams() RunParams {
	return RunParams{
		Version:   "1.0",
		Timestamp: time.Now(),
		Filter:    FromFilterConfig(l2detect.DefaultConfig()),
		Tracking:  FromTrackerConfig(l5tracks.DefaultTrackerConfig()),
		Replay:    FromAugmentConfig(l6replay.DefaultAugmentConfig(), 1),
	}
}

// ToJSON serializes the params for storage in the replay_runs row.
func (p RunParams) ToJSON() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}
	return data, nil
}

// ParseRunParams deserializes params stored in a replay_runs row.
func ParseRunParams(data []byte) (RunParams, error) {
	var p RunParams
	if err := json.Unmarshal(data, &p); err != nil {
		return RunParams{}, fmt.Errorf("parse run params: %w", err)
	}
	return p, nil
}

// TrackerConfigFromParams converts stored tracking params back into an
// L5 tracker config, for replaying a run with its original tuning.
func TrackerConfigFromParams(p TrackingParamsExport) l5tracks.TrackerConfig {
	return l5tracks.TrackerConfig{
		MaxAge:           p.MaxAge,
		MinHits:          p.MinHits,
		MotionGate:       p.MotionGate,
		AppearanceGate:   p.AppearanceGate,
		AppearanceBudget: p.AppearanceBudget,
		MaxIoUDistance:   p.MaxIoUDistance,
		StrictTentative:  p.StrictTentative,
		MaxTracks:        p.MaxTracks,
	}
}
