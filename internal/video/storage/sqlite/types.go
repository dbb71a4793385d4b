package sqlite

import (
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
)

// Type aliases to avoid import cycles.
//
// The storage layer needs to reference types from the tracking layers
// for persistence. To avoid circular dependencies, we define local type
// aliases that point to the canonical definitions in their respective
// layers.

// Track represents a live track from L5 (tracking layer).
type Track = l5tracks.Track

// TrackState represents the lifecycle state of a tracked player.
type TrackState = l5tracks.TrackState

// TrackerConfig contains configuration for the player tracker from L5.
type TrackerConfig = l5tracks.TrackerConfig

// Box represents a corner-form bounding box from the shared model.
type Box = video.Box

// TrackOutput represents one confirmed-track snapshot entry.
type TrackOutput = video.TrackOutput

// Constants re-exported from l5tracks for track lifecycle states.
const (
	TrackTentative = l5tracks.TrackTentative
	TrackConfirmed = l5tracks.TrackConfirmed
	TrackDeleted   = l5tracks.TrackDeleted
)
