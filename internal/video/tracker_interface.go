package video

import "image"

// TrackOutput is one confirmed track's contribution to a frame snapshot: the
// current best box estimate in corner coordinates and the stable identity.
type TrackOutput struct {
	Box
	TrackID int64 `json:"track_id"`
}

// TrackerMetrics is a snapshot of tracker lifecycle counters, exposed on the
// monitor API.
type TrackerMetrics struct {
	FramesProcessed int64 `json:"frames_processed"`
	TracksCreated   int64 `json:"tracks_created"`
	TracksPromoted  int64 `json:"tracks_promoted"`
	TracksDeleted   int64 `json:"tracks_deleted"`
	Matches         int64 `json:"matches"`
	Misses          int64 `json:"misses"`
	ActiveTracks    int   `json:"active_tracks"`
	ConfirmedTracks int   `json:"confirmed_tracks"`
}

// TrackerInterface is the contract between the per-stream tracker and its
// callers (pipeline, monitor, sweep). One frame is fully processed per
// Update call; implementations own their track table exclusively and return
// only copies.
type TrackerInterface interface {
	// Update runs one full frame cycle over the filtered detections and
	// returns the confirmed-track snapshot in ascending identity order.
	Update(detections []Detection) []TrackOutput

	// Snapshot returns the confirmed-track view of the last processed
	// frame without advancing the tracker.
	Snapshot() []TrackOutput

	// ActiveTrackCount returns the number of live (non-deleted) tracks.
	ActiveTrackCount() int

	// Metrics returns a copy of the lifecycle counters.
	Metrics() TrackerMetrics

	// Reset drops all tracks and counters. Identity numbering is not
	// rewound; identities stay unique across a reset.
	Reset()
}

// DebugCollector receives per-frame association and lifecycle events when a
// monitor attaches one to the tracker. Implementations must be cheap; the
// tracker calls them synchronously inside the frame cycle.
type DebugCollector interface {
	RecordAssociation(frame int64, trackID int64, det Detection, cost float64)
	RecordLifecycle(frame int64, trackID int64, from, to string)
}

// Frame is one decoded video frame with its index in the stream.
type Frame struct {
	Index int64
	Image image.Image
}

// FrameSource yields decoded frames for the embedder and annotator. Next
// returns ok=false when the stream is exhausted; open failures surface from
// the constructor, not from Next.
type FrameSource interface {
	Next() (Frame, bool, error)
	Close() error
}
