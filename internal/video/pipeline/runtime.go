package pipeline

import (
	"github.com/courtside-data/replay.vision/internal/video/l1ingest"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// StreamRuntime bundles per-stream dependencies that were previously
// accessed via global registries. Passing a StreamRuntime through
// constructors makes wiring explicit and testing deterministic.
type StreamRuntime struct {
	StreamID   string
	Listener   *l1ingest.DetectionListener
	Tracker    *l5tracks.Tracker
	RunManager *sqlite.RunManager
}
