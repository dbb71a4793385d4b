package pipeline

import (
	"reflect"
	"time"

	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l2detect"
	"github.com/courtside-data/replay.vision/internal/video/l3embed"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/l6replay"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// PublishSink sends per-frame snapshots to external consumers (monitor,
// live feeds) without the pipeline importing the network package.
type PublishSink interface {
	PublishFrame(frame int64, outputs []video.TrackOutput)
}

// ConfirmedTrackSource exposes full track records for persistence. The
// concrete *l5tracks.Tracker implements it; other TrackerInterface
// implementations may not, so the pipeline resolves the capability with a
// type assertion and skips observation capture when it is absent.
type ConfirmedTrackSource interface {
	ConfirmedTracks() []l5tracks.Track
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
// This handles the Go interface nil pitfall where interface{} != nil but the underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// ---------------------------------------------------------------------------
// Stage interfaces: layer-aligned contracts for the replay pipeline.
//
// These interfaces define the boundaries between processing stages. Current
// code still uses the monolithic callback below; the contracts exist to
// guide incremental extraction of each stage into its own package.
// ---------------------------------------------------------------------------

// FilterStage applies the detection boundary: validation, class gate,
// confidence gate, area gate (L2 Detect).
type FilterStage interface {
	// FilterDetections returns the detections that survive the boundary.
	FilterDetections(dets []video.Detection) []video.Detection
}

// EmbedStage attaches appearance vectors to detections (L3 Embed).
type EmbedStage interface {
	// Embed returns one vector per detection, index-aligned with the input.
	Embed(frame video.Frame, dets []video.Detection) ([][]float32, error)
}

// TrackingStage advances the track table by one frame and returns the
// confirmed snapshot (L5 Tracks).
type TrackingStage interface {
	// UpdateTracks feeds boundary-filtered detections into the tracker.
	UpdateTracks(dets []video.Detection) ([]video.TrackOutput, error)
}

// TimelineStage accumulates per-frame snapshots into dense per-player box
// sequences (L6 Replay).
type TimelineStage interface {
	// Append records one frame's snapshot.
	Append(frame int64, outputs []video.TrackOutput)
}

// PersistenceSink writes pipeline outputs (run counters, observations) to
// storage. It is an adapter, not a domain layer, so implementations live
// outside the L2-L6 packages (e.g. internal/video/storage/sqlite).
type PersistenceSink interface {
	// RecordFrame counts one processed frame against the active run.
	RecordFrame()
	// RecordDetections counts boundary-accepted detections against the active run.
	RecordDetections(count int)
	// RecordTracks persists one frame's confirmed tracks and returns how
	// many identities were new to the run.
	RecordTracks(frame int64, tracks []sqlite.Track) int
	// IsRunActive reports whether a replay run is recording.
	IsRunActive() bool
}

const (
	// maxGapFill bounds how many empty updates a single frame gap feeds
	// through the tracker. A longer gap has already aged every track past
	// deletion, so additional updates would only burn CPU.
	maxGapFill = 120

	// statsLogEvery is the diagnostic logging cadence in processed frames.
	statsLogEvery = 250
)

// ReplayPipelineConfig holds dependencies for the replay pipeline callback.
type ReplayPipelineConfig struct {
	StreamID string

	// Filter is the detection boundary chain. Nil passes detections
	// through unfiltered.
	Filter l2detect.FilterFunc

	// FilterStats, when set, is sampled for the periodic diagnostic line.
	// It must be the same instance the Filter chain was built with.
	FilterStats *l2detect.FilterStats

	// Embedder produces appearance vectors for boundary-accepted
	// detections. Nil skips embedding; association then falls back to
	// motion and overlap alone.
	Embedder l3embed.Embedder

	// Frames supplies decoded video frames for the embedder, in ascending
	// index order. Nil runs the pipeline without imagery; detections on
	// frames the source does not cover embed to zero vectors.
	Frames video.FrameSource

	// Tracker is the per-stream track table. Required; the callback is a
	// no-op without it.
	Tracker video.TrackerInterface

	// Timeline accumulates dense per-player box sequences when set.
	Timeline *l6replay.TimelineBuilder

	// Augment, when set, widens snapshot boxes before the timeline and
	// publish stages see them. Persisted observations always carry the raw
	// track estimates.
	Augment *l6replay.AugmentConfig

	// RunManager records run counters and observations. When nil the
	// registry manager for StreamID is consulted per frame, which lets
	// replay runs be started and stopped dynamically via the monitor.
	RunManager *sqlite.RunManager

	// Publisher receives the per-frame confirmed snapshot. Optional.
	Publisher PublishSink

	// FrameInterval runs the full pipeline on every Nth frame; the frames
	// between republish the previous snapshot without touching the
	// tracker. Zero or one processes every frame. Typical value: 3.
	FrameInterval int
}

// NewFrameCallback creates a detection-stream callback that runs each frame
// through the full replay pipeline: boundary filtering, appearance
// embedding, track update, timeline assembly, and persistence. The callback
// is synchronous and must be driven from a single goroutine per stream.
func (cfg *ReplayPipelineConfig) NewFrameCallback() func(video.FrameDetections) {
	// Get the RunManager from the registry if not explicitly set. This
	// allows replay runs to be started/stopped dynamically via the monitor.
	getRunManager := func() *sqlite.RunManager {
		if cfg.RunManager != nil {
			return cfg.RunManager
		}
		return sqlite.GetRunManager(cfg.StreamID)
	}

	// Full track records only exist on the concrete tracker; resolve the
	// capability once.
	trackSource, _ := cfg.Tracker.(ConfirmedTrackSource)

	cursor := &frameCursor{}
	if !isNilInterface(cfg.Frames) {
		cursor.src = cfg.Frames
	}

	// Stream position and republish state. The callback owns these; it
	// runs on a single goroutine per stream.
	lastFrame := int64(-1)
	var lastOutputs []video.TrackOutput
	var frameSeen int64

	// Processing-time window for the periodic diagnostic line.
	var procWindow time.Duration
	var procFrames int64

	return func(fd video.FrameDetections) {
		if isNilInterface(cfg.Tracker) {
			return
		}

		// Out-of-order frames would corrupt the motion model. Drop them;
		// the transport already dropped stale frames, so this only fires
		// on replayed logs with broken ordering.
		if fd.Frame <= lastFrame {
			opsf("[Replay] Dropping out-of-order frame %d (last seen %d)", fd.Frame, lastFrame)
			return
		}

		// The tracker counts time in update cycles, so a jump in frame
		// numbers must be fed through as empty updates or coasting tracks
		// would survive arbitrarily long source gaps.
		if lastFrame >= 0 && fd.Frame > lastFrame+1 {
			gap := fd.Frame - lastFrame - 1
			fill := gap
			if fill > maxGapFill {
				fill = maxGapFill
			}
			diagf("[Replay] Gap of %d frames after %d, aging tracker over %d empty updates", gap, lastFrame, fill)
			rm := getRunManager()
			for i := int64(0); i < fill; i++ {
				gapFrame := lastFrame + 1 + i
				outputs := cfg.Tracker.Update(nil)
				if cfg.Augment != nil {
					outputs = l6replay.AugmentOutputs(outputs, *cfg.Augment)
				}
				if cfg.Timeline != nil {
					cfg.Timeline.Add(gapFrame, outputs)
				}
				if rm != nil && rm.IsRunActive() && trackSource != nil {
					rm.RecordTracks(gapFrame, trackSource.ConfirmedTracks())
				}
				lastOutputs = outputs
			}
		}

		// Detector subsampling: between processed frames, republish the
		// previous snapshot so downstream consumers see every frame index.
		// The tracker does not advance here; its parameters are calibrated
		// in processed-frame cycles.
		frameSeen++
		if cfg.FrameInterval > 1 && (frameSeen-1)%int64(cfg.FrameInterval) != 0 {
			if !isNilInterface(cfg.Publisher) {
				cfg.Publisher.PublishFrame(fd.Frame, lastOutputs)
			}
			lastFrame = fd.Frame
			return
		}

		start := time.Now()

		// Stage 1: boundary filter.
		detsIn := len(fd.Detections)
		dets := fd.Detections
		if cfg.Filter != nil {
			dets = cfg.Filter(dets)
		}
		tracef("[Replay] Frame %d: %d detections in, %d past boundary", fd.Frame, detsIn, len(dets))

		// Stage 2: appearance embedding. The frame source is pulled
		// forward to the detection's index; a missing or failed frame
		// degrades to motion-only association rather than stalling the
		// stream.
		if !isNilInterface(cfg.Embedder) && len(dets) > 0 {
			img := cursor.frameFor(fd.Frame)
			vecs, err := cfg.Embedder.EmbedDetections(img, dets)
			if err != nil {
				opsf("[Replay] Embedding failed on frame %d: %v", fd.Frame, err)
			} else {
				for i := range dets {
					if i < len(vecs) {
						dets[i].Embedding = vecs[i]
					}
				}
			}
		}

		// Stage 3: track update. Runs on empty frames too; an empty frame
		// ages every live track one cycle.
		outputs := cfg.Tracker.Update(dets)

		// Stage 4: widen boxes for the replay product. Observations below
		// record the raw track estimates, not the widened boxes.
		if cfg.Augment != nil {
			outputs = l6replay.AugmentOutputs(outputs, *cfg.Augment)
		}

		// Stage 5: timeline assembly. Add self-fills any frames the
		// interval skipped with the previous snapshot.
		if cfg.Timeline != nil {
			cfg.Timeline.Add(fd.Frame, outputs)
		}

		// Stage 6: record against the active replay run, if any.
		if rm := getRunManager(); rm != nil && rm.IsRunActive() {
			rm.RecordFrame()
			rm.RecordDetections(len(dets))
			if trackSource != nil {
				if fresh := rm.RecordTracks(fd.Frame, trackSource.ConfirmedTracks()); fresh > 0 {
					diagf("[Replay] Frame %d: %d identities new to run", fd.Frame, fresh)
				}
			}
		}

		// Stage 7: publish the snapshot.
		if !isNilInterface(cfg.Publisher) {
			cfg.Publisher.PublishFrame(fd.Frame, outputs)
		}

		lastOutputs = outputs
		lastFrame = fd.Frame

		tracef("[Replay] Frame %d: %d confirmed tracks in snapshot", fd.Frame, len(outputs))

		procWindow += time.Since(start)
		procFrames++
		if procFrames%statsLogEvery == 0 {
			avgMs := float64(procWindow.Microseconds()) / 1000 / statsLogEvery
			if cfg.FilterStats != nil {
				s := cfg.FilterStats.Snapshot()
				rejected := s["rejected_invalid"] + s["rejected_class"] + s["rejected_confidence"] + s["rejected_area"]
				diagf("[Replay] %d frames processed, avg %.2f ms/frame, boundary accepted=%d rejected=%d",
					procFrames, avgMs, s["accepted"], rejected)
			} else {
				diagf("[Replay] %d frames processed, avg %.2f ms/frame", procFrames, avgMs)
			}
			procWindow = 0
		}
	}
}

// frameCursor pulls a FrameSource forward to the frame index named by each
// detection batch. Sources yield frames in ascending index order; an index
// the source does not cover produces an imageless frame so the embedder
// emits zero vectors instead of stalling the stream.
type frameCursor struct {
	src     video.FrameSource
	pending video.Frame
	have    bool
	done    bool
}

func (c *frameCursor) frameFor(index int64) video.Frame {
	if c.src == nil || c.done {
		return video.Frame{Index: index}
	}
	for {
		if !c.have {
			f, ok, err := c.src.Next()
			if err != nil {
				opsf("[Replay] Frame source failed at index %d: %v", index, err)
				c.done = true
				return video.Frame{Index: index}
			}
			if !ok {
				c.done = true
				return video.Frame{Index: index}
			}
			c.pending = f
			c.have = true
		}
		switch {
		case c.pending.Index < index:
			// Stale frame, discard and pull again.
			c.have = false
		case c.pending.Index == index:
			c.have = false
			return c.pending
		default:
			// Source ran ahead; keep the frame for a later batch.
			return video.Frame{Index: index}
		}
	}
}
