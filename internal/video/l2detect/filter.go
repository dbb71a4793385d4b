package l2detect

import (
	"sync/atomic"

	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/monitoring"
	"github.com/courtside-data/replay.vision/internal/video"
)

// FilterFunc is one stage of the detection boundary. Stages are pure
// slice-in slice-out transforms so they compose in any order.
type FilterFunc func([]video.Detection) []video.Detection

// FilterStats counts the fate of every detection crossing the boundary.
// Safe for concurrent reads while the pipeline is running.
type FilterStats struct {
	Accepted           atomic.Int64
	RejectedInvalid    atomic.Int64
	RejectedClass      atomic.Int64
	RejectedConfidence atomic.Int64
	RejectedArea       atomic.Int64
}

// Snapshot returns the counters as plain values for reporting.
func (s *FilterStats) Snapshot() map[string]int64 {
	return map[string]int64{
		"accepted":            s.Accepted.Load(),
		"rejected_invalid":    s.RejectedInvalid.Load(),
		"rejected_class":      s.RejectedClass.Load(),
		"rejected_confidence": s.RejectedConfidence.Load(),
		"rejected_area":       s.RejectedArea.Load(),
	}
}

// Chain composes stages left to right.
func Chain(stages ...FilterFunc) FilterFunc {
	return func(dets []video.Detection) []video.Detection {
		for _, stage := range stages {
			dets = stage(dets)
		}
		return dets
	}
}

// ValidationFilter drops malformed detections. Each rejection is logged
// with its reason; a bad detection never fails the frame.
func ValidationFilter(stats *FilterStats) FilterFunc {
	return func(dets []video.Detection) []video.Detection {
		out := dets[:0]
		for _, d := range dets {
			if err := d.Validate(); err != nil {
				monitoring.Logf("l2detect: rejected detection: %v", err)
				if stats != nil {
					stats.RejectedInvalid.Add(1)
				}
				continue
			}
			out = append(out, d)
		}
		return out
	}
}

// ClassFilter keeps only detections of the target class. A negative
// target keeps every class.
func ClassFilter(targetClass int, stats *FilterStats) FilterFunc {
	return func(dets []video.Detection) []video.Detection {
		if targetClass < 0 {
			return dets
		}
		out := dets[:0]
		for _, d := range dets {
			if d.ClassID != targetClass {
				if stats != nil {
					stats.RejectedClass.Add(1)
				}
				continue
			}
			out = append(out, d)
		}
		return out
	}
}

// ConfidenceFilter drops detections below the threshold.
func ConfidenceFilter(min float32, stats *FilterStats) FilterFunc {
	return func(dets []video.Detection) []video.Detection {
		out := dets[:0]
		for _, d := range dets {
			if d.Confidence < min {
				if stats != nil {
					stats.RejectedConfidence.Add(1)
				}
				continue
			}
			out = append(out, d)
		}
		return out
	}
}

// MinAreaFilter drops detections whose box area is below the threshold,
// in squared pixels. Zero disables the stage.
func MinAreaFilter(minArea float32, stats *FilterStats) FilterFunc {
	return func(dets []video.Detection) []video.Detection {
		if minArea <= 0 {
			return dets
		}
		out := dets[:0]
		for _, d := range dets {
			if d.W*d.H < minArea {
				if stats != nil {
					stats.RejectedArea.Add(1)
				}
				continue
			}
			out = append(out, d)
		}
		return out
	}
}

// Config selects the standard boundary stages.
type Config struct {
	TargetClass   int
	MinConfidence float32
	MinArea       float32
}

// DefaultConfig tracks person-class detections at the detector's usual
// operating point.
func DefaultConfig() Config {
	return Config{
		TargetClass:   0,
		MinConfidence: 0.5,
		MinArea:       0,
	}
}

// ConfigFromTuning builds a boundary Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		TargetClass:   cfg.GetTargetClass(),
		MinConfidence: float32(cfg.GetConfidenceThreshold()),
		MinArea:       float32(cfg.GetMinArea()),
	}
}

// StandardChain builds the canonical boundary: validate, class gate,
// confidence gate, area gate. The accepted counter reflects what survives
// the whole chain.
func StandardChain(cfg Config, stats *FilterStats) FilterFunc {
	chain := Chain(
		ValidationFilter(stats),
		ClassFilter(cfg.TargetClass, stats),
		ConfidenceFilter(cfg.MinConfidence, stats),
		MinAreaFilter(cfg.MinArea, stats),
	)
	return func(dets []video.Detection) []video.Detection {
		out := chain(dets)
		if stats != nil {
			stats.Accepted.Add(int64(len(out)))
		}
		return out
	}
}
