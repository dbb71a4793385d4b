// Command det-gen writes synthetic detection logs: straight-line actors
// crossing the frame with Gaussian center jitter and staggered spawn and
// despawn schedules. The output replays through cmd/replay and cmd/sweep
// like a recorded session.
package main

import (
	"flag"
	"log"
	"math/rand"

	"github.com/courtside-data/replay.vision/internal/security"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l1ingest"
)

// edgeMargin keeps spawned boxes fully inside the frame.
const edgeMargin = 60.0

// actor is one synthetic straight-line mover.
type actor struct {
	startX, startY float64
	vx             float64
	w, h           float64
	spawn, despawn int64
}

// genConfig holds the generator knobs. Same config, same log.
type genConfig struct {
	Frames          int64
	Actors          int
	Noise           float64 // center jitter stddev in pixels
	MissRate        float64 // per-frame probability an actor goes undetected
	Clutter         float64 // expected spurious detections per frame
	Seed            int64
	Width, Height   float64
	FrameIntervalNs int64
}

// makeActors lays out count actors in horizontal lanes, alternating
// direction, with spawn frames staggered across the log. The despawn frame
// is when the actor would reach the far edge.
func makeActors(cfg genConfig, rng *rand.Rand) []actor {
	actors := make([]actor, cfg.Actors)
	gap := cfg.Frames / int64(cfg.Actors+1)
	if gap < 1 {
		gap = 1
	}
	span := cfg.Width - 2*edgeMargin

	for i := range actors {
		speed := 3 + 4*rng.Float64()
		a := actor{
			startY: cfg.Height * float64(i+1) / float64(cfg.Actors+1),
			w:      50 + 20*rng.Float64(),
			h:      150 + 30*rng.Float64(),
			spawn:  int64(i) * gap,
		}
		if i%2 == 0 {
			a.startX = edgeMargin
			a.vx = speed
		} else {
			a.startX = cfg.Width - edgeMargin
			a.vx = -speed
		}
		a.despawn = a.spawn + int64(span/speed)
		if a.despawn > cfg.Frames {
			a.despawn = cfg.Frames
		}
		actors[i] = a
	}
	return actors
}

// detectionsAt returns the noisy detections visible on one frame.
func detectionsAt(cfg genConfig, actors []actor, frame int64, rng *rand.Rand) []video.Detection {
	var dets []video.Detection
	for _, a := range actors {
		if frame < a.spawn || frame >= a.despawn {
			continue
		}
		if cfg.MissRate > 0 && rng.Float64() < cfg.MissRate {
			continue
		}
		x := a.startX + a.vx*float64(frame-a.spawn)
		if x < edgeMargin || x > cfg.Width-edgeMargin {
			continue
		}
		dets = append(dets, video.Detection{
			CX:         float32(x + rng.NormFloat64()*cfg.Noise),
			CY:         float32(a.startY + rng.NormFloat64()*cfg.Noise),
			W:          float32(a.w),
			H:          float32(a.h),
			Confidence: float32(0.82 + 0.17*rng.Float64()),
			ClassID:    0,
		})
	}

	// Clutter: short spurious boxes a detector emits on crowd movement.
	n := int(cfg.Clutter)
	if rng.Float64() < cfg.Clutter-float64(n) {
		n++
	}
	for i := 0; i < n; i++ {
		dets = append(dets, video.Detection{
			CX:         float32(edgeMargin + rng.Float64()*(cfg.Width-2*edgeMargin)),
			CY:         float32(edgeMargin + rng.Float64()*(cfg.Height-2*edgeMargin)),
			W:          float32(30 + 40*rng.Float64()),
			H:          float32(60 + 80*rng.Float64()),
			Confidence: float32(0.5 + 0.3*rng.Float64()),
			ClassID:    0,
		})
	}
	return dets
}

// generateLog produces the full synthetic log in memory.
func generateLog(cfg genConfig) []video.FrameDetections {
	rng := rand.New(rand.NewSource(cfg.Seed))
	actors := makeActors(cfg, rng)

	frames := make([]video.FrameDetections, cfg.Frames)
	for f := int64(0); f < cfg.Frames; f++ {
		frames[f] = video.FrameDetections{
			Frame:       f,
			TimestampNs: f * cfg.FrameIntervalNs,
			Detections:  detectionsAt(cfg, actors, f, rng),
		}
	}
	return frames
}

func main() {
	output := flag.String("o", "synthetic.jsonl", "output path")
	frames := flag.Int64("n", 300, "number of frames")
	actors := flag.Int("actors", 4, "number of straight-line actors")
	noise := flag.Float64("noise", 1.5, "center jitter stddev in pixels")
	missRate := flag.Float64("miss", 0, "per-frame probability an actor goes undetected")
	clutter := flag.Float64("clutter", 0, "expected spurious detections per frame")
	seed := flag.Int64("seed", 1, "RNG seed; same seed, same log")
	width := flag.Float64("width", 1920, "frame width in pixels")
	height := flag.Float64("height", 1080, "frame height in pixels")
	fps := flag.Float64("fps", 30, "frame cadence for timestamps")
	flag.Parse()

	if *frames <= 0 || *actors <= 0 {
		log.Fatal("Need at least one frame and one actor")
	}
	if *fps <= 0 {
		log.Fatal("fps must be positive")
	}
	if err := security.ValidateExportPath(*output); err != nil {
		log.Fatalf("Refusing output path: %v", err)
	}

	cfg := genConfig{
		Frames:          *frames,
		Actors:          *actors,
		Noise:           *noise,
		MissRate:        *missRate,
		Clutter:         *clutter,
		Seed:            *seed,
		Width:           *width,
		Height:          *height,
		FrameIntervalNs: int64(1e9 / *fps),
	}
	logFrames := generateLog(cfg)

	w, err := l1ingest.NewLogWriter(*output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	var total int
	for i, fd := range logFrames {
		if err := w.Write(fd); err != nil {
			log.Fatalf("Failed to write frame %d: %v", fd.Frame, err)
		}
		total += len(fd.Detections)
		if (i+1)%100 == 0 {
			log.Printf("%d/%d frames", i+1, len(logFrames))
		}
	}
	if err := w.Close(); err != nil {
		log.Fatalf("Failed to close output: %v", err)
	}

	log.Printf("✓ Created: %s (%d frames, %d actors, %d detections)", *output, *frames, *actors, total)
}
