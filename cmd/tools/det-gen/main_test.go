package main

import (
	"reflect"
	"testing"

	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
)

func testConfig() genConfig {
	return genConfig{
		Frames:          120,
		Actors:          2,
		Noise:           1.5,
		Seed:            1,
		Width:           1920,
		Height:          1080,
		FrameIntervalNs: 33_333_333,
	}
}

func TestGenerateLogDeterministic(t *testing.T) {
	cfg := testConfig()

	first := generateLog(cfg)
	second := generateLog(cfg)
	if !reflect.DeepEqual(first, second) {
		t.Error("same seed produced different logs")
	}

	cfg.Seed = 2
	if reflect.DeepEqual(first, generateLog(cfg)) {
		t.Error("different seeds produced identical logs")
	}
}

func TestGenerateLogSchedule(t *testing.T) {
	cfg := testConfig()
	frames := generateLog(cfg)

	if len(frames) != 120 {
		t.Fatalf("got %d frames, want 120", len(frames))
	}
	for i, fd := range frames {
		if fd.Frame != int64(i) {
			t.Fatalf("frame %d carries index %d", i, fd.Frame)
		}
	}

	// With two actors over 120 frames the second spawns at frame 40.
	if got := len(frames[0].Detections); got != 1 {
		t.Errorf("frame 0 has %d detections, want 1", got)
	}
	if got := len(frames[39].Detections); got != 1 {
		t.Errorf("frame 39 has %d detections, want 1", got)
	}
	if got := len(frames[50].Detections); got != 2 {
		t.Errorf("frame 50 has %d detections, want 2", got)
	}

	for _, fd := range frames {
		for _, d := range fd.Detections {
			if d.CX <= 0 || float64(d.CX) >= cfg.Width || d.CY <= 0 || float64(d.CY) >= cfg.Height {
				t.Fatalf("frame %d: detection center (%v, %v) outside the frame", fd.Frame, d.CX, d.CY)
			}
			if d.Confidence < 0.8 {
				t.Fatalf("frame %d: actor confidence %v below the detector floor", fd.Frame, d.Confidence)
			}
			if d.ClassID != 0 {
				t.Fatalf("frame %d: unexpected class %d", fd.Frame, d.ClassID)
			}
		}
	}
}

func TestGenerateLogMissRate(t *testing.T) {
	cfg := testConfig()
	cfg.MissRate = 1.0

	for _, fd := range generateLog(cfg) {
		if len(fd.Detections) != 0 {
			t.Fatalf("frame %d has detections despite full miss rate", fd.Frame)
		}
	}
}

func TestGenerateLogClutter(t *testing.T) {
	cfg := testConfig()
	cfg.Actors = 1
	cfg.Clutter = 2.0

	var total int
	for _, fd := range generateLog(cfg) {
		total += len(fd.Detections)
	}
	// One actor plus exactly two clutter boxes per frame: an integer
	// clutter rate has no fractional coin flip.
	if total != 3*120 {
		t.Errorf("got %d detections over 120 frames, want 360", total)
	}
}

// TestGeneratedLogTracksCleanly feeds a clean synthetic log straight into
// the tracker: every actor should become exactly one confirmed identity.
func TestGeneratedLogTracksCleanly(t *testing.T) {
	frames := generateLog(testConfig())

	tracker := l5tracks.NewTracker(l5tracks.DefaultTrackerConfig())
	for _, fd := range frames {
		tracker.Update(fd.Detections)
	}

	m := tracker.Metrics()
	if m.TracksCreated != 2 {
		t.Errorf("TracksCreated = %d, want 2", m.TracksCreated)
	}
	if m.TracksPromoted != 2 {
		t.Errorf("TracksPromoted = %d, want 2", m.TracksPromoted)
	}
	if m.TracksDeleted != 0 {
		t.Errorf("TracksDeleted = %d, want 0", m.TracksDeleted)
	}
}
