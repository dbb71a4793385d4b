package testutil

import (
	"testing"

	"github.com/courtside-data/replay.vision/internal/video/l1ingest"
)

func TestSyntheticFrames(t *testing.T) {
	t.Parallel()

	frames := SyntheticFrames(5, 2)
	if len(frames) != 5 {
		t.Fatalf("frames = %d, want 5", len(frames))
	}
	for i, fr := range frames {
		if fr.Frame != int64(i) {
			t.Errorf("frame %d has index %d", i, fr.Frame)
		}
		if len(fr.Detections) != 2 {
			t.Errorf("frame %d has %d detections, want 2", i, len(fr.Detections))
		}
		for p, d := range fr.Detections {
			if err := d.Validate(); err != nil {
				t.Errorf("frame %d player %d invalid: %v", i, p, err)
			}
		}
	}

	// Players stay far apart and drift deterministically.
	if got := frames[0].Detections[1].CX - frames[0].Detections[0].CX; got != 400 {
		t.Errorf("player spacing = %f, want 400", got)
	}
	if got := frames[1].Detections[0].CX - frames[0].Detections[0].CX; got != 4 {
		t.Errorf("per-frame drift = %f, want 4", got)
	}
}

func TestWriteDetectionLogRoundTrip(t *testing.T) {
	t.Parallel()

	// The log must be readable by the real ingest reader, not just by
	// whatever wrote it.
	frames := SyntheticFrames(4, 1)
	path := WriteDetectionLog(t, t.TempDir(), frames)

	got, err := l1ingest.ReadAllFrames(path)
	if err != nil {
		t.Fatalf("ReadAllFrames: %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("read %d frames, want %d", len(got), len(frames))
	}
	for i := range got {
		if got[i].Frame != frames[i].Frame {
			t.Errorf("frame %d index mismatch: %d", i, got[i].Frame)
		}
		if len(got[i].Detections) != len(frames[i].Detections) {
			t.Errorf("frame %d detections mismatch", i)
		}
	}
}

func TestWriteFrameDirRoundTrip(t *testing.T) {
	t.Parallel()

	dir := WriteFrameDir(t, t.TempDir(), 3, 64, 48)

	src, err := l1ingest.NewFrameDirSource(dir)
	if err != nil {
		t.Fatalf("NewFrameDirSource: %v", err)
	}
	defer src.Close()

	if src.Len() != 3 {
		t.Fatalf("Len = %d, want 3", src.Len())
	}
	for i := 0; i < 3; i++ {
		frame, ok, err := src.Next()
		if err != nil || !ok {
			t.Fatalf("Next %d: ok=%v err=%v", i, ok, err)
		}
		if frame.Index != int64(i) {
			t.Errorf("frame index = %d, want %d", frame.Index, i)
		}
		b := frame.Image.Bounds()
		if b.Dx() != 64 || b.Dy() != 48 {
			t.Errorf("frame bounds = %v, want 64x48", b)
		}
	}
	if _, ok, _ := src.Next(); ok {
		t.Error("source should be exhausted after 3 frames")
	}
}
