// Package testutil provides shared fixtures for replay tests.
//
// The fixtures write real files so tests exercise the same ingest paths
// as production runs: detection logs as JSONL, frame imagery as PNG
// stills. Generators are deterministic.
package testutil

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/courtside-data/replay.vision/internal/video"
)

// SyntheticFrames builds count frames carrying players detections each.
// Player p starts at x = 200 + 400p and drifts 4 px per frame, far enough
// apart that association is unambiguous. Detections carry no embeddings;
// tests that need appearance evidence pair the log with WriteFrameDir
// imagery.
func SyntheticFrames(count, players int) []video.FrameDetections {
	frames := make([]video.FrameDetections, count)
	for i := range frames {
		dets := make([]video.Detection, players)
		for p := range dets {
			dets[p] = video.Detection{
				CX:         float32(200 + 400*p + 4*i),
				CY:         540,
				W:          60,
				H:          160,
				Confidence: 0.9,
				ClassID:    0,
			}
		}
		frames[i] = video.FrameDetections{
			Frame:       int64(i),
			TimestampNs: int64(i) * 33_000_000,
			Detections:  dets,
		}
	}
	return frames
}

// WriteDetectionLog writes frames as a JSONL detection log under dir and
// returns the log path.
func WriteDetectionLog(t *testing.T, dir string, frames []video.FrameDetections) string {
	t.Helper()
	path := filepath.Join(dir, "detections.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create detection log: %v", err)
	}
	enc := json.NewEncoder(f)
	for _, fr := range frames {
		if err := enc.Encode(fr); err != nil {
			f.Close()
			t.Fatalf("write detection log line: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close detection log: %v", err)
	}
	return path
}

// WriteFrameDir writes count uniform PNG stills named frame_000000.png
// onward under dir and returns the frame directory.
func WriteFrameDir(t *testing.T, dir string, count, w, h int) string {
	t.Helper()
	frameDir := filepath.Join(dir, "frames")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		t.Fatalf("create frame dir: %v", err)
	}
	tint := color.RGBA{R: 200, G: 40, B: 40, A: 255}
	for i := 0; i < count; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, tint)
			}
		}
		path := filepath.Join(frameDir, fmt.Sprintf("frame_%06d.png", i))
		f, err := os.Create(path)
		if err != nil {
			t.Fatalf("create frame %d: %v", i, err)
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			t.Fatalf("encode frame %d: %v", i, err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close frame %d: %v", i, err)
		}
	}
	return frameDir
}
