package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

func TestBuildTrailPlot(t *testing.T) {
	run := &sqlite.ReplayRun{RunID: "run_a", Label: "scrimmage"}
	var observations []*sqlite.TrackObservation
	for f := int64(0); f < 5; f++ {
		observations = append(observations, &sqlite.TrackObservation{
			RunID: "run_a", Frame: f, TrackID: 1,
			X1: float32(100 + 10*f), Y1: 200, X2: float32(140 + 10*f), Y2: 280,
		})
		observations = append(observations, &sqlite.TrackObservation{
			RunID: "run_a", Frame: f, TrackID: 2,
			X1: 500, Y1: float32(300 + 5*f), X2: 540, Y2: float32(380 + 5*f),
		})
	}

	p, err := BuildTrailPlot(run, observations)
	if err != nil {
		t.Fatalf("BuildTrailPlot failed: %v", err)
	}
	if p == nil {
		t.Fatal("BuildTrailPlot returned nil plot")
	}
	if !strings.Contains(p.Title.Text, "scrimmage") {
		t.Errorf("expected label in title, got %q", p.Title.Text)
	}
	if !strings.Contains(p.Title.Text, "run_a") {
		t.Errorf("expected run id in title, got %q", p.Title.Text)
	}
}

func TestBuildTrailPlot_Empty(t *testing.T) {
	run := &sqlite.ReplayRun{RunID: "run_a"}
	if _, err := BuildTrailPlot(run, nil); err == nil {
		t.Error("expected error for empty observations")
	}
}

func TestTrailPlotter_RenderRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, db, "run_a", "")
	seedTrail(t, db, "run_a", 1, 8)

	outDir := filepath.Join(t.TempDir(), "plots")
	plotter := NewTrailPlotter(outDir)

	file, err := plotter.RenderRun(db, "run_a")
	if err != nil {
		t.Fatalf("RenderRun failed: %v", err)
	}

	if !strings.HasSuffix(file, ".png") {
		t.Errorf("expected .png file, got %q", file)
	}
	info, err := os.Stat(file)
	if err != nil {
		t.Fatalf("rendered file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("rendered file is empty")
	}
}

func TestTrailPlotter_RenderRun_MissingRun(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	plotter := NewTrailPlotter(t.TempDir())
	if _, err := plotter.RenderRun(db, "run_missing"); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestGenerateColors(t *testing.T) {
	if colors := generateColors(0); colors != nil {
		t.Errorf("expected nil for zero colors, got %v", colors)
	}

	colors := generateColors(5)
	if len(colors) != 5 {
		t.Fatalf("expected 5 colors, got %d", len(colors))
	}

	seen := make(map[string]bool)
	for _, c := range colors {
		r, g, b, _ := c.RGBA()
		key := string(rune(r)) + string(rune(g)) + string(rune(b))
		if seen[key] {
			t.Error("expected distinct colors")
		}
		seen[key] = true
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := FormatTimestamp(time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC))
	if ts != "20260314_150926" {
		t.Errorf("unexpected timestamp format: %q", ts)
	}
}

func TestMakePlotOutputDir(t *testing.T) {
	dir := MakePlotOutputDir("plots", "")
	if !strings.HasPrefix(dir, filepath.Join("plots", "live_")) {
		t.Errorf("expected live_ prefix for live data, got %q", dir)
	}

	dir = MakePlotOutputDir("plots", "/data/court-a/game.jsonl")
	if !strings.HasPrefix(dir, filepath.Join("plots", "game")) {
		t.Errorf("expected source basename in path, got %q", dir)
	}
}
