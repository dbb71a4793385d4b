package monitor

import (
	"database/sql"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/courtside-data/replay.vision/internal/security"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

const (
	trailPlotWidth  = 12 * vg.Inch
	trailPlotHeight = 7 * vg.Inch

	// Legends are useless once every pixel of the margin is a label.
	trailLegendMaxTracks = 12
)

// BuildTrailPlot renders the box-center trail of every track in a run as
// one line per identity. The Y axis is inverted so the plot matches the
// image coordinate system the boxes live in.
func BuildTrailPlot(run *sqlite.ReplayRun, observations []*sqlite.TrackObservation) (*plot.Plot, error) {
	if len(observations) == 0 {
		return nil, fmt.Errorf("no observations to plot")
	}

	// Group center points per track. Observations arrive frame-ordered,
	// so each per-track sequence is already in temporal order.
	trails := make(map[int64]plotter.XYs)
	for _, obs := range observations {
		cx := float64(obs.X1+obs.X2) / 2
		cy := float64(obs.Y1+obs.Y2) / 2
		trails[obs.TrackID] = append(trails[obs.TrackID], plotter.XY{X: cx, Y: cy})
	}

	var trackIDs []int64
	for id := range trails {
		trackIDs = append(trackIDs, id)
	}
	sort.Slice(trackIDs, func(a, b int) bool { return trackIDs[a] < trackIDs[b] })

	p := plot.New()
	title := run.RunID
	if run.Label != "" {
		title = fmt.Sprintf("%s (%s)", run.Label, run.RunID)
	}
	p.Title.Text = fmt.Sprintf("Track Trails - %s", title)
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}

	colors := generateColors(len(trackIDs))

	for i, id := range trackIDs {
		line, err := plotter.NewLine(trails[id])
		if err != nil {
			return nil, fmt.Errorf("trail line for track %d: %w", id, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		if len(trackIDs) <= trailLegendMaxTracks {
			p.Legend.Add(fmt.Sprintf("track %d", id), line)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// TrailPlotter renders stored runs to PNG files on disk.
type TrailPlotter struct {
	outputDir string
}

// NewTrailPlotter creates a plotter writing into outputDir. The directory
// is created on first render.
func NewTrailPlotter(outputDir string) *TrailPlotter {
	return &TrailPlotter{outputDir: outputDir}
}

// RenderRun loads a run's observations and saves its trail plot, returning
// the path of the written file.
func (tp *TrailPlotter) RenderRun(db *sql.DB, runID string) (string, error) {
	run, err := sqlite.NewRunStore(db).Get(runID)
	if err != nil {
		return "", fmt.Errorf("load run %s: %w", runID, err)
	}
	observations, err := sqlite.NewObservationStore(db).ListAllByRun(runID)
	if err != nil {
		return "", fmt.Errorf("load observations for %s: %w", runID, err)
	}

	p, err := BuildTrailPlot(run, observations)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(tp.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := filepath.Join(tp.outputDir,
		fmt.Sprintf("trails_%s_%s.png", security.SanitizeFilename(runID), FormatTimestamp(time.Now())))
	if err := p.Save(trailPlotWidth, trailPlotHeight, filename); err != nil {
		return "", fmt.Errorf("save plot: %w", err)
	}
	return filename, nil
}

// generateColors returns n visually distinct colors spaced around the
// hue circle.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for file naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir builds a timestamped output directory for plots.
// For recorded sources: <baseDir>/<source_basename>/<timestamp>
// For live data: <baseDir>/live_<timestamp>
func MakePlotOutputDir(baseDir, sourcePath string) string {
	ts := FormatTimestamp(time.Now())
	if sourcePath != "" {
		base := filepath.Base(sourcePath)
		ext := filepath.Ext(base)
		name := security.SanitizeFilename(base[:len(base)-len(ext)])
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
