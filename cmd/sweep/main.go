package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/db"
	"github.com/courtside-data/replay.vision/internal/security"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l1ingest"
	"github.com/courtside-data/replay.vision/internal/video/l2detect"
	"github.com/courtside-data/replay.vision/internal/video/l3embed"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/l6replay"
	"github.com/courtside-data/replay.vision/internal/video/pipeline"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseCSVIntSlice parses a comma-separated list of ints
func parseCSVIntSlice(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// sweepCombo is one cell of the parameter grid.
type sweepCombo struct {
	MaxAge         int
	MinHits        int
	MotionGate     float64
	AppearanceGate float64
}

// comboResult is one combination's scorecard. Matched and Churn are only
// valid when Scored is set; the baseline combination and database-less
// sweeps leave them blank in the CSV.
type comboResult struct {
	Combo   sweepCombo
	Metrics video.TrackerMetrics
	Elapsed time.Duration

	RunID   string
	Matched int
	Churn   int
	Scored  bool
}

// buildGrid expands the parameter lists into the full cartesian grid, in
// max-age-major order.
func buildGrid(maxAges, minHits []int, motionGates, appearanceGates []float64) []sweepCombo {
	grid := make([]sweepCombo, 0, len(maxAges)*len(minHits)*len(motionGates)*len(appearanceGates))
	for _, ma := range maxAges {
		for _, mh := range minHits {
			for _, mg := range motionGates {
				for _, ag := range appearanceGates {
					grid = append(grid, sweepCombo{
						MaxAge:         ma,
						MinHits:        mh,
						MotionGate:     mg,
						AppearanceGate: ag,
					})
				}
			}
		}
	}
	return grid
}

// comboConfig overlays one grid cell on the base tracker config.
func comboConfig(base l5tracks.TrackerConfig, c sweepCombo) l5tracks.TrackerConfig {
	cfg := base
	cfg.MaxAge = c.MaxAge
	cfg.MinHits = c.MinHits
	cfg.MotionGate = c.MotionGate
	cfg.AppearanceGate = c.AppearanceGate
	return cfg
}

// comboLabel names one combination's replay run.
func comboLabel(c sweepCombo) string {
	return fmt.Sprintf("sweep max_age=%d min_hits=%d motion=%g appearance=%g",
		c.MaxAge, c.MinHits, c.MotionGate, c.AppearanceGate)
}

// comboRunParams snapshots the effective configs for one combination's run
// provenance. The swept values live in the tracker config; everything else
// comes from the unswept tuning.
func comboRunParams(tuning *config.TuningConfig, trackerCfg l5tracks.TrackerConfig) sqlite.RunParams {
	return sqlite.RunParams{
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Filter:    sqlite.FromFilterConfig(l2detect.ConfigFromTuning(tuning)),
		Tracking:  sqlite.FromTrackerConfig(trackerCfg),
		Replay:    sqlite.FromAugmentConfig(l6replay.AugmentConfigFromTuning(tuning), tuning.GetFrameInterval()),
	}
}

// runCombo replays the full detection log through a fresh tracker built for
// one grid cell, using the same pipeline callback as the service binary.
// The frame directory is reopened per combination because a frame source is
// consumed by one pass.
func runCombo(frames []video.FrameDetections, trackerCfg l5tracks.TrackerConfig, filter l2detect.FilterFunc, embedder l3embed.Embedder, frameDir, streamID string, runManager *sqlite.RunManager) (video.TrackerMetrics, error) {
	var frameSource video.FrameSource
	if frameDir != "" {
		src, err := l1ingest.NewFrameDirSource(frameDir)
		if err != nil {
			return video.TrackerMetrics{}, fmt.Errorf("open frame directory: %w", err)
		}
		defer src.Close()
		frameSource = src
	}

	tracker := l5tracks.NewTracker(trackerCfg)
	cfg := &pipeline.ReplayPipelineConfig{
		StreamID:   streamID,
		Filter:     filter,
		Embedder:   embedder,
		Frames:     frameSource,
		Tracker:    tracker,
		RunManager: runManager,
	}
	callback := cfg.NewFrameCallback()
	for _, fd := range frames {
		callback(fd)
	}
	return tracker.Metrics(), nil
}

// sweepHeader is the summary CSV header, index-aligned with comboRow.
func sweepHeader() []string {
	return []string{
		"max_age", "min_hits", "motion_gate", "appearance_gate",
		"frames", "tracks_created", "tracks_confirmed", "tracks_deleted",
		"active_at_end", "matches", "misses", "elapsed_ms",
		"run_id", "matched_tracks", "identity_churn",
	}
}

// comboRow formats one combination's scorecard as a CSV row.
func comboRow(r comboResult) []string {
	row := []string{
		strconv.Itoa(r.Combo.MaxAge),
		strconv.Itoa(r.Combo.MinHits),
		fmt.Sprintf("%g", r.Combo.MotionGate),
		fmt.Sprintf("%g", r.Combo.AppearanceGate),
		strconv.FormatInt(r.Metrics.FramesProcessed, 10),
		strconv.FormatInt(r.Metrics.TracksCreated, 10),
		strconv.FormatInt(r.Metrics.TracksPromoted, 10),
		strconv.FormatInt(r.Metrics.TracksDeleted, 10),
		strconv.Itoa(r.Metrics.ActiveTracks),
		strconv.FormatInt(r.Metrics.Matches, 10),
		strconv.FormatInt(r.Metrics.Misses, 10),
		strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
		r.RunID,
		"",
		"",
	}
	if r.Scored {
		row[13] = strconv.Itoa(r.Matched)
		row[14] = strconv.Itoa(r.Churn)
	}
	return row
}

func main() {
	detlogPath := flag.String("detlog", "", "Recorded JSONL detection log to sweep over (required)")
	framesDir := flag.String("frames", "", "Directory of decoded frames for appearance embedding")
	dbFile := flag.String("db", "", "Results database; records each combination as a replay run and scores identity churn")
	baselineRun := flag.String("baseline", "", "Run ID to score churn against (default: the first combination of this sweep)")
	tuningPath := flag.String("tuning", "", "Path to a tuning config JSON file for the unswept parameters")
	output := flag.String("output", "", "Output CSV filename (defaults to sweep-<timestamp>.csv)")
	streamID := flag.String("stream", "sweep", "Stream identifier recorded on sweep runs")

	maxAgeList := flag.String("max-ages", "15,30,60", "Comma-separated max-age values")
	minHitsList := flag.String("min-hits", "2,3,5", "Comma-separated min-hits values")
	motionGateList := flag.String("motion-gates", "9.4877", "Comma-separated motion gate thresholds")
	appearanceGateList := flag.String("appearance-gates", "0.2", "Comma-separated appearance gate thresholds")

	flag.Parse()

	if *detlogPath == "" {
		log.Fatal("A recorded detection log is required (-detlog)")
	}
	if *baselineRun != "" && *dbFile == "" {
		log.Fatal("-baseline requires a results database (-db)")
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		loaded, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	}
	if err := tuning.Validate(); err != nil {
		log.Fatalf("Invalid tuning configuration: %v", err)
	}
	baseCfg := l5tracks.TrackerConfigFromTuning(tuning)

	maxAges, err := parseCSVIntSlice(*maxAgeList)
	if err != nil {
		log.Fatalf("Invalid -max-ages: %v", err)
	}
	minHits, err := parseCSVIntSlice(*minHitsList)
	if err != nil {
		log.Fatalf("Invalid -min-hits: %v", err)
	}
	motionGates, err := parseCSVFloatSlice(*motionGateList)
	if err != nil {
		log.Fatalf("Invalid -motion-gates: %v", err)
	}
	appearanceGates, err := parseCSVFloatSlice(*appearanceGateList)
	if err != nil {
		log.Fatalf("Invalid -appearance-gates: %v", err)
	}

	// An empty list holds that parameter at its tuning value.
	if len(maxAges) == 0 {
		maxAges = []int{baseCfg.MaxAge}
	}
	if len(minHits) == 0 {
		minHits = []int{baseCfg.MinHits}
	}
	if len(motionGates) == 0 {
		motionGates = []float64{baseCfg.MotionGate}
	}
	if len(appearanceGates) == 0 {
		appearanceGates = []float64{baseCfg.AppearanceGate}
	}

	grid := buildGrid(maxAges, minHits, motionGates, appearanceGates)
	log.Printf("Parameter combinations: %d (max-age: %d, min-hits: %d, motion: %d, appearance: %d)",
		len(grid), len(maxAges), len(minHits), len(motionGates), len(appearanceGates))

	// The log is read once; every combination replays the same frames.
	frames, err := l1ingest.ReadAllFrames(*detlogPath)
	if err != nil {
		log.Fatalf("Failed to read detection log: %v", err)
	}
	if len(frames) == 0 {
		log.Fatalf("Detection log %s holds no frames", *detlogPath)
	}
	var totalDets int
	for _, fd := range frames {
		totalDets += len(fd.Detections)
	}
	log.Printf("Loaded %d frames (%d detections) from %s", len(frames), totalDets, *detlogPath)

	filterStats := &l2detect.FilterStats{}
	filter := l2detect.StandardChain(l2detect.ConfigFromTuning(tuning), filterStats)

	var embedder l3embed.Embedder
	if *framesDir != "" {
		src, err := l1ingest.NewFrameDirSource(*framesDir)
		if err != nil {
			log.Fatalf("Failed to open frame directory: %v", err)
		}
		log.Printf("Appearance embedding enabled over %d frames from %s", src.Len(), *framesDir)
		src.Close()
		embedder = l3embed.NewHistogramEmbedder()
	}

	var database *db.DB
	var runManager *sqlite.RunManager
	if *dbFile != "" {
		database, err = db.NewDBWithMigrationCheck(*dbFile, false)
		if err != nil {
			log.Fatalf("Failed to open results database: %v", err)
		}
		defer database.Close()
		runManager = sqlite.NewRunManager(database.DB, *streamID)
	}

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("sweep-%s.csv", time.Now().Format("20060102-150405"))
	}
	if err := security.ValidateExportPath(filename); err != nil {
		log.Fatalf("Refusing output file: %v", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Could not create output file %s: %v", filename, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write(sweepHeader())
	w.Flush()

	baselineID := *baselineRun

	for i, combo := range grid {
		log.Printf("=== Combination %d/%d: max_age=%d min_hits=%d motion=%g appearance=%g ===",
			i+1, len(grid), combo.MaxAge, combo.MinHits, combo.MotionGate, combo.AppearanceGate)

		trackerCfg := comboConfig(baseCfg, combo)
		result := comboResult{Combo: combo}

		if runManager != nil {
			runID, err := runManager.StartRun("sweep", *detlogPath, comboLabel(combo), comboRunParams(tuning, trackerCfg))
			if err != nil {
				log.Fatalf("Failed to start sweep run: %v", err)
			}
			result.RunID = runID
		}

		start := time.Now()
		metrics, err := runCombo(frames, trackerCfg, filter, embedder, *framesDir, *streamID, runManager)
		if err != nil {
			if runManager != nil {
				runManager.FailRun(err.Error())
			}
			log.Fatalf("Combination %d failed: %v", i+1, err)
		}
		result.Metrics = metrics
		result.Elapsed = time.Since(start)

		if runManager != nil {
			if err := runManager.CompleteRun(); err != nil {
				log.Printf("WARNING: Failed to complete run %s: %v", result.RunID, err)
			}
		}

		log.Printf("Result: %d tracks created, %d confirmed, %d deleted, %d active at end (%.1fs)",
			metrics.TracksCreated, metrics.TracksPromoted, metrics.TracksDeleted,
			metrics.ActiveTracks, result.Elapsed.Seconds())

		// Identity stability against the baseline run. The first recorded
		// combination becomes the baseline when none was named.
		if result.RunID != "" {
			if baselineID == "" {
				baselineID = result.RunID
				log.Printf("Using run %s as the churn baseline", baselineID)
			} else if result.RunID != baselineID {
				cmp, err := sqlite.CompareRuns(database.DB, baselineID, result.RunID)
				if err != nil {
					log.Printf("WARNING: Comparison against baseline failed: %v", err)
				} else {
					result.Matched = len(cmp.MatchedTracks)
					result.Churn = cmp.IdentityChurn
					result.Scored = true
					log.Printf("vs baseline %s: %d matched tracks, identity churn %d",
						baselineID, result.Matched, result.Churn)
				}
			}
		}

		// One row per combination, flushed immediately so an interrupted
		// sweep keeps the finished rows.
		w.Write(comboRow(result))
		w.Flush()
	}
	if err := w.Error(); err != nil {
		log.Fatalf("Failed writing %s: %v", filename, err)
	}

	log.Printf("Sweep complete: %d combinations", len(grid))
	log.Printf("Summary: %s", filename)
	if baselineID != "" {
		log.Printf("Baseline run: %s", baselineID)
	}
}
