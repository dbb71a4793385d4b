// Command trail-plot renders the track trails of stored replay runs to
// PNG files, one image per run.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/courtside-data/replay.vision/internal/db"
	"github.com/courtside-data/replay.vision/internal/security"
	"github.com/courtside-data/replay.vision/internal/video/monitor"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

// resolveRuns picks which runs to render: an explicit run ID, every stored
// run, or the most recent one.
func resolveRuns(database *sql.DB, runID string, all bool) ([]*sqlite.ReplayRun, error) {
	if runID != "" && all {
		return nil, fmt.Errorf("-run and -all are mutually exclusive")
	}
	store := sqlite.NewRunStore(database)
	if runID != "" {
		run, err := store.Get(runID)
		if err != nil {
			return nil, err
		}
		return []*sqlite.ReplayRun{run}, nil
	}
	limit := 1
	if all {
		limit = 10000
	}
	runs, err := store.List(limit)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no replay runs stored")
	}
	return runs, nil
}

func main() {
	dbFile := flag.String("db", "replay.db", "Path to the results database")
	runID := flag.String("run", "", "Run to render (default: the most recent run)")
	all := flag.Bool("all", false, "Render every stored run")
	outDir := flag.String("out", "plots", "Output directory for PNG files")
	flag.Parse()

	if err := security.ValidateExportPath(*outDir); err != nil {
		log.Fatalf("Refusing output directory: %v", err)
	}
	if _, err := os.Stat(*dbFile); err != nil {
		log.Fatalf("Results database not found: %v", err)
	}
	database, err := db.OpenDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open results database: %v", err)
	}
	defer database.Close()

	runs, err := resolveRuns(database.DB, *runID, *all)
	if err != nil {
		log.Fatal(err)
	}

	plotter := monitor.NewTrailPlotter(*outDir)
	rendered := 0
	for _, run := range runs {
		path, err := plotter.RenderRun(database.DB, run.RunID)
		if err != nil {
			log.Printf("WARNING: Run %s: %v", run.RunID, err)
			continue
		}
		label := run.Label
		if label == "" {
			label = run.SourceType
		}
		log.Printf("✓ %s (%s) -> %s", run.RunID, label, path)
		rendered++
	}

	if rendered == 0 {
		log.Fatal("No runs rendered")
	}
	log.Printf("Rendered %d of %d runs into %s", rendered, len(runs), *outDir)
}
