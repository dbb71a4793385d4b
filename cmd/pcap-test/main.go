// Offline health check for captured detector streams. Replays a pcap of
// detection datagrams through the production decode, boundary, and
// tracking path and reports whether the capture carries usable traffic.
// Requires a -tags=pcap build; without it the replay call explains how to
// get one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l1ingest"
	"github.com/courtside-data/replay.vision/internal/video/l2detect"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/pipeline"
)

// healthReport summarizes one offline pass over a capture.
type healthReport struct {
	Packets    int64 // UDP datagrams with payload on the detector port
	Dropped    int64 // datagrams the decoder rejected
	Frames     int64 // well-formed frame batches
	Detections int64 // decoded detections before the boundary
	Accepted   int64 // detections past the boundary filter

	Tracker video.TrackerMetrics
}

// healthy reports whether the capture carries usable detector traffic:
// frames decoded and at least one detection surviving the boundary.
func (r healthReport) healthy() bool {
	return r.Frames > 0 && r.Accepted > 0
}

// formatReport renders the pass summary for the terminal.
func formatReport(r healthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Capture summary:\n")
	fmt.Fprintf(&b, "  packets:     %d (%d dropped by decoder)\n", r.Packets, r.Dropped)
	fmt.Fprintf(&b, "  frames:      %d\n", r.Frames)
	fmt.Fprintf(&b, "  detections:  %d decoded, %d past boundary\n", r.Detections, r.Accepted)
	fmt.Fprintf(&b, "  tracks:      %d created, %d confirmed, %d deleted, %d active at end\n",
		r.Tracker.TracksCreated, r.Tracker.TracksPromoted, r.Tracker.TracksDeleted, r.Tracker.ActiveTracks)
	return b.String()
}

// runHealthCheck replays the capture through a fresh pipeline and collects
// the counters every stage reports.
func runHealthCheck(ctx context.Context, pcapFile string, udpPort int, tuning *config.TuningConfig) (healthReport, error) {
	stats := video.NewIngestStats()
	filterStats := &l2detect.FilterStats{}
	filter := l2detect.StandardChain(l2detect.ConfigFromTuning(tuning), filterStats)
	tracker := l5tracks.NewTracker(l5tracks.TrackerConfigFromTuning(tuning))

	cfg := &pipeline.ReplayPipelineConfig{
		StreamID:    "pcap-test",
		Filter:      filter,
		FilterStats: filterStats,
		Tracker:     tracker,
	}
	callback := cfg.NewFrameCallback()

	var frames int64
	handler := func(fd video.FrameDetections) {
		frames++
		callback(fd)
	}

	if err := l1ingest.ReadPCAPFile(ctx, pcapFile, udpPort, handler, stats); err != nil {
		return healthReport{}, err
	}

	packets, _, dropped, detections, _ := stats.GetAndReset()
	return healthReport{
		Packets:    packets,
		Dropped:    dropped,
		Frames:     frames,
		Detections: detections,
		Accepted:   filterStats.Accepted.Load(),
		Tracker:    tracker.Metrics(),
	}, nil
}

func main() {
	pcapFile := flag.String("pcap", "", "PCAP capture of detector datagrams (required)")
	udpPort := flag.Int("udp-port", 9999, "UDP port carrying detections in the capture")
	tuningPath := flag.String("tuning", "", "Path to a tuning config JSON file")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("A capture file is required (-pcap)")
	}
	if _, err := os.Stat(*pcapFile); err != nil {
		log.Fatalf("Failed to open capture: %v", err)
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

	report, err := runHealthCheck(context.Background(), *pcapFile, *udpPort, tuning)
	if err != nil {
		log.Fatalf("Capture replay failed: %v", err)
	}

	fmt.Print(formatReport(report))
	if !report.healthy() {
		log.Fatalf("Capture is not healthy: no usable detector traffic on port %d", *udpPort)
	}
	log.Printf("Capture OK: %d frames, %d detections past the boundary", report.Frames, report.Accepted)
}
