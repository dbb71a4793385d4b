//go:build pcap
// +build pcap

package main

import (
	"context"
	"os"
	"testing"

	"github.com/courtside-data/replay.vision/internal/config"
)

// TestHealthCheckWithRealCapture replays an actual detector capture through
// the full pipeline. Drop a capture named detections.pcap next to this file
// to exercise it; the capture is too large to commit.
func TestHealthCheckWithRealCapture(t *testing.T) {
	pcapPath := "./detections.pcap"
	if _, err := os.Stat(pcapPath); err != nil {
		t.Skipf("no local capture at %s", pcapPath)
	}

	report, err := runHealthCheck(context.Background(), pcapPath, 9999, config.EmptyTuningConfig())
	if err != nil {
		t.Fatalf("Failed to replay capture: %v", err)
	}

	if report.Frames == 0 {
		t.Fatal("No frames decoded from capture")
	}
	t.Logf("Extracted %d frames (%d detections) from capture", report.Frames, report.Detections)
}
