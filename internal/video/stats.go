package video

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StatsSnapshot is the most recent windowed rate computation, kept for the
// monitor's status page and stats endpoint.
type StatsSnapshot struct {
	PacketsPerSec    float64
	KBPerSec         float64
	DetectionsPerSec float64
	DroppedCount     int64
	Timestamp        time.Time
}

// IngestStats tracks detection transport statistics with thread-safe
// operations. One instance is shared between the listener and the monitor.
type IngestStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	droppedCount   int64
	detectionCount int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewIngestStats creates a new IngestStats instance.
func NewIngestStats() *IngestStats {
	now := time.Now()
	return &IngestStats{
		lastReset: now,
		startTime: now,
	}
}

// AddPacket increments packet count and byte count.
func (s *IngestStats) AddPacket(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetCount++
	s.byteCount += int64(bytes)
}

// AddDropped increments the malformed-packet count.
func (s *IngestStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.droppedCount++
}

// AddDetections increments the decoded detection count.
func (s *IngestStats) AddDetections(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectionCount += int64(count)
}

// GetAndReset returns current stats and resets counters.
func (s *IngestStats) GetAndReset() (packets, bytes, dropped, detections int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration = now.Sub(s.lastReset)
	packets = s.packetCount
	bytes = s.byteCount
	dropped = s.droppedCount
	detections = s.detectionCount

	s.packetCount = 0
	s.byteCount = 0
	s.droppedCount = 0
	s.detectionCount = 0
	s.lastReset = now

	return
}

// LogStats logs formatted transport rates since the last reset and stores a
// snapshot for the monitor.
func (s *IngestStats) LogStats() {
	packets, bytes, dropped, detections, duration := s.GetAndReset()
	if packets == 0 && dropped == 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	kbPerSec := float64(bytes) / duration.Seconds() / 1024
	detsPerSec := float64(detections) / duration.Seconds()

	s.mu.Lock()
	s.latestSnapshot = &StatsSnapshot{
		PacketsPerSec:    packetsPerSec,
		KBPerSec:         kbPerSec,
		DetectionsPerSec: detsPerSec,
		DroppedCount:     dropped,
		Timestamp:        time.Now(),
	}
	s.mu.Unlock()

	logMsg := fmt.Sprintf("Ingest stats (/sec): %.1f KB, %.1f packets, %s detections",
		kbPerSec, packetsPerSec, FormatWithCommas(int64(detsPerSec)))
	if dropped > 0 {
		logMsg += fmt.Sprintf(", %d malformed dropped", dropped)
	}
	log.Print(logMsg)
}

// GetUptime returns the time since the stats were created.
func (s *IngestStats) GetUptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

// GetLatestSnapshot returns a copy of the most recent rate snapshot, or nil
// before the first LogStats with traffic.
func (s *IngestStats) GetLatestSnapshot() *StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestSnapshot == nil {
		return nil
	}
	snapshot := *s.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
