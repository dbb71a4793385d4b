package sqlite

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunManager coordinates replay run lifecycle and observation capture.
// It is safe for concurrent use and provides hooks for the replay
// pipeline.
type RunManager struct {
	mu         sync.RWMutex
	runs       *RunStore
	obs        *ObservationStore
	currentRun *ReplayRun
	streamID   string
	startTime  time.Time

	// Stats collected during the run
	totalFrames     int
	totalDetections int
	tracksSeen      map[int64]bool
}

// runManagers stores per-stream run managers.
var (
	rmMu       sync.RWMutex
	rmRegistry = make(map[string]*RunManager)
)

// NewRunManager creates a new manager for replay runs on one stream.
func NewRunManager(db *sql.DB, streamID string) *RunManager {
	return &RunManager{
		runs:       NewRunStore(db),
		obs:        NewObservationStore(db),
		streamID:   streamID,
		tracksSeen: make(map[int64]bool),
	}
}

// RegisterRunManager registers a manager for a stream ID.
func RegisterRunManager(streamID string, manager *RunManager) {
	rmMu.Lock()
	defer rmMu.Unlock()
	rmRegistry[streamID] = manager
}

// GetRunManager retrieves the manager for a stream ID.
func GetRunManager(streamID string) *RunManager {
	rmMu.RLock()
	defer rmMu.RUnlock()
	return rmRegistry[streamID]
}

// StartRun begins a new replay run over the given detection source.
// It returns the run ID used to key persisted observations.
func (m *RunManager) StartRun(sourceType, sourcePath, label string, params RunParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID := "run_" + uuid.New().String()

	paramsJSON, err := params.ToJSON()
	if err != nil {
		return "", err
	}

	m.currentRun = &ReplayRun{
		RunID:        runID,
		Label:        label,
		SourceType:   sourceType,
		SourcePath:   sourcePath,
		ParamsJSON:   paramsJSON,
		Status:       RunStatusRunning,
		StartedNanos: time.Now().UnixNano(),
	}

	if err := m.runs.Insert(m.currentRun); err != nil {
		m.currentRun = nil
		return "", err
	}

	m.startTime = time.Now()
	m.totalFrames = 0
	m.totalDetections = 0
	m.tracksSeen = make(map[int64]bool)

	log.Printf("[RunManager] Started run %s for %s:%s", runID, sourceType, sourcePath)
	return runID, nil
}

// RecordFrame increments the frame count for the current run.
func (m *RunManager) RecordFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalFrames++
}

// RecordDetections adds to the detection count for the current run.
func (m *RunManager) RecordDetections(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalDetections += count
}

// RecordTracks persists the given tracks as observations on one frame
// and returns the number of identities not seen before in this run.
// Without an active run it is a no-op.
func (m *RunManager) RecordTracks(frame int64, tracks []Track) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil || len(tracks) == 0 {
		return 0
	}

	newIdentities := 0
	for i := range tracks {
		if !m.tracksSeen[tracks[i].ID] {
			m.tracksSeen[tracks[i].ID] = true
			newIdentities++
		}
	}

	if err := m.obs.InsertFrame(m.currentRun.RunID, frame, tracks); err != nil {
		log.Printf("[RunManager] Failed to insert observations for frame %d: %v", frame, err)
	}
	return newIdentities
}

// CompleteRun finalizes the current replay run with statistics.
func (m *RunManager) CompleteRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return nil
	}

	processingTime := time.Since(m.startTime)

	stats := &RunStats{
		TotalFrames:      m.totalFrames,
		TotalDetections:  m.totalDetections,
		TotalTracks:      len(m.tracksSeen),
		DurationSecs:     processingTime.Seconds(),
		ProcessingTimeMs: processingTime.Milliseconds(),
	}

	if err := m.runs.Complete(m.currentRun.RunID, stats); err != nil {
		return err
	}

	log.Printf("[RunManager] Completed run %s: %d frames, %d detections, %d tracks in %.2fs",
		m.currentRun.RunID, stats.TotalFrames, stats.TotalDetections, stats.TotalTracks, stats.DurationSecs)

	m.currentRun = nil
	return nil
}

// FailRun marks the current run as failed with an error message.
func (m *RunManager) FailRun(errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentRun == nil {
		return nil
	}

	if err := m.runs.UpdateStatus(m.currentRun.RunID, RunStatusFailed, errMsg); err != nil {
		return err
	}

	log.Printf("[RunManager] Failed run %s: %s", m.currentRun.RunID, errMsg)
	m.currentRun = nil
	return nil
}

// IsRunActive returns true if there's an active replay run.
func (m *RunManager) IsRunActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentRun != nil
}

// CurrentRunID returns the current run ID, or empty string if no run is
// active.
func (m *RunManager) CurrentRunID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentRun == nil {
		return ""
	}
	return m.currentRun.RunID
}

// GetCurrentRunParams retrieves the current run's parameters for display.
func (m *RunManager) GetCurrentRunParams() (RunParams, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.currentRun == nil {
		return RunParams{}, false
	}

	var params RunParams
	if err := json.Unmarshal(m.currentRun.ParamsJSON, &params); err != nil {
		return RunParams{}, false
	}
	return params, true
}
