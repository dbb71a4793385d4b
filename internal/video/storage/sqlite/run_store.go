package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run status values as stored in replay_runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ReplayRun represents a single tracking run over a detection source,
// live or recorded.
type ReplayRun struct {
	RunID         string          `json:"run_id"`
	Label         string          `json:"label,omitempty"`
	SourceType    string          `json:"source_type"`
	SourcePath    string          `json:"source_path,omitempty"`
	ParamsJSON    json.RawMessage `json:"params_json,omitempty"`
	Status        string          `json:"status"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	StartedNanos  int64           `json:"started_unix_nanos"`
	FinishedNanos int64           `json:"finished_unix_nanos,omitempty"`

	// Totals filled in when the run completes.
	TotalFrames     int `json:"total_frames"`
	TotalDetections int `json:"total_detections"`
	TotalTracks     int `json:"total_tracks"`
}

// RunStats carries the final counters written when a run completes.
type RunStats struct {
	TotalFrames      int     `json:"total_frames"`
	TotalDetections  int     `json:"total_detections"`
	TotalTracks      int     `json:"total_tracks"`
	DurationSecs     float64 `json:"duration_secs"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
}

// RunStore provides persistence for replay runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a new run row. If StartedNanos is zero it is set to now.
// Re-inserting an existing run id updates the row in place rather than
// replacing it, so observation rows keyed on the run are never cascaded
// away.
func (s *RunStore) Insert(run *ReplayRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.StartedNanos == 0 {
		run.StartedNanos = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO replay_runs (
				run_id, label, source_type, source_path, params_json,
				status, error_message, started_unix_nanos, finished_unix_nanos,
				total_frames, total_detections, total_tracks
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				label = excluded.label,
				source_type = excluded.source_type,
				source_path = excluded.source_path,
				params_json = excluded.params_json,
				status = excluded.status,
				error_message = excluded.error_message,
				started_unix_nanos = excluded.started_unix_nanos,
				finished_unix_nanos = excluded.finished_unix_nanos,
				total_frames = excluded.total_frames,
				total_detections = excluded.total_detections,
				total_tracks = excluded.total_tracks`,
			run.RunID, run.Label, run.SourceType, run.SourcePath, paramsStr,
			run.Status, run.ErrorMessage, run.StartedNanos, run.FinishedNanos,
			run.TotalFrames, run.TotalDetections, run.TotalTracks,
		)
		if err != nil {
			return fmt.Errorf("insert replay run: %w", err)
		}
		return nil
	})
}

// Complete marks a run as completed and writes its final counters.
func (s *RunStore) Complete(runID string, stats *RunStats) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE replay_runs SET
				status = ?,
				finished_unix_nanos = ?,
				total_frames = ?,
				total_detections = ?,
				total_tracks = ?
			WHERE run_id = ?`,
			RunStatusCompleted, time.Now().UnixNano(),
			stats.TotalFrames, stats.TotalDetections, stats.TotalTracks,
			runID,
		)
		if err != nil {
			return fmt.Errorf("complete replay run: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("complete replay run rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("complete replay run: run %s not found", runID)
		}
		return nil
	})
}

// UpdateStatus sets the status and error message of a run. Used to mark
// runs failed; the finished timestamp is written alongside.
func (s *RunStore) UpdateStatus(runID, status, errMsg string) error {
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE replay_runs SET
				status = ?,
				error_message = ?,
				finished_unix_nanos = ?
			WHERE run_id = ?`,
			status, errMsg, time.Now().UnixNano(), runID,
		)
		if err != nil {
			return fmt.Errorf("update replay run status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update replay run status rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("update replay run status: run %s not found", runID)
		}
		return nil
	})
}

// Get returns a single run by id, or sql.ErrNoRows if it does not exist.
func (s *RunStore) Get(runID string) (*ReplayRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, label, source_type, source_path, params_json,
		       status, error_message, started_unix_nanos, finished_unix_nanos,
		       total_frames, total_detections, total_tracks
		FROM replay_runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get replay run: %w", err)
	}
	return run, nil
}

// List returns runs ordered by start time descending.
func (s *RunStore) List(limit int) ([]*ReplayRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, label, source_type, source_path, params_json,
		       status, error_message, started_unix_nanos, finished_unix_nanos,
		       total_frames, total_detections, total_tracks
		FROM replay_runs
		ORDER BY started_unix_nanos DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query replay runs: %w", err)
	}
	defer rows.Close()

	var runs []*ReplayRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan replay run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Delete removes a run and all of its observations.
func (s *RunStore) Delete(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin delete run tx: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM track_observations WHERE run_id = ?`, runID); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete run observations: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM replay_runs WHERE run_id = ?`, runID); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete run tx: %w", err)
	}
	return nil
}

// scanTarget abstracts sql.Row and sql.Rows for scanRun.
type scanTarget interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanTarget) (*ReplayRun, error) {
	run := &ReplayRun{}
	var params sql.NullString
	var finished sql.NullInt64
	if err := row.Scan(
		&run.RunID, &run.Label, &run.SourceType, &run.SourcePath, &params,
		&run.Status, &run.ErrorMessage, &run.StartedNanos, &finished,
		&run.TotalFrames, &run.TotalDetections, &run.TotalTracks,
	); err != nil {
		return nil, err
	}
	if params.Valid && params.String != "" {
		run.ParamsJSON = json.RawMessage(params.String)
	}
	if finished.Valid {
		run.FinishedNanos = finished.Int64
	}
	return run, nil
}
