package sqlite

import (
	"database/sql"
	"fmt"
)

// TrackObservation represents one confirmed track's emitted box on one
// frame of a run.
type TrackObservation struct {
	RunID   string `json:"run_id"`
	Frame   int64  `json:"frame"`
	TrackID int64  `json:"track_id"`

	// Corner-form box, already in pixel coordinates.
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`

	Confidence float32 `json:"confidence"`
	State      string  `json:"state"`
}

// Box returns the observation's bounding box in corner form.
func (o *TrackObservation) Box() Box {
	return Box{X1: o.X1, Y1: o.Y1, X2: o.X2, Y2: o.Y2}
}

// RunTrackSummary aggregates one track's presence over a run.
type RunTrackSummary struct {
	RunID            string  `json:"run_id"`
	TrackID          int64   `json:"track_id"`
	FirstFrame       int64   `json:"first_frame"`
	LastFrame        int64   `json:"last_frame"`
	ObservationCount int     `json:"observation_count"`
	MaxConfidence    float32 `json:"max_confidence"`
}

// ObservationStore provides persistence for per-frame track observations.
type ObservationStore struct {
	db *sql.DB
}

// NewObservationStore creates a new ObservationStore.
func NewObservationStore(db *sql.DB) *ObservationStore {
	return &ObservationStore{db: db}
}

// Insert upserts a single observation. Re-emitting the same
// (run, frame, track) triple overwrites the stored box, which makes
// replays of partially persisted runs idempotent.
func (s *ObservationStore) Insert(obs *TrackObservation) error {
	return retryOnBusy(func() error {
		_, err := s.db.Exec(obsUpsertQuery,
			obs.RunID, obs.Frame, obs.TrackID,
			obs.X1, obs.Y1, obs.X2, obs.Y2,
			obs.Confidence, obs.State,
		)
		if err != nil {
			return fmt.Errorf("insert track observation: %w", err)
		}
		return nil
	})
}

const obsUpsertQuery = `
	INSERT INTO track_observations (
		run_id, frame, track_id,
		x1, y1, x2, y2,
		confidence, track_state
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, frame, track_id) DO UPDATE SET
		x1 = excluded.x1,
		y1 = excluded.y1,
		x2 = excluded.x2,
		y2 = excluded.y2,
		confidence = excluded.confidence,
		track_state = excluded.track_state
`

// InsertFrame upserts the observations for every given track on one
// frame inside a single transaction.
func (s *ObservationStore) InsertFrame(runID string, frame int64, tracks []Track) error {
	if len(tracks) == 0 {
		return nil
	}
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin observation tx: %w", err)
		}
		stmt, err := tx.Prepare(obsUpsertQuery)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("prepare observation upsert: %w", err)
		}
		defer stmt.Close()

		for i := range tracks {
			trk := &tracks[i]
			box := trk.Box()
			if _, err := stmt.Exec(
				runID, frame, trk.ID,
				box.X1, box.Y1, box.X2, box.Y2,
				trk.Confidence, string(trk.State),
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert observation for track %d: %w", trk.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit observation tx: %w", err)
		}
		return nil
	})
}

// ListByRun returns observations for a run ordered by frame then track
// id. A negative trackID returns all tracks; endFrame <= 0 leaves the
// range open-ended.
func (s *ObservationStore) ListByRun(runID string, trackID int64, startFrame, endFrame int64, limit int) ([]*TrackObservation, error) {
	if limit <= 0 {
		limit = 10000
	}

	query := `
		SELECT run_id, frame, track_id, x1, y1, x2, y2, confidence, track_state
		FROM track_observations
		WHERE run_id = ? AND frame >= ?`
	args := []interface{}{runID, startFrame}

	if endFrame > 0 {
		query += " AND frame <= ?"
		args = append(args, endFrame)
	}
	if trackID >= 0 {
		query += " AND track_id = ?"
		args = append(args, trackID)
	}

	query += " ORDER BY frame ASC, track_id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query track observations: %w", err)
	}
	defer rows.Close()

	var observations []*TrackObservation
	for rows.Next() {
		obs := &TrackObservation{}
		if err := rows.Scan(
			&obs.RunID, &obs.Frame, &obs.TrackID,
			&obs.X1, &obs.Y1, &obs.X2, &obs.Y2,
			&obs.Confidence, &obs.State,
		); err != nil {
			return nil, fmt.Errorf("scan track observation: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// ListAllByRun returns every observation of a run ordered by frame then
// track id, with no row limit. Used by run comparison, which needs the
// complete footprint of every track.
func (s *ObservationStore) ListAllByRun(runID string) ([]*TrackObservation, error) {
	rows, err := s.db.Query(`
		SELECT run_id, frame, track_id, x1, y1, x2, y2, confidence, track_state
		FROM track_observations
		WHERE run_id = ?
		ORDER BY frame ASC, track_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query track observations: %w", err)
	}
	defer rows.Close()

	var observations []*TrackObservation
	for rows.Next() {
		obs := &TrackObservation{}
		if err := rows.Scan(
			&obs.RunID, &obs.Frame, &obs.TrackID,
			&obs.X1, &obs.Y1, &obs.X2, &obs.Y2,
			&obs.Confidence, &obs.State,
		); err != nil {
			return nil, fmt.Errorf("scan track observation: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// TrackSummaries returns per-track aggregates for a run in ascending
// track id order.
func (s *ObservationStore) TrackSummaries(runID string) ([]*RunTrackSummary, error) {
	rows, err := s.db.Query(`
		SELECT run_id, track_id,
		       MIN(frame), MAX(frame), COUNT(*), MAX(confidence)
		FROM track_observations
		WHERE run_id = ?
		GROUP BY track_id
		ORDER BY track_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query track summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*RunTrackSummary
	for rows.Next() {
		sum := &RunTrackSummary{}
		if err := rows.Scan(
			&sum.RunID, &sum.TrackID,
			&sum.FirstFrame, &sum.LastFrame, &sum.ObservationCount, &sum.MaxConfidence,
		); err != nil {
			return nil, fmt.Errorf("scan track summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// LatestFrame returns the highest frame number with observations for a
// run, or ok=false when the run has no observations yet.
func (s *ObservationStore) LatestFrame(runID string) (int64, bool, error) {
	var frame sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(frame) FROM track_observations WHERE run_id = ?`, runID,
	).Scan(&frame)
	if err != nil {
		return 0, false, fmt.Errorf("latest observation frame: %w", err)
	}
	if !frame.Valid {
		return 0, false, nil
	}
	return frame.Int64, true, nil
}

// CountForRun returns the total observation row count for a run.
func (s *ObservationStore) CountForRun(runID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM track_observations WHERE run_id = ?`, runID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}
