package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
)

// Comparison thresholds. A frame votes for a track pairing when the two
// boxes overlap at least this much; a pairing needs a minimum number of
// voting frames before it counts as evidence.
const (
	compareVoteIoU  = 0.5
	compareMinVotes = 3
)

// RunComparison reports how the track identities of two runs over the
// same footage line up.
type RunComparison struct {
	Run1ID string `json:"run1_id"`
	Run2ID string `json:"run2_id"`

	ParamDiff map[string]any `json:"param_diff,omitempty"`

	MatchedTracks   []TrackMatch `json:"matched_tracks,omitempty"`
	TracksOnlyRun1  []int64      `json:"tracks_only_run1,omitempty"`
	TracksOnlyRun2  []int64      `json:"tracks_only_run2,omitempty"`
	SplitCandidates []TrackSplit `json:"split_candidates,omitempty"`
	MergeCandidates []TrackMerge `json:"merge_candidates,omitempty"`

	// IdentityChurn counts unmatched tracks plus split and merge
	// candidates: zero means the two runs agree on who was where.
	IdentityChurn int `json:"identity_churn"`
}

// TrackMatch is a mutual one-to-one pairing between a run1 track and a
// run2 track.
type TrackMatch struct {
	Track1ID     int64   `json:"track1_id"`
	Track2ID     int64   `json:"track2_id"`
	SharedFrames int     `json:"shared_frames"`
	OverlapPct   float64 `json:"overlap_pct"`
	MeanIoU      float64 `json:"mean_iou"`
}

// TrackSplit reports a run1 track whose footprint is covered by several
// run2 tracks.
type TrackSplit struct {
	OriginalTrack int64   `json:"original_track"`
	SplitTracks   []int64 `json:"split_tracks"`
	Confidence    float64 `json:"confidence"`
}

// TrackMerge reports a run2 track that covers several run1 tracks.
type TrackMerge struct {
	MergedTrack  int64   `json:"merged_track"`
	SourceTracks []int64 `json:"source_tracks"`
	Confidence   float64 `json:"confidence"`
}

// trackFootprint is one track's boxes keyed by frame.
type trackFootprint map[int64]Box

// pairEvidence accumulates voting stats for one candidate pairing.
type pairEvidence struct {
	votes  int
	iouSum float64
}

// CompareRuns aligns the tracks of two persisted runs by box-overlap
// voting: every frame where a run1 box and a run2 box overlap beyond
// the vote threshold counts as a vote for that pairing. Pairings with
// enough votes become matches; tracks claimed by several partners are
// reported as split or merge candidates.
func CompareRuns(db *sql.DB, run1ID, run2ID string) (*RunComparison, error) {
	runStore := NewRunStore(db)
	obsStore := NewObservationStore(db)

	run1, err := runStore.Get(run1ID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", run1ID, err)
	}
	run2, err := runStore.Get(run2ID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", run2ID, err)
	}

	tracks1, err := loadFootprints(obsStore, run1ID)
	if err != nil {
		return nil, err
	}
	tracks2, err := loadFootprints(obsStore, run2ID)
	if err != nil {
		return nil, err
	}

	comparison := &RunComparison{
		Run1ID: run1ID,
		Run2ID: run2ID,
	}
	if diff := compareStoredParams(run1, run2); len(diff) > 0 {
		comparison.ParamDiff = diff
	}

	// Index run2 boxes by frame so each run1 box is checked against only
	// the co-visible candidates.
	byFrame := make(map[int64]map[int64]Box)
	for id2, fp := range tracks2 {
		for frame, box := range fp {
			if byFrame[frame] == nil {
				byFrame[frame] = make(map[int64]Box)
			}
			byFrame[frame][id2] = box
		}
	}

	evidence := make(map[int64]map[int64]*pairEvidence)
	for id1, fp := range tracks1 {
		for frame, box1 := range fp {
			for id2, box2 := range byFrame[frame] {
				iou := float64(box1.IoU(box2))
				if iou < compareVoteIoU {
					continue
				}
				if evidence[id1] == nil {
					evidence[id1] = make(map[int64]*pairEvidence)
				}
				ev := evidence[id1][id2]
				if ev == nil {
					ev = &pairEvidence{}
					evidence[id1][id2] = ev
				}
				ev.votes++
				ev.iouSum += iou
			}
		}
	}

	// Accepted pairings per side.
	partners1 := make(map[int64][]int64)
	partners2 := make(map[int64][]int64)
	for id1, row := range evidence {
		for id2, ev := range row {
			if ev.votes < compareMinVotes {
				continue
			}
			partners1[id1] = append(partners1[id1], id2)
			partners2[id2] = append(partners2[id2], id1)
		}
	}

	for _, ids := range partners1 {
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	}
	for _, ids := range partners2 {
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	}

	// Mutual one-to-one pairings are matches; one-to-many pairings are
	// split or merge candidates.
	for _, id1 := range sortedTrackIDs(tracks1) {
		p1 := partners1[id1]
		switch {
		case len(p1) == 0:
			comparison.TracksOnlyRun1 = append(comparison.TracksOnlyRun1, id1)
		case len(p1) == 1 && len(partners2[p1[0]]) == 1:
			id2 := p1[0]
			ev := evidence[id1][id2]
			comparison.MatchedTracks = append(comparison.MatchedTracks, TrackMatch{
				Track1ID:     id1,
				Track2ID:     id2,
				SharedFrames: ev.votes,
				OverlapPct:   float64(ev.votes) / float64(len(tracks1[id1])),
				MeanIoU:      ev.iouSum / float64(ev.votes),
			})
		case len(p1) > 1:
			comparison.SplitCandidates = append(comparison.SplitCandidates, TrackSplit{
				OriginalTrack: id1,
				SplitTracks:   p1,
				Confidence:    coveredFraction(evidence[id1], p1, len(tracks1[id1])),
			})
		}
	}

	for _, id2 := range sortedTrackIDs(tracks2) {
		p2 := partners2[id2]
		if len(p2) == 0 {
			comparison.TracksOnlyRun2 = append(comparison.TracksOnlyRun2, id2)
			continue
		}
		if len(p2) > 1 {
			votesByPartner := make(map[int64]*pairEvidence, len(p2))
			for _, id1 := range p2 {
				votesByPartner[id1] = evidence[id1][id2]
			}
			comparison.MergeCandidates = append(comparison.MergeCandidates, TrackMerge{
				MergedTrack:  id2,
				SourceTracks: p2,
				Confidence:   coveredFraction(votesByPartner, p2, len(tracks2[id2])),
			})
		}
	}

	comparison.IdentityChurn = len(comparison.TracksOnlyRun1) +
		len(comparison.TracksOnlyRun2) +
		len(comparison.SplitCandidates) +
		len(comparison.MergeCandidates)

	return comparison, nil
}

// loadFootprints loads every track's per-frame boxes for a run.
func loadFootprints(obsStore *ObservationStore, runID string) (map[int64]trackFootprint, error) {
	observations, err := obsStore.ListAllByRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load observations for %s: %w", runID, err)
	}
	footprints := make(map[int64]trackFootprint)
	for _, obs := range observations {
		fp := footprints[obs.TrackID]
		if fp == nil {
			fp = make(trackFootprint)
			footprints[obs.TrackID] = fp
		}
		fp[obs.Frame] = obs.Box()
	}
	return footprints, nil
}

func sortedTrackIDs(footprints map[int64]trackFootprint) []int64 {
	ids := make([]int64, 0, len(footprints))
	for id := range footprints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// coveredFraction returns what share of a track's frames is claimed by
// the given partners, capped at 1.
func coveredFraction(row map[int64]*pairEvidence, partners []int64, frames int) float64 {
	if frames == 0 {
		return 0
	}
	votes := 0
	for _, id := range partners {
		if ev := row[id]; ev != nil {
			votes += ev.votes
		}
	}
	frac := float64(votes) / float64(frames)
	if frac > 1 {
		frac = 1
	}
	return frac
}

// compareStoredParams diffs the stored params of two runs. Unparseable
// or missing params yield a nil diff.
func compareStoredParams(run1, run2 *ReplayRun) map[string]any {
	if len(run1.ParamsJSON) == 0 || len(run2.ParamsJSON) == 0 {
		return nil
	}
	p1, err := ParseRunParams(run1.ParamsJSON)
	if err != nil {
		return nil
	}
	p2, err := ParseRunParams(run2.ParamsJSON)
	if err != nil {
		return nil
	}
	return CompareRunParams(&p1, &p2)
}

// CompareRunParams compares two RunParams and returns a map of
// differences grouped by layer.
func CompareRunParams(p1, p2 *RunParams) map[string]any {
	diff := make(map[string]any)

	if p1.Filter != p2.Filter {
		fDiff := make(map[string]any)
		if p1.Filter.TargetClass != p2.Filter.TargetClass {
			fDiff["target_class"] = map[string]any{
				"run1": p1.Filter.TargetClass,
				"run2": p2.Filter.TargetClass,
			}
		}
		if p1.Filter.MinConfidence != p2.Filter.MinConfidence {
			fDiff["min_confidence"] = map[string]any{
				"run1": p1.Filter.MinConfidence,
				"run2": p2.Filter.MinConfidence,
			}
		}
		if p1.Filter.MinArea != p2.Filter.MinArea {
			fDiff["min_area"] = map[string]any{
				"run1": p1.Filter.MinArea,
				"run2": p2.Filter.MinArea,
			}
		}
		if len(fDiff) > 0 {
			diff["filter"] = fDiff
		}
	}

	if p1.Tracking != p2.Tracking {
		trDiff := make(map[string]any)
		if p1.Tracking.MaxAge != p2.Tracking.MaxAge {
			trDiff["max_age"] = map[string]any{
				"run1": p1.Tracking.MaxAge,
				"run2": p2.Tracking.MaxAge,
			}
		}
		if p1.Tracking.MinHits != p2.Tracking.MinHits {
			trDiff["min_hits"] = map[string]any{
				"run1": p1.Tracking.MinHits,
				"run2": p2.Tracking.MinHits,
			}
		}
		if p1.Tracking.MotionGate != p2.Tracking.MotionGate {
			trDiff["motion_gate_threshold"] = map[string]any{
				"run1": p1.Tracking.MotionGate,
				"run2": p2.Tracking.MotionGate,
			}
		}
		if p1.Tracking.AppearanceGate != p2.Tracking.AppearanceGate {
			trDiff["appearance_gate_threshold"] = map[string]any{
				"run1": p1.Tracking.AppearanceGate,
				"run2": p2.Tracking.AppearanceGate,
			}
		}
		if p1.Tracking.AppearanceBudget != p2.Tracking.AppearanceBudget {
			trDiff["appearance_memory_size"] = map[string]any{
				"run1": p1.Tracking.AppearanceBudget,
				"run2": p2.Tracking.AppearanceBudget,
			}
		}
		if p1.Tracking.MaxIoUDistance != p2.Tracking.MaxIoUDistance {
			trDiff["max_iou_distance"] = map[string]any{
				"run1": p1.Tracking.MaxIoUDistance,
				"run2": p2.Tracking.MaxIoUDistance,
			}
		}
		if p1.Tracking.StrictTentative != p2.Tracking.StrictTentative {
			trDiff["strict_tentative"] = map[string]any{
				"run1": p1.Tracking.StrictTentative,
				"run2": p2.Tracking.StrictTentative,
			}
		}
		if p1.Tracking.MaxTracks != p2.Tracking.MaxTracks {
			trDiff["max_tracks"] = map[string]any{
				"run1": p1.Tracking.MaxTracks,
				"run2": p2.Tracking.MaxTracks,
			}
		}
		if len(trDiff) > 0 {
			diff["tracking"] = trDiff
		}
	}

	if p1.Replay != p2.Replay {
		rDiff := make(map[string]any)
		if p1.Replay.FrameInterval != p2.Replay.FrameInterval {
			rDiff["frame_interval"] = map[string]any{
				"run1": p1.Replay.FrameInterval,
				"run2": p2.Replay.FrameInterval,
			}
		}
		if p1.Replay.AugmentWidthRatio != p2.Replay.AugmentWidthRatio {
			rDiff["augment_width_ratio"] = map[string]any{
				"run1": p1.Replay.AugmentWidthRatio,
				"run2": p2.Replay.AugmentWidthRatio,
			}
		}
		if p1.Replay.AugmentHeightRatio != p2.Replay.AugmentHeightRatio {
			rDiff["augment_height_ratio"] = map[string]any{
				"run1": p1.Replay.AugmentHeightRatio,
				"run2": p2.Replay.AugmentHeightRatio,
			}
		}
		if len(rDiff) > 0 {
			diff["replay"] = rDiff
		}
	}

	return diff
}
