package l4assoc

import (
	"fmt"

	"github.com/courtside-data/replay.vision/internal/video"
)

// CostFunc builds the dissimilarity matrix for the given track and
// detection indices: one row per track index, one column per detection
// index, in the order supplied. Indices are positions in the caller's own
// track table and detection slice; this package never dereferences them.
type CostFunc func(trackIdxs, detIdxs []int) [][]float64

// Match pairs a track index with a detection index, carrying the cost the
// pair was accepted at.
type Match struct {
	TrackIdx int
	DetIdx   int
	Cost     float64
}

// MinCostMatching solves one gated assignment round. Pairs whose cost
// exceeds maxDistance are ineligible. Every track and detection index comes
// back exactly once, either inside a match or in an unmatched slice.
//
// A cost matrix whose dimensions disagree with the index slices is a
// programming-contract violation and panics.
func MinCostMatching(cost CostFunc, maxDistance float64, trackIdxs, detIdxs []int) (matches []Match, unmatchedTracks, unmatchedDets []int) {
	if len(trackIdxs) == 0 || len(detIdxs) == 0 {
		return nil, append([]int(nil), trackIdxs...), append([]int(nil), detIdxs...)
	}

	matrix := cost(trackIdxs, detIdxs)
	if len(matrix) != len(trackIdxs) {
		panic(fmt.Sprintf("l4assoc: cost matrix has %d rows for %d tracks", len(matrix), len(trackIdxs)))
	}
	for i, row := range matrix {
		if len(row) != len(detIdxs) {
			panic(fmt.Sprintf("l4assoc: cost matrix row %d has %d columns for %d detections", i, len(row), len(detIdxs)))
		}
	}

	// Gate before solving so the solver never trades a legal pair away to
	// satisfy an illegal one.
	gated := make([][]float64, len(matrix))
	for i, row := range matrix {
		gated[i] = make([]float64, len(row))
		for j, v := range row {
			if v > maxDistance {
				gated[i][j] = video.ForbiddenCost
			} else {
				gated[i][j] = v
			}
		}
	}

	assignment := video.HungarianAssign(gated)

	detMatched := make([]bool, len(detIdxs))
	for i, j := range assignment {
		if j < 0 {
			unmatchedTracks = append(unmatchedTracks, trackIdxs[i])
			continue
		}
		matches = append(matches, Match{TrackIdx: trackIdxs[i], DetIdx: detIdxs[j], Cost: matrix[i][j]})
		detMatched[j] = true
	}
	for j, used := range detMatched {
		if !used {
			unmatchedDets = append(unmatchedDets, detIdxs[j])
		}
	}
	return matches, unmatchedTracks, unmatchedDets
}

// MatchingCascade runs MinCostMatching once per recency level: tracks
// updated one frame ago first, then two, out to cascadeDepth. Earlier
// levels see the full detection pool, so a freshly seen track is never
// outbid by one that has been missing longer. Tracks whose recency exceeds
// the cascade depth fall straight through to unmatched.
func MatchingCascade(cost CostFunc, maxDistance float64, cascadeDepth int, timeSinceUpdate func(trackIdx int) int, trackIdxs, detIdxs []int) (matches []Match, unmatchedTracks, unmatchedDets []int) {
	unmatchedDets = append([]int(nil), detIdxs...)
	matched := make(map[int]bool, len(trackIdxs))

	for level := 1; level <= cascadeDepth; level++ {
		if len(unmatchedDets) == 0 {
			break
		}
		var bucket []int
		for _, ti := range trackIdxs {
			if timeSinceUpdate(ti) == level {
				bucket = append(bucket, ti)
			}
		}
		if len(bucket) == 0 {
			continue
		}
		levelMatches, _, remaining := MinCostMatching(cost, maxDistance, bucket, unmatchedDets)
		for _, m := range levelMatches {
			matches = append(matches, m)
			matched[m.TrackIdx] = true
		}
		unmatchedDets = remaining
	}

	for _, ti := range trackIdxs {
		if !matched[ti] {
			unmatchedTracks = append(unmatchedTracks, ti)
		}
	}
	return matches, unmatchedTracks, unmatchedDets
}
