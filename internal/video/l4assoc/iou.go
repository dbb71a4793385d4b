package l4assoc

import "github.com/courtside-data/replay.vision/internal/video"

// IoUCostMatrix returns 1 − IoU for every track/detection box pair: 0 for
// perfect overlap, 1 for disjoint boxes. Used by the recovery stage that
// follows the cascade, where position overlap is a better signal than a
// stale motion estimate.
func IoUCostMatrix(trackBoxes, detBoxes []video.Box) [][]float64 {
	out := make([][]float64, len(trackBoxes))
	for i, tb := range trackBoxes {
		out[i] = make([]float64, len(detBoxes))
		for j, db := range detBoxes {
			out[i][j] = 1 - float64(tb.IoU(db))
		}
	}
	return out
}
