// Package l4assoc owns Layer 4 (Association): the machinery that decides,
// each frame, which detection belongs to which track.
//
// Responsibilities:
//   - Gated min-cost bipartite matching over an injected cost function
//   - Cascaded matching by track recency (most recently updated tracks
//     claim detections first)
//   - IoU cost matrices for the overlap-based recovery stage
//
// Key types: CostFunc, Match, MinCostMatching, MatchingCascade.
//
// The cost functions themselves (Mahalanobis, appearance) are supplied by
// Layer 5, which owns the motion model and the galleries; this package only
// arranges and solves the assignments.
//
// Dependency rule: imports video only.
package l4assoc
