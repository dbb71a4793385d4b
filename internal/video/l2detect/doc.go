// Package l2detect is Layer 2 of the replay pipeline: the detection
// boundary. Raw per-frame detections from the detector collaborator pass
// through a composable filter chain before any tracking work sees them.
//
// Responsibilities:
//   - Reject malformed detections (non-finite geometry, non-positive
//     extents, out-of-range confidence) with a diagnostic, never a failure.
//   - Keep only the configured target class.
//   - Drop low-confidence and degenerate-area detections.
//
// Key types:
//   - FilterFunc: a []Detection -> []Detection stage.
//   - FilterStats: counters for accepted and rejected detections.
//
// Dependency rule: imports internal/video only.
package l2detect
