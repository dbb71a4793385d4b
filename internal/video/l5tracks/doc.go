// Package l5tracks owns Layer 5 (Tracks): the per-stream multi-object
// tracker that turns filtered detections into persistent integer-identity
// tracks.
//
// Responsibilities:
//   - 8-state Kalman motion model per track (centre, aspect, height and
//     their velocities) with Mahalanobis gating distances
//   - Track lifecycle (tentative → confirmed → deleted) with hit streaks,
//     miss budgets and the strict-tentative policy
//   - Per-frame update cycle: predict, associate, correct, age, spawn,
//     purge, snapshot
//   - Appearance-aware association costs built over the track galleries
//
// Key types: Tracker, Track, TrackerConfig, KalmanFilter.
//
// Dependency rule: imports video (shared model), l3embed (appearance
// memory and distances) and l4assoc (matching machinery). Nothing above
// Layer 5 is imported here.
package l5tracks
