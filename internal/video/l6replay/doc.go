// Package l6replay is Layer 6 of the replay pipeline: turning per-frame
// tracker snapshots into replay-ready artefacts.
//
// Responsibilities:
//   - Box augmentation: widening emitted boxes so the rendered crop
//     keeps the player's limbs and racket in frame.
//   - Per-player timelines: dense frame-by-frame box sequences per track
//     identity, with placeholders for absent frames and carry-forward
//     across detector frame intervals.
//   - Stable per-track overlay colours.
//
// Dependency rule: imports internal/video only.
package l6replay
