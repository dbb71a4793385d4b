// Package video owns the shared domain model for the replay tracking
// pipeline: detections, bounding-box forms, the track output contract,
// and the assignment solver used by the association layer.
//
// Responsibilities:
//   - Detection and per-frame envelope types shared by every layer
//   - Bounding-box conversions (corner, top-left, centre/aspect forms)
//   - Detection validation at the ingest boundary
//   - Rectangular min-cost assignment (Jonker-Volgenant)
//   - TrackerInterface and the snapshot types emitted to consumers
//
// Key types: Detection, FrameDetections, Box, TrackOutput, TrackerInterface.
//
// Dependency rule: this package imports only the standard library. Layer
// packages (l1ingest, l2detect, l3embed, l4assoc, l5tracks, l6replay)
// import video, never each other's internals, and never anything from a
// higher-numbered layer.
package video
