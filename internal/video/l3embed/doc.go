// Package l3embed owns Layer 3 (Appearance): everything the tracker knows
// about what a subject looks like, as opposed to where it is.
//
// Responsibilities:
//   - The Embedder capability boundary (frame + detections in, one
//     fixed-length vector per detection out)
//   - A built-in classical embedder (HSV colour histogram) and a null
//     embedder for motion-only tracking
//   - Per-track appearance memory (Gallery) with a fixed budget,
//     newest-first eviction
//   - Cosine distance over L2-normalised embeddings
//
// Key types: Embedder, HistogramEmbedder, NullEmbedder, Gallery.
//
// Dependency rule: imports video only. The tracker core never depends on a
// concrete embedding implementation, only on the Embedder interface and the
// vectors it yields.
package l3embed
