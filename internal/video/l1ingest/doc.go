// Package l1ingest owns Layer 1 (Ingest) of the replay data model.
//
// Responsibilities: detection transport off the camera box. Detections
// arrive either as binary UDP packets from a live detector, as PCAP
// captures replayed through the same parse path, or as JSONL detection
// logs recorded by earlier runs. The layer also reads frame imagery for
// the appearance embedder. It produces per-frame detection batches
// consumed by L2 (Detect).
//
// Dependency rule: L1 imports internal/video only; it has no inward
// dependencies on higher layers.
package l1ingest
