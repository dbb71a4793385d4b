// Package pipeline provides orchestration for the replay tracking pipeline.
//
// It wires together stages from L1-L6 and adapter sinks (persistence,
// publish) into a coherent processing flow for live detector streams and
// recorded replays. This package is the composition root: it imports from
// layer packages (l1ingest, l2detect, l3embed, l5tracks, l6replay) and
// storage, but none of those packages import pipeline/. The pipeline does
// not own domain logic; it delegates to layer packages and adapters.
package pipeline
