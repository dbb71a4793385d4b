// Package sqlite contains SQLite repository implementations for replay
// domain types.
//
// All database read/write operations for replay runs and track
// observations belong here rather than in the layer packages (L1-L6).
// This keeps tracking logic free of SQL noise and makes it easier to
// swap storage backends for testing.
//
// Tracker state itself is never persisted: a tracker lives and dies with
// its run, and what is stored is the emitted result stream (confirmed
// track boxes per frame) plus the run metadata needed to reproduce it.
package sqlite
