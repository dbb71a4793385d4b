// Package monitor provides the HTTP surface of a replay stream: health
// and status pages, the runs and tracks APIs over the results database,
// live tuning, and the debugging charts.
//
// The monitor never owns domain state. It reads the live tracker through
// video.TrackerInterface, persisted runs through the storage/sqlite
// stores, and pushes tuning changes back through the tracker's config
// hooks. Everything here is a view or a control knob; the per-stream
// pipeline keeps running whether or not a monitor is attached.
package monitor
