package monitoring

import "log"

// Logf is the package-level diagnostic logger shared by the tracking and
// ingest layers. It defaults to log.Printf; SetLogger redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger so callers never need a nil check.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Tagged returns a logger that prefixes every line with the given
// subsystem tag, e.g. "l1ingest: dropped 3 frames".
func Tagged(tag string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(tag+": "+format, v...)
	}
}
