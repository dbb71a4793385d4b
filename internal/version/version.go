// Package version carries build identification, populated via -ldflags
// by the release scripts.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build identification for logs and the version flag.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
