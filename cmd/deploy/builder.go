package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/courtside-data/replay.vision/internal/deploy"
)

const versionPkg = "github.com/courtside-data/replay.vision/internal/version"

// buildBinary cross-compiles ./cmd/replay for the target platform and
// stamps the binary with the current git SHA and build time. The build
// always runs locally; the result gets copied to the box afterwards.
func buildBinary(ex *deploy.Executor, goos, goarch string) (string, error) {
	output := fmt.Sprintf("replay-vision-%s-%s", goos, goarch)

	sha, _ := ex.Run("git rev-parse --short HEAD 2>/dev/null || echo unknown")
	sha = strings.TrimSpace(sha)
	if sha == "" {
		sha = "unknown"
	}
	buildTime := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	ldflags := fmt.Sprintf("-X %s.GitSHA=%s -X %s.BuildTime=%s", versionPkg, sha, versionPkg, buildTime)

	fmt.Printf("Building %s (GOOS=%s GOARCH=%s, sha %s)...\n", output, goos, goarch, sha)
	cmd := fmt.Sprintf("GOOS=%s GOARCH=%s go build -trimpath -ldflags '%s' -o %s ./cmd/replay",
		goos, goarch, ldflags, output)
	if out, err := ex.Run(cmd); err != nil {
		return "", fmt.Errorf("go build failed: %w\n%s", err, out)
	}
	fmt.Printf("  ✓ Built %s\n", output)
	return output, nil
}
