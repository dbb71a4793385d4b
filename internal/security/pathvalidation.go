// Package security guards filesystem paths built from operator input:
// export destinations and filenames derived from run IDs or source names.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureWithin reports an error when path would land outside dir once
// cleaned and symlink-resolved. dir must exist.
func EnsureWithin(path, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}

	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", path, dir)
	}
	return nil
}

// canonicalize resolves symlinks in path. For paths that do not exist
// yet, the deepest existing ancestor is resolved instead, so a
// symlinked parent cannot redirect the write elsewhere.
func canonicalize(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	dir := path
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return path
			}
			return filepath.Join(resolved, rel)
		}
		dir = parent
	}
}

// ValidateExportPath accepts paths under the working directory or the
// system temp directory. Tools that write operator-named files call this
// before creating anything.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	allowed := []string{cwd, os.TempDir()}
	for _, dir := range allowed {
		if EnsureWithin(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("export path %s must stay under %s or %s", path, cwd, os.TempDir())
}

// maxFilenameLen keeps generated names well under common filesystem
// limits even after timestamps and extensions are appended.
const maxFilenameLen = 128

// SanitizeFilename maps an arbitrary identifier to a safe filename
// fragment. ASCII letters, digits, dot, underscore, and dash pass
// through; every other run of characters collapses to one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	dropped := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			dropped = false
		default:
			if !dropped {
				b.WriteByte('_')
				dropped = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
