package l1ingest

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/courtside-data/replay.vision/internal/video"
)

// FrameDirSource reads frame imagery from a directory of extracted stills
// (frame_000001.jpg, ...), ordered by filename. It satisfies
// video.FrameSource for offline replay runs where the appearance embedder
// needs pixels to go with a detection log.
type FrameDirSource struct {
	files []string
	idx   int
}

// NewFrameDirSource scans dir for frame imagery. An unreadable or empty
// directory is an error: a replay without frames cannot start, and the
// caller is expected to abort with a clear diagnostic.
func NewFrameDirSource(dir string) (*FrameDirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no frame imagery found in %s", dir)
	}
	sort.Strings(files)

	return &FrameDirSource{files: files}, nil
}

// Len returns the number of frames in the source.
func (s *FrameDirSource) Len() int { return len(s.files) }

// Next decodes the next frame. ok is false once the directory is
// exhausted. A frame that exists but cannot be decoded is an error, not a
// skip: corrupt imagery invalidates the run.
func (s *FrameDirSource) Next() (video.Frame, bool, error) {
	if s.idx >= len(s.files) {
		return video.Frame{}, false, nil
	}
	path := s.files[s.idx]

	f, err := os.Open(path)
	if err != nil {
		return video.Frame{}, false, fmt.Errorf("failed to open frame %s: %w", path, err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return video.Frame{}, false, fmt.Errorf("failed to decode frame %s: %w", path, err)
	}

	frame := video.Frame{Index: int64(s.idx), Image: img}
	s.idx++
	return frame, true, nil
}

// Close releases nothing; files are opened per frame.
func (s *FrameDirSource) Close() error { return nil }

// NullFrameSource yields no frames. Replay runs without imagery use it so
// the pipeline wiring stays uniform; the embedder sees nil images and
// produces no appearance evidence.
type NullFrameSource struct{}

func (NullFrameSource) Next() (video.Frame, bool, error) { return video.Frame{}, false, nil }
func (NullFrameSource) Close() error                     { return nil }
