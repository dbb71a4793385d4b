package l1ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/courtside-data/replay.vision/internal/monitoring"
	"github.com/courtside-data/replay.vision/internal/video"
)

// Detection logs are JSONL: one video.FrameDetections object per line.
// They are what the recorder writes during a session and what offline
// replay runs consume, so the reader must survive a truncated or
// hand-edited file: a malformed line is logged and skipped, never fatal.

// maxLogLineBytes bounds one JSONL line. Embedding-bearing batches are
// large; 4 MB covers ~128 detections with 512-float embeddings.
const maxLogLineBytes = 4 * 1024 * 1024

// LogWriter appends detection batches to a JSONL detection log.
type LogWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewLogWriter creates or truncates a detection log at path.
func NewLogWriter(path string) (*LogWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection log: %w", err)
	}
	return &LogWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Write appends one frame's batch as a single JSONL line.
func (w *LogWriter) Write(frame video.FrameDetections) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame %d: %w", frame.Frame, err)
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes and closes the underlying file.
func (w *LogWriter) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// LogReader streams detection batches from a JSONL detection log.
type LogReader struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
	skipped int
}

// OpenLog opens a detection log for reading. A missing file is an error;
// the caller decides whether that is fatal.
func OpenLog(path string) (*LogReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open detection log: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineBytes)
	return &LogReader{f: f, scanner: scanner}, nil
}

// Next returns the next well-formed batch. ok is false at end of log.
// Malformed lines are logged and skipped.
func (r *LogReader) Next() (video.FrameDetections, bool, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var frame video.FrameDetections
		if err := json.Unmarshal(raw, &frame); err != nil {
			r.skipped++
			monitoring.Logf("l1ingest: skipping malformed detection log line %d: %v", r.line, err)
			continue
		}
		return frame, true, nil
	}
	if err := r.scanner.Err(); err != nil {
		return video.FrameDetections{}, false, fmt.Errorf("detection log read failed at line %d: %w", r.line, err)
	}
	return video.FrameDetections{}, false, nil
}

// SkippedLines reports how many malformed lines were dropped so far.
func (r *LogReader) SkippedLines() int { return r.skipped }

// Close closes the underlying file.
func (r *LogReader) Close() error { return r.f.Close() }

// ReadAllFrames slurps an entire detection log, for tools and tests.
func ReadAllFrames(path string) ([]video.FrameDetections, error) {
	reader, err := OpenLog(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var frames []video.FrameDetections
	for {
		frame, ok, err := reader.Next()
		if err != nil {
			return frames, err
		}
		if !ok {
			return frames, nil
		}
		frames = append(frames, frame)
	}
}
