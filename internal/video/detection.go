package video

import (
	"fmt"
	"math"
)

// Detection is a single frame's observation of one object: a centre-form
// bounding box in pixel units, a detector confidence, a class index, and an
// optional appearance embedding. Detections carry no identity; they are
// consumed by one tracker update and discarded.
type Detection struct {
	CX         float32   `json:"cx"`
	CY         float32   `json:"cy"`
	W          float32   `json:"w"`
	H          float32   `json:"h"`
	Confidence float32   `json:"conf"`
	ClassID    int       `json:"class"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// FrameDetections is the per-frame envelope produced by every ingest source:
// a frame index, a capture timestamp, and the unassociated detections for
// that frame.
type FrameDetections struct {
	Frame       int64       `json:"frame"`
	TimestampNs int64       `json:"ts_ns"`
	Detections  []Detection `json:"detections"`
}

// Validate reports why a detection is unusable, or nil. Geometry must be
// finite with positive extent, confidence must sit in [0,1], and the class
// index must be non-negative. Callers log and skip invalid detections; they
// never abort the run.
func (d Detection) Validate() error {
	for _, v := range []float32{d.CX, d.CY, d.W, d.H, d.Confidence} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite detection field in box (%v,%v,%v,%v) conf=%v", d.CX, d.CY, d.W, d.H, d.Confidence)
		}
	}
	if d.W <= 0 || d.H <= 0 {
		return fmt.Errorf("non-positive box extent w=%v h=%v", d.W, d.H)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	if d.ClassID < 0 {
		return fmt.Errorf("negative class id %d", d.ClassID)
	}
	return nil
}

// Box returns the corner-coordinate form of the detection.
func (d Detection) Box() Box {
	return Box{
		X1: d.CX - d.W/2,
		Y1: d.CY - d.H/2,
		X2: d.CX + d.W/2,
		Y2: d.CY + d.H/2,
	}
}

// XYAH returns the 4-d measurement vector used by the motion model:
// centre x, centre y, aspect ratio (w/h), height.
func (d Detection) XYAH() []float64 {
	return []float64{
		float64(d.CX),
		float64(d.CY),
		float64(d.W) / float64(d.H),
		float64(d.H),
	}
}

// Box is an axis-aligned rectangle in corner coordinates, x1<=x2 and y1<=y2
// for any box produced by this package.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// BoxFromXYAH converts a centre/aspect/height vector (as produced by the
// motion model) back to corner coordinates.
func BoxFromXYAH(m []float64) Box {
	h := m[3]
	w := m[2] * h
	return Box{
		X1: float32(m[0] - w/2),
		Y1: float32(m[1] - h/2),
		X2: float32(m[0] + w/2),
		Y2: float32(m[1] + h/2),
	}
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float32 { return b.X2 - b.X1 }

// Height returns the vertical extent of the box.
func (b Box) Height() float32 { return b.Y2 - b.Y1 }

// Area returns the box area; degenerate boxes have zero area.
func (b Box) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the box centre point.
func (b Box) Center() (float32, float32) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// IsZero reports whether the box is the zero value, used as the
// absent-this-frame placeholder in timelines.
func (b Box) IsZero() bool {
	return b.X1 == 0 && b.Y1 == 0 && b.X2 == 0 && b.Y2 == 0
}

// IoU returns the intersection-over-union overlap with another box in [0,1].
func (b Box) IoU(o Box) float32 {
	ix1 := max32(b.X1, o.X1)
	iy1 := max32(b.Y1, o.Y1)
	ix2 := min32(b.X2, o.X2)
	iy2 := min32(b.Y2, o.Y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Clamp limits the box to the frame [0,width]×[0,height].
func (b Box) Clamp(width, height float32) Box {
	return Box{
		X1: clamp32(b.X1, 0, width),
		Y1: clamp32(b.Y1, 0, height),
		X2: clamp32(b.X2, 0, width),
		Y2: clamp32(b.Y2, 0, height),
	}
}

// Detection returns a centre-form detection carrying this box with the given
// confidence and class, used when re-entering the filter chain after
// geometric adjustments.
func (b Box) Detection(conf float32, class int) Detection {
	cx, cy := b.Center()
	return Detection{CX: cx, CY: cy, W: b.Width(), H: b.Height(), Confidence: conf, ClassID: class}
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
