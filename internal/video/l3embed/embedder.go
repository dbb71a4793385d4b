package l3embed

import (
	"image"

	"github.com/courtside-data/replay.vision/internal/video"
)

// Embedder produces one fixed-length appearance vector per detection,
// index-aligned with the input slice. The neural sidecar, when deployed,
// sits behind this same interface; the tracker core never sees past it.
type Embedder interface {
	EmbedDetections(frame video.Frame, dets []video.Detection) ([][]float32, error)
}

// NullEmbedder produces no embeddings: association falls back to motion
// cost alone.
type NullEmbedder struct{}

// EmbedDetections returns a nil vector per detection.
func (NullEmbedder) EmbedDetections(_ video.Frame, dets []video.Detection) ([][]float32, error) {
	return make([][]float32, len(dets)), nil
}

// HistogramEmbedder is the built-in classical appearance feature: an HSV
// colour histogram over the detection crop, L2 normalised. It is crude next
// to a learned re-identification network but cheap, deterministic, and good
// enough to separate differently dressed players.
type HistogramEmbedder struct {
	// HueBins*SatBins*ValBins is the embedding length. Defaults give 128.
	HueBins int
	SatBins int
	ValBins int
}

// NewHistogramEmbedder returns an embedder with the stock 8x4x4 binning.
func NewHistogramEmbedder() *HistogramEmbedder {
	return &HistogramEmbedder{HueBins: 8, SatBins: 4, ValBins: 4}
}

// Dim returns the embedding length.
func (e *HistogramEmbedder) Dim() int { return e.HueBins * e.SatBins * e.ValBins }

// EmbedDetections computes one histogram per detection crop. Crops are
// subsampled to roughly 32 pixels per axis; a crop that falls entirely
// outside the frame yields a zero vector, which downstream treats as
// carrying no appearance evidence.
func (e *HistogramEmbedder) EmbedDetections(frame video.Frame, dets []video.Detection) ([][]float32, error) {
	out := make([][]float32, len(dets))
	if frame.Image == nil {
		return out, nil
	}
	for i, d := range dets {
		out[i] = e.embedCrop(frame.Image, d.Box())
	}
	return out, nil
}

func (e *HistogramEmbedder) embedCrop(img image.Image, box video.Box) []float32 {
	bounds := img.Bounds()
	x1 := int(box.X1)
	y1 := int(box.Y1)
	x2 := int(box.X2)
	y2 := int(box.Y2)
	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}

	hist := make([]float32, e.Dim())
	if x2 <= x1 || y2 <= y1 {
		return hist
	}

	stepX := (x2 - x1) / 32
	if stepX < 1 {
		stepX = 1
	}
	stepY := (y2 - y1) / 32
	if stepY < 1 {
		stepY = 1
	}

	for y := y1; y < y2; y += stepY {
		for x := x1; x < x2; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			h, s, v := rgbToHSV(float64(r)/65535, float64(g)/65535, float64(b)/65535)
			hi := int(h / 360 * float64(e.HueBins))
			if hi >= e.HueBins {
				hi = e.HueBins - 1
			}
			si := int(s * float64(e.SatBins))
			if si >= e.SatBins {
				si = e.SatBins - 1
			}
			vi := int(v * float64(e.ValBins))
			if vi >= e.ValBins {
				vi = e.ValBins - 1
			}
			hist[(hi*e.SatBins+si)*e.ValBins+vi]++
		}
	}
	Normalize(hist)
	return hist
}

// rgbToHSV converts unit-range RGB to (hue degrees, saturation, value).
func rgbToHSV(r, g, b float64) (float64, float64, float64) {
	maxC := r
	if g > maxC {
		maxC = g
	}
	if b > maxC {
		maxC = b
	}
	minC := r
	if g < minC {
		minC = g
	}
	if b < minC {
		minC = b
	}
	v := maxC
	delta := maxC - minC
	if maxC == 0 || delta == 0 {
		return 0, 0, v
	}
	s := delta / maxC

	var h float64
	switch maxC {
	case r:
		h = (g - b) / delta
	case g:
		h = 2 + (b-r)/delta
	default:
		h = 4 + (r-g)/delta
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}
