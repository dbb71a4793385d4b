package l6replay

import (
	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/video"
)

// AugmentConfig controls how far emitted boxes are widened before
// rendering. The stock ratios keep a standing player's racket reach
// inside the crop.
type AugmentConfig struct {
	WidthRatio  float32
	HeightRatio float32
	FrameWidth  float32
	FrameHeight float32
}

// DefaultAugmentConfig returns the stock widening for 1080p footage.
func DefaultAugmentConfig() AugmentConfig {
	return AugmentConfig{
		WidthRatio:  1.5,
		HeightRatio: 1.2,
		FrameWidth:  1920,
		FrameHeight: 1080,
	}
}

// AugmentConfigFromTuning builds an AugmentConfig from a loaded TuningConfig.
func AugmentConfigFromTuning(cfg *config.TuningConfig) AugmentConfig {
	return AugmentConfig{
		WidthRatio:  float32(cfg.GetAugmentWidthRatio()),
		HeightRatio: float32(cfg.GetAugmentHeightRatio()),
		FrameWidth:  float32(cfg.GetFrameWidth()),
		FrameHeight: float32(cfg.GetFrameHeight()),
	}
}

// AugmentBox widens a box about its centre by the configured ratios and
// clamps the result to the frame bounds. A zero box stays zero so
// placeholder entries survive augmentation unchanged.
func AugmentBox(box video.Box, cfg AugmentConfig) video.Box {
	if box.IsZero() {
		return box
	}
	cx, cy := box.Center()
	w := box.Width() * cfg.WidthRatio
	h := box.Height() * cfg.HeightRatio

	out := video.Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
	if cfg.FrameWidth > 0 && cfg.FrameHeight > 0 {
		out = out.Clamp(cfg.FrameWidth, cfg.FrameHeight)
	}
	return out
}

// AugmentOutputs widens every emitted box in a snapshot.
func AugmentOutputs(outputs []video.TrackOutput, cfg AugmentConfig) []video.TrackOutput {
	if outputs == nil {
		return nil
	}
	out := make([]video.TrackOutput, len(outputs))
	for i, o := range outputs {
		out[i] = video.TrackOutput{Box: AugmentBox(o.Box, cfg), TrackID: o.TrackID}
	}
	return out
}
