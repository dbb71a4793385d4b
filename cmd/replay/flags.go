package main

import (
	"flag"

	"github.com/courtside-data/replay.vision/internal/config"
)

// Tuning overrides. Every key in the JSON tuning surface is also a flag, but
// only flags the operator actually set override the loaded config; file
// values and built-in defaults stay authoritative for the rest.
var (
	flagTargetClass     = flag.Int("target-class", 0, "Detection class retained by the boundary filter")
	flagConfidence      = flag.Float64("confidence", 0.5, "Minimum detection confidence")
	flagMinArea         = flag.Float64("min-area", 0, "Minimum detection box area in square pixels")
	flagMaxAge          = flag.Int("max-age", 30, "Frames a confirmed track survives unmatched")
	flagMinHits         = flag.Int("min-hits", 3, "Consecutive matches required to confirm a track")
	flagMotionGate      = flag.Float64("motion-gate", 9.4877, "Squared-Mahalanobis motion gate threshold")
	flagAppearanceGate  = flag.Float64("appearance-gate", 0.2, "Cosine-distance appearance gate threshold")
	flagAppearanceMem   = flag.Int("appearance-memory", 100, "Appearance embeddings retained per track")
	flagMaxIoUDistance  = flag.Float64("max-iou-distance", 0.7, "Overlap-stage gate (1 - IoU)")
	flagStrictTentative = flag.Bool("strict-tentative", false, "Delete tentative tracks on their first miss")
	flagMaxTracks       = flag.Int("max-tracks", 128, "Cap on concurrent live tracks")
	flagFrameInterval   = flag.Int("frame-interval", 1, "Process every Nth frame, republish snapshots between")
	flagAugmentWidth    = flag.Float64("augment-width", 1.5, "Timeline box width widening ratio")
	flagAugmentHeight   = flag.Float64("augment-height", 1.2, "Timeline box height widening ratio")
)

// applyTuningFlag copies one explicitly set tuning flag into the config.
// Names that are not tuning flags are ignored.
func applyTuningFlag(cfg *config.TuningConfig, name string) {
	switch name {
	case "target-class":
		v := *flagTargetClass
		cfg.TargetClass = &v
	case "confidence":
		v := *flagConfidence
		cfg.ConfidenceThreshold = &v
	case "min-area":
		v := *flagMinArea
		cfg.MinArea = &v
	case "max-age":
		v := *flagMaxAge
		cfg.MaxAge = &v
	case "min-hits":
		v := *flagMinHits
		cfg.MinHits = &v
	case "motion-gate":
		v := *flagMotionGate
		cfg.MotionGateThreshold = &v
	case "appearance-gate":
		v := *flagAppearanceGate
		cfg.AppearanceGate = &v
	case "appearance-memory":
		v := *flagAppearanceMem
		cfg.AppearanceMemorySize = &v
	case "max-iou-distance":
		v := *flagMaxIoUDistance
		cfg.MaxIoUDistance = &v
	case "strict-tentative":
		v := *flagStrictTentative
		cfg.StrictTentative = &v
	case "max-tracks":
		v := *flagMaxTracks
		cfg.MaxTracks = &v
	case "frame-interval":
		v := *flagFrameInterval
		cfg.FrameInterval = &v
	case "augment-width":
		v := *flagAugmentWidth
		cfg.AugmentWidthRatio = &v
	case "augment-height":
		v := *flagAugmentHeight
		cfg.AugmentHeightRatio = &v
	}
}

// applyTuningFlags overrides cfg with every tuning flag the command line
// actually set. flag.Visit only walks set flags, so defaults never clobber
// values loaded from a config file.
func applyTuningFlags(cfg *config.TuningConfig) {
	flag.Visit(func(f *flag.Flag) {
		applyTuningFlag(cfg, f.Name)
	})
}
