package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/replay/tuning endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Detection boundary params
	TargetClass         *int     `json:"target_class,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	MinArea             *float64 `json:"min_area,omitempty"`

	// Tracker params
	MaxAge               *int     `json:"max_age,omitempty"`
	MinHits              *int     `json:"min_hits,omitempty"`
	MotionGateThreshold  *float64 `json:"motion_gate_threshold,omitempty"`
	AppearanceGate       *float64 `json:"appearance_gate_threshold,omitempty"`
	AppearanceMemorySize *int     `json:"appearance_memory_size,omitempty"`
	MaxIoUDistance       *float64 `json:"max_iou_distance,omitempty"`
	StrictTentative      *bool    `json:"strict_tentative,omitempty"`
	MaxTracks            *int     `json:"max_tracks,omitempty"`
	StdWeightPosition    *float64 `json:"std_weight_position,omitempty"`
	StdWeightVelocity    *float64 `json:"std_weight_velocity,omitempty"`

	// Replay output params
	FrameInterval      *int     `json:"frame_interval,omitempty"`
	AugmentWidthRatio  *float64 `json:"augment_width_ratio,omitempty"`
	AugmentHeightRatio *float64 `json:"augment_height_ratio,omitempty"`
	FrameWidth         *float64 `json:"frame_width,omitempty"`
	FrameHeight        *float64 `json:"frame_height,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its stock value. The monitor serves this when no overrides have
// been applied so clients always see the complete schema.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		TargetClass:          ptrInt(0),
		ConfidenceThreshold:  ptrFloat64(0.5),
		MinArea:              ptrFloat64(0),
		MaxAge:               ptrInt(30),
		MinHits:              ptrInt(3),
		MotionGateThreshold:  ptrFloat64(9.4877),
		AppearanceGate:       ptrFloat64(0.2),
		AppearanceMemorySize: ptrInt(100),
		MaxIoUDistance:       ptrFloat64(0.7),
		StrictTentative:      ptrBool(false),
		MaxTracks:            ptrInt(128),
		StdWeightPosition:    ptrFloat64(1.0 / 20),
		StdWeightVelocity:    ptrFloat64(1.0 / 160),
		FrameInterval:        ptrInt(1),
		AugmentWidthRatio:    ptrFloat64(1.5),
		AugmentHeightRatio:   ptrFloat64(1.2),
		FrameWidth:           ptrFloat64(1920),
		FrameHeight:          ptrFloat64(1080),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/video/l5tracks/
		"../../../../" + DefaultConfigPath,    // deeper packages
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}

	if c.MinArea != nil && *c.MinArea < 0 {
		return fmt.Errorf("min_area must be non-negative, got %f", *c.MinArea)
	}

	if c.MaxAge != nil && *c.MaxAge < 1 {
		return fmt.Errorf("max_age must be at least 1, got %d", *c.MaxAge)
	}

	if c.MinHits != nil && *c.MinHits < 1 {
		return fmt.Errorf("min_hits must be at least 1, got %d", *c.MinHits)
	}

	if c.MotionGateThreshold != nil && *c.MotionGateThreshold <= 0 {
		return fmt.Errorf("motion_gate_threshold must be positive, got %f", *c.MotionGateThreshold)
	}

	// Appearance gate is a minimum cosine distance, so it lives in (0, 1].
	if c.AppearanceGate != nil {
		if *c.AppearanceGate <= 0 || *c.AppearanceGate > 1 {
			return fmt.Errorf("appearance_gate_threshold must be in (0, 1], got %f", *c.AppearanceGate)
		}
	}

	if c.AppearanceMemorySize != nil && *c.AppearanceMemorySize < 1 {
		return fmt.Errorf("appearance_memory_size must be at least 1, got %d", *c.AppearanceMemorySize)
	}

	if c.MaxIoUDistance != nil {
		if *c.MaxIoUDistance <= 0 || *c.MaxIoUDistance > 1 {
			return fmt.Errorf("max_iou_distance must be in (0, 1], got %f", *c.MaxIoUDistance)
		}
	}

	if c.MaxTracks != nil && *c.MaxTracks < 1 {
		return fmt.Errorf("max_tracks must be at least 1, got %d", *c.MaxTracks)
	}

	if c.StdWeightPosition != nil && *c.StdWeightPosition <= 0 {
		return fmt.Errorf("std_weight_position must be positive, got %f", *c.StdWeightPosition)
	}

	if c.StdWeightVelocity != nil && *c.StdWeightVelocity <= 0 {
		return fmt.Errorf("std_weight_velocity must be positive, got %f", *c.StdWeightVelocity)
	}

	if c.FrameInterval != nil && *c.FrameInterval < 1 {
		return fmt.Errorf("frame_interval must be at least 1, got %d", *c.FrameInterval)
	}

	if c.AugmentWidthRatio != nil && *c.AugmentWidthRatio <= 0 {
		return fmt.Errorf("augment_width_ratio must be positive, got %f", *c.AugmentWidthRatio)
	}

	if c.AugmentHeightRatio != nil && *c.AugmentHeightRatio <= 0 {
		return fmt.Errorf("augment_height_ratio must be positive, got %f", *c.AugmentHeightRatio)
	}

	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %f", *c.FrameWidth)
	}

	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %f", *c.FrameHeight)
	}

	return nil
}

// GetTargetClass returns the target_class value or the default.
func (c *TuningConfig) GetTargetClass() int {
	if c.TargetClass == nil {
		return 0 // default: person class
	}
	return *c.TargetClass
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.5 // default
	}
	return *c.ConfidenceThreshold
}

// GetMinArea returns the min_area value or the default.
func (c *TuningConfig) GetMinArea() float64 {
	if c.MinArea == nil {
		return 0 // default: area gate disabled
	}
	return *c.MinArea
}

// GetMaxAge returns the max_age value or the default.
func (c *TuningConfig) GetMaxAge() int {
	if c.MaxAge == nil {
		return 30
	}
	return *c.MaxAge
}

// GetMinHits returns the min_hits value or the default.
func (c *TuningConfig) GetMinHits() int {
	if c.MinHits == nil {
		return 3
	}
	return *c.MinHits
}

// GetMotionGateThreshold returns the motion_gate_threshold value or the default.
func (c *TuningConfig) GetMotionGateThreshold() float64 {
	if c.MotionGateThreshold == nil {
		return 9.4877 // chi-squared 95th percentile, 4 degrees of freedom
	}
	return *c.MotionGateThreshold
}

// GetAppearanceGate returns the appearance_gate_threshold value or the default.
func (c *TuningConfig) GetAppearanceGate() float64 {
	if c.AppearanceGate == nil {
		return 0.2
	}
	return *c.AppearanceGate
}

// GetAppearanceMemorySize returns the appearance_memory_size value or the default.
func (c *TuningConfig) GetAppearanceMemorySize() int {
	if c.AppearanceMemorySize == nil {
		return 100
	}
	return *c.AppearanceMemorySize
}

// GetMaxIoUDistance returns the max_iou_distance value or the default.
func (c *TuningConfig) GetMaxIoUDistance() float64 {
	if c.MaxIoUDistance == nil {
		return 0.7
	}
	return *c.MaxIoUDistance
}

// GetStrictTentative returns the strict_tentative value or the default.
func (c *TuningConfig) GetStrictTentative() bool {
	if c.StrictTentative == nil {
		return false // default: one missed frame does not kill a tentative track
	}
	return *c.StrictTentative
}

// GetMaxTracks returns the max_tracks value or the default.
func (c *TuningConfig) GetMaxTracks() int {
	if c.MaxTracks == nil {
		return 128
	}
	return *c.MaxTracks
}

// GetStdWeightPosition returns the std_weight_position value or the default.
func (c *TuningConfig) GetStdWeightPosition() float64 {
	if c.StdWeightPosition == nil {
		return 1.0 / 20
	}
	return *c.StdWeightPosition
}

// GetStdWeightVelocity returns the std_weight_velocity value or the default.
func (c *TuningConfig) GetStdWeightVelocity() float64 {
	if c.StdWeightVelocity == nil {
		return 1.0 / 160
	}
	return *c.StdWeightVelocity
}

// GetFrameInterval returns the frame_interval value or the default.
func (c *TuningConfig) GetFrameInterval() int {
	if c.FrameInterval == nil {
		return 1 // default: process every frame
	}
	return *c.FrameInterval
}

// GetAugmentWidthRatio returns the augment_width_ratio value or the default.
func (c *TuningConfig) GetAugmentWidthRatio() float64 {
	if c.AugmentWidthRatio == nil {
		return 1.5
	}
	return *c.AugmentWidthRatio
}

// GetAugmentHeightRatio returns the augment_height_ratio value or the default.
func (c *TuningConfig) GetAugmentHeightRatio() float64 {
	if c.AugmentHeightRatio == nil {
		return 1.2
	}
	return *c.AugmentHeightRatio
}

// GetFrameWidth returns the frame_width value or the default.
func (c *TuningConfig) GetFrameWidth() float64 {
	if c.FrameWidth == nil {
		return 1920
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *TuningConfig) GetFrameHeight() float64 {
	if c.FrameHeight == nil {
		return 1080
	}
	return *c.FrameHeight
}
