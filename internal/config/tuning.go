package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Decoder params
	ScoreThreshold        *float64 `json:"score_threshold,omitempty"`
	IoUThreshold          *float64 `json:"iou_threshold,omitempty"`
	KeypointConfThreshold *float64 `json:"keypoint_confidence_threshold,omitempty"`
	MaxDetections         *int     `json:"max_detections,omitempty"`

	// Association params
	StaleForMatchSeconds   *float64 `json:"track_stale_for_match_seconds,omitempty"`
	TrackExpirySeconds     *float64 `json:"track_expiry_seconds,omitempty"`
	MatchDistanceFloorPx   *float64 `json:"match_distance_floor_px,omitempty"`
	MatchDistanceBoxFactor *float64 `json:"match_distance_box_factor,omitempty"`

	// Sampling and classification params
	SampleIntervalSeconds *float64 `json:"sample_interval_seconds,omitempty"`
	WindowSeconds         *float64 `json:"window_seconds,omitempty"`
	MotionThreshold       *float64 `json:"motion_threshold,omitempty"`

	// Inference params
	ModelInputWidth  *int `json:"model_input_width,omitempty"`
	ModelInputHeight *int `json:"model_input_height,omitempty"`

	// Persistence params
	CountsFlushInterval *string `json:"counts_flush_interval,omitempty"` // duration string like "30s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its production default, for tests and for merging runtime updates.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ScoreThreshold:         ptrFloat64(0.5),
		IoUThreshold:           ptrFloat64(0.45),
		KeypointConfThreshold:  ptrFloat64(0.4),
		MaxDetections:          ptrInt(64),
		StaleForMatchSeconds:   ptrFloat64(1.5),
		TrackExpirySeconds:     ptrFloat64(2.0),
		MatchDistanceFloorPx:   ptrFloat64(80),
		MatchDistanceBoxFactor: ptrFloat64(0.5),
		SampleIntervalSeconds:  ptrFloat64(0.5),
		WindowSeconds:          ptrFloat64(3.0),
		MotionThreshold:        ptrFloat64(0.1),
		ModelInputWidth:        ptrInt(640),
		ModelInputHeight:       ptrInt(640),
		CountsFlushInterval:    ptrString("30s"),
	}
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
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
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/pose/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
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
	// Unit-interval thresholds
	if c.ScoreThreshold != nil {
		if *c.ScoreThreshold < 0 || *c.ScoreThreshold > 1 {
			return fmt.Errorf("score_threshold must be between 0 and 1, got %f", *c.ScoreThreshold)
		}
	}
	if c.IoUThreshold != nil {
		if *c.IoUThreshold < 0 || *c.IoUThreshold > 1 {
			return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", *c.IoUThreshold)
		}
	}
	if c.KeypointConfThreshold != nil {
		if *c.KeypointConfThreshold < 0 || *c.KeypointConfThreshold > 1 {
			return fmt.Errorf("keypoint_confidence_threshold must be between 0 and 1, got %f", *c.KeypointConfThreshold)
		}
	}

	if c.MaxDetections != nil && *c.MaxDetections < 1 {
		return fmt.Errorf("max_detections must be positive, got %d", *c.MaxDetections)
	}

	// Track lifecycle: a track must stay matchable until it expires.
	if c.StaleForMatchSeconds != nil && *c.StaleForMatchSeconds <= 0 {
		return fmt.Errorf("track_stale_for_match_seconds must be positive, got %f", *c.StaleForMatchSeconds)
	}
	if c.TrackExpirySeconds != nil && *c.TrackExpirySeconds <= 0 {
		return fmt.Errorf("track_expiry_seconds must be positive, got %f", *c.TrackExpirySeconds)
	}
	if c.StaleForMatchSeconds != nil && c.TrackExpirySeconds != nil &&
		*c.StaleForMatchSeconds > *c.TrackExpirySeconds {
		return fmt.Errorf("track_stale_for_match_seconds (%f) must not exceed track_expiry_seconds (%f)",
			*c.StaleForMatchSeconds, *c.TrackExpirySeconds)
	}

	if c.MatchDistanceFloorPx != nil && *c.MatchDistanceFloorPx < 0 {
		return fmt.Errorf("match_distance_floor_px must be non-negative, got %f", *c.MatchDistanceFloorPx)
	}
	if c.MatchDistanceBoxFactor != nil && *c.MatchDistanceBoxFactor < 0 {
		return fmt.Errorf("match_distance_box_factor must be non-negative, got %f", *c.MatchDistanceBoxFactor)
	}

	// Sampling: the window must hold at least one interval.
	if c.SampleIntervalSeconds != nil && *c.SampleIntervalSeconds <= 0 {
		return fmt.Errorf("sample_interval_seconds must be positive, got %f", *c.SampleIntervalSeconds)
	}
	if c.WindowSeconds != nil && *c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %f", *c.WindowSeconds)
	}
	if c.SampleIntervalSeconds != nil && c.WindowSeconds != nil &&
		*c.WindowSeconds < *c.SampleIntervalSeconds {
		return fmt.Errorf("window_seconds (%f) must not be smaller than sample_interval_seconds (%f)",
			*c.WindowSeconds, *c.SampleIntervalSeconds)
	}

	if c.MotionThreshold != nil && *c.MotionThreshold < 0 {
		return fmt.Errorf("motion_threshold must be non-negative, got %f", *c.MotionThreshold)
	}

	if c.ModelInputWidth != nil && *c.ModelInputWidth < 1 {
		return fmt.Errorf("model_input_width must be positive, got %d", *c.ModelInputWidth)
	}
	if c.ModelInputHeight != nil && *c.ModelInputHeight < 1 {
		return fmt.Errorf("model_input_height must be positive, got %d", *c.ModelInputHeight)
	}

	// Validate CountsFlushInterval can be parsed if set
	if c.CountsFlushInterval != nil && *c.CountsFlushInterval != "" {
		if _, err := time.ParseDuration(*c.CountsFlushInterval); err != nil {
			return fmt.Errorf("invalid counts_flush_interval '%s': %w", *c.CountsFlushInterval, err)
		}
	}

	return nil
}

// GetScoreThreshold returns the score_threshold value or the default.
func (c *TuningConfig) GetScoreThreshold() float64 {
	if c.ScoreThreshold == nil {
		return 0.5 // default
	}
	return *c.ScoreThreshold
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.45
	}
	return *c.IoUThreshold
}

// GetKeypointConfThreshold returns the keypoint_confidence_threshold value or the default.
func (c *TuningConfig) GetKeypointConfThreshold() float64 {
	if c.KeypointConfThreshold == nil {
		return 0.4
	}
	return *c.KeypointConfThreshold
}

// GetMaxDetections returns the max_detections value or the default.
func (c *TuningConfig) GetMaxDetections() int {
	if c.MaxDetections == nil {
		return 64
	}
	return *c.MaxDetections
}

// GetStaleForMatchSeconds returns the track_stale_for_match_seconds value or the default.
func (c *TuningConfig) GetStaleForMatchSeconds() float64 {
	if c.StaleForMatchSeconds == nil {
		return 1.5
	}
	return *c.StaleForMatchSeconds
}

// GetTrackExpirySeconds returns the track_expiry_seconds value or the default.
func (c *TuningConfig) GetTrackExpirySeconds() float64 {
	if c.TrackExpirySeconds == nil {
		return 2.0
	}
	return *c.TrackExpirySeconds
}

// GetMatchDistanceFloorPx returns the match_distance_floor_px value or the default.
func (c *TuningConfig) GetMatchDistanceFloorPx() float64 {
	if c.MatchDistanceFloorPx == nil {
		return 80
	}
	return *c.MatchDistanceFloorPx
}

// GetMatchDistanceBoxFactor returns the match_distance_box_factor value or the default.
func (c *TuningConfig) GetMatchDistanceBoxFactor() float64 {
	if c.MatchDistanceBoxFactor == nil {
		return 0.5
	}
	return *c.MatchDistanceBoxFactor
}

// GetSampleIntervalSeconds returns the sample_interval_seconds value or the default.
func (c *TuningConfig) GetSampleIntervalSeconds() float64 {
	if c.SampleIntervalSeconds == nil {
		return 0.5
	}
	return *c.SampleIntervalSeconds
}

// GetWindowSeconds returns the window_seconds value or the default.
func (c *TuningConfig) GetWindowSeconds() float64 {
	if c.WindowSeconds == nil {
		return 3.0
	}
	return *c.WindowSeconds
}

// GetMotionThreshold returns the motion_threshold value or the default.
func (c *TuningConfig) GetMotionThreshold() float64 {
	if c.MotionThreshold == nil {
		return 0.1
	}
	return *c.MotionThreshold
}

// GetModelInputWidth returns the model_input_width value or the default.
func (c *TuningConfig) GetModelInputWidth() int {
	if c.ModelInputWidth == nil {
		return 640
	}
	return *c.ModelInputWidth
}

// GetModelInputHeight returns the model_input_height value or the default.
func (c *TuningConfig) GetModelInputHeight() int {
	if c.ModelInputHeight == nil {
		return 640
	}
	return *c.ModelInputHeight
}

// GetCountsFlushInterval parses and returns the CountsFlushInterval as a time.Duration.
func (c *TuningConfig) GetCountsFlushInterval() time.Duration {
	if c.CountsFlushInterval == nil || *c.CountsFlushInterval == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.CountsFlushInterval)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// Merge overlays the non-nil fields of other onto a copy of c, for
// applying partial runtime updates from the API.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	merged := *c
	if other == nil {
		return &merged
	}
	if other.ScoreThreshold != nil {
		merged.ScoreThreshold = other.ScoreThreshold
	}
	if other.IoUThreshold != nil {
		merged.IoUThreshold = other.IoUThreshold
	}
	if other.KeypointConfThreshold != nil {
		merged.KeypointConfThreshold = other.KeypointConfThreshold
	}
	if other.MaxDetections != nil {
		merged.MaxDetections = other.MaxDetections
	}
	if other.StaleForMatchSeconds != nil {
		merged.StaleForMatchSeconds = other.StaleForMatchSeconds
	}
	if other.TrackExpirySeconds != nil {
		merged.TrackExpirySeconds = other.TrackExpirySeconds
	}
	if other.MatchDistanceFloorPx != nil {
		merged.MatchDistanceFloorPx = other.MatchDistanceFloorPx
	}
	if other.MatchDistanceBoxFactor != nil {
		merged.MatchDistanceBoxFactor = other.MatchDistanceBoxFactor
	}
	if other.SampleIntervalSeconds != nil {
		merged.SampleIntervalSeconds = other.SampleIntervalSeconds
	}
	if other.WindowSeconds != nil {
		merged.WindowSeconds = other.WindowSeconds
	}
	if other.MotionThreshold != nil {
		merged.MotionThreshold = other.MotionThreshold
	}
	if other.ModelInputWidth != nil {
		merged.ModelInputWidth = other.ModelInputWidth
	}
	if other.ModelInputHeight != nil {
		merged.ModelInputHeight = other.ModelInputHeight
	}
	if other.CountsFlushInterval != nil {
		merged.CountsFlushInterval = other.CountsFlushInterval
	}
	return &merged
}
