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
// The schema matches the /api/params endpoint so the same JSON can be used
// for both startup configuration and runtime updates. Every tolerance that
// the pipeline consults lives here; no stage hardcodes its own buffer.
type TuningConfig struct {
	// Scoring buffers (fraction of a criterion's declared range)
	ScoreBufferPercent        *float64 `json:"score_buffer_percent,omitempty"`
	ScoreBufferPercentLenient *float64 `json:"score_buffer_percent_lenient,omitempty"` // knee metrics

	// Feedback buffers are wider than the scoring buffers so corrections
	// fire less eagerly than pass/fail scoring.
	FeedbackBufferPercent        *float64 `json:"feedback_buffer_percent,omitempty"`
	FeedbackBufferPercentLenient *float64 `json:"feedback_buffer_percent_lenient,omitempty"`

	// Gate params
	VisibilityThreshold *float64 `json:"visibility_threshold,omitempty"`
	DistanceBuffer      *float64 `json:"distance_buffer,omitempty"` // z tolerance on each side of the ideal range

	// Smoothing / debounce params
	SmoothingWindow       *int `json:"smoothing_window,omitempty"`
	StableFramesRequired  *int `json:"stable_frames_required,omitempty"`
	ConfirmFramesRequired *int `json:"confirm_frames_required,omitempty"`

	// Scoring thresholds
	PassingScoreFraction  *float64 `json:"passing_score_fraction,omitempty"`
	BackFlatPenaltyFactor *float64 `json:"back_flat_penalty_factor,omitempty"`

	// Throttle / timing params (duration strings like "3s")
	FeedbackCooldown          *string `json:"feedback_cooldown,omitempty"`
	VisibilityWarningCooldown *string `json:"visibility_warning_cooldown,omitempty"`
	GracePeriod               *string `json:"grace_period,omitempty"`

	// Ingestion params
	MaxFrameRate *float64 `json:"max_frame_rate,omitempty"` // 0 = process every frame

	// Speech params
	SpeechRate   *float64 `json:"speech_rate,omitempty"`
	SpeechVolume *float64 `json:"speech_volume,omitempty"`
	DuckedVolume *float64 `json:"ducked_volume,omitempty"` // video volume while speaking
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file is
// validated to ensure it has a .json extension and is under the max file
// size. Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/pose/metrics/
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
	for name, v := range map[string]*float64{
		"score_buffer_percent":            c.ScoreBufferPercent,
		"score_buffer_percent_lenient":    c.ScoreBufferPercentLenient,
		"feedback_buffer_percent":         c.FeedbackBufferPercent,
		"feedback_buffer_percent_lenient": c.FeedbackBufferPercentLenient,
		"visibility_threshold":            c.VisibilityThreshold,
		"passing_score_fraction":          c.PassingScoreFraction,
		"back_flat_penalty_factor":        c.BackFlatPenaltyFactor,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.DistanceBuffer != nil && *c.DistanceBuffer < 0 {
		return fmt.Errorf("distance_buffer must be non-negative, got %f", *c.DistanceBuffer)
	}
	if c.SmoothingWindow != nil && *c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be at least 1, got %d", *c.SmoothingWindow)
	}
	if c.StableFramesRequired != nil && *c.StableFramesRequired < 1 {
		return fmt.Errorf("stable_frames_required must be at least 1, got %d", *c.StableFramesRequired)
	}
	if c.ConfirmFramesRequired != nil && *c.ConfirmFramesRequired < 1 {
		return fmt.Errorf("confirm_frames_required must be at least 1, got %d", *c.ConfirmFramesRequired)
	}
	if c.MaxFrameRate != nil && *c.MaxFrameRate < 0 {
		return fmt.Errorf("max_frame_rate must be non-negative, got %f", *c.MaxFrameRate)
	}

	for name, v := range map[string]*string{
		"feedback_cooldown":           c.FeedbackCooldown,
		"visibility_warning_cooldown": c.VisibilityWarningCooldown,
		"grace_period":                c.GracePeriod,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	return nil
}

// GetScoreBufferPercent returns the score_buffer_percent value or the default.
func (c *TuningConfig) GetScoreBufferPercent() float64 {
	if c.ScoreBufferPercent == nil {
		return 0.10
	}
	return *c.ScoreBufferPercent
}

// GetScoreBufferPercentLenient returns the score_buffer_percent_lenient value
// or the default. Applied to knee metrics, the least reliably measured joint
// under typical camera angles.
func (c *TuningConfig) GetScoreBufferPercentLenient() float64 {
	if c.ScoreBufferPercentLenient == nil {
		return 0.15
	}
	return *c.ScoreBufferPercentLenient
}

// GetFeedbackBufferPercent returns the feedback_buffer_percent value or the default.
func (c *TuningConfig) GetFeedbackBufferPercent() float64 {
	if c.FeedbackBufferPercent == nil {
		return 0.15
	}
	return *c.FeedbackBufferPercent
}

// GetFeedbackBufferPercentLenient returns the feedback_buffer_percent_lenient
// value or the default.
func (c *TuningConfig) GetFeedbackBufferPercentLenient() float64 {
	if c.FeedbackBufferPercentLenient == nil {
		return 0.20
	}
	return *c.FeedbackBufferPercentLenient
}

// GetVisibilityThreshold returns the visibility_threshold value or the default.
func (c *TuningConfig) GetVisibilityThreshold() float64 {
	if c.VisibilityThreshold == nil {
		return 0.5
	}
	return *c.VisibilityThreshold
}

// GetDistanceBuffer returns the distance_buffer value or the default.
func (c *TuningConfig) GetDistanceBuffer() float64 {
	if c.DistanceBuffer == nil {
		return 0.02
	}
	return *c.DistanceBuffer
}

// GetSmoothingWindow returns the smoothing_window value or the default.
func (c *TuningConfig) GetSmoothingWindow() int {
	if c.SmoothingWindow == nil {
		return 5
	}
	return *c.SmoothingWindow
}

// GetStableFramesRequired returns the stable_frames_required value or the default.
func (c *TuningConfig) GetStableFramesRequired() int {
	if c.StableFramesRequired == nil {
		return 10
	}
	return *c.StableFramesRequired
}

// GetConfirmFramesRequired returns the confirm_frames_required value or the default.
func (c *TuningConfig) GetConfirmFramesRequired() int {
	if c.ConfirmFramesRequired == nil {
		return 30
	}
	return *c.ConfirmFramesRequired
}

// GetPassingScoreFraction returns the passing_score_fraction value or the default.
func (c *TuningConfig) GetPassingScoreFraction() float64 {
	if c.PassingScoreFraction == nil {
		return 0.4
	}
	return *c.PassingScoreFraction
}

// GetBackFlatPenaltyFactor returns the back_flat_penalty_factor value or the default.
func (c *TuningConfig) GetBackFlatPenaltyFactor() float64 {
	if c.BackFlatPenaltyFactor == nil {
		return 0.7
	}
	return *c.BackFlatPenaltyFactor
}

// GetFeedbackCooldown parses and returns the FeedbackCooldown as a time.Duration.
func (c *TuningConfig) GetFeedbackCooldown() time.Duration {
	if c.FeedbackCooldown == nil || *c.FeedbackCooldown == "" {
		return 3 * time.Second
	}
	d, err := time.ParseDuration(*c.FeedbackCooldown)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// GetVisibilityWarningCooldown parses and returns the VisibilityWarningCooldown
// as a time.Duration.
func (c *TuningConfig) GetVisibilityWarningCooldown() time.Duration {
	if c.VisibilityWarningCooldown == nil || *c.VisibilityWarningCooldown == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(*c.VisibilityWarningCooldown)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetGracePeriod parses and returns the GracePeriod as a time.Duration.
func (c *TuningConfig) GetGracePeriod() time.Duration {
	if c.GracePeriod == nil || *c.GracePeriod == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.GracePeriod)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetMaxFrameRate returns the max_frame_rate value or the default.
func (c *TuningConfig) GetMaxFrameRate() float64 {
	if c.MaxFrameRate == nil {
		return 0 // no limit
	}
	return *c.MaxFrameRate
}

// GetSpeechRate returns the speech_rate value or the default.
func (c *TuningConfig) GetSpeechRate() float64 {
	if c.SpeechRate == nil {
		return 1.0
	}
	return *c.SpeechRate
}

// GetSpeechVolume returns the speech_volume value or the default.
func (c *TuningConfig) GetSpeechVolume() float64 {
	if c.SpeechVolume == nil {
		return 1.0
	}
	return *c.SpeechVolume
}

// GetDuckedVolume returns the ducked_volume value or the default.
func (c *TuningConfig) GetDuckedVolume() float64 {
	if c.DuckedVolume == nil {
		return 0.2
	}
	return *c.DuckedVolume
}
