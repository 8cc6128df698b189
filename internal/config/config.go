// Package config holds the tunable parameters of the acquisition pipeline.
// Values come from a single JSON file; every field is optional and falls
// back to a documented default through its Get accessor, so partial configs
// are safe. Empirically tuned constants (trigger speed floor, match
// thresholds, brightness targets) live here rather than in code.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file. This is the
// single source of truth for all default tuning values.
const DefaultConfigPath = "config/launchmon.defaults.json"

// Config is the root configuration. The schema matches the /api/config
// endpoint so the same JSON serves startup configuration and runtime
// inspection.
type Config struct {
	// Camera params
	CameraWidth  *int     `json:"camera_width,omitempty"`
	CameraHeight *int     `json:"camera_height,omitempty"`
	PreviewFPS   *float64 `json:"preview_fps,omitempty"`
	BurstFPS     *float64 `json:"burst_fps,omitempty"`
	BurstFrames  *int     `json:"burst_frames,omitempty"`
	DetectEvery  *int     `json:"detect_every,omitempty"`

	// Detector params
	CLAHEClipLimit     *float64  `json:"clahe_clip_limit,omitempty"`
	CLAHETileSize      *int      `json:"clahe_tile_size,omitempty"`
	BrightnessFloor    *float64  `json:"brightness_floor,omitempty"`
	CannyLow           *float64  `json:"canny_low,omitempty"`
	CannyHigh          *float64  `json:"canny_high,omitempty"`
	MorphKernelSize    *int      `json:"morph_kernel_size,omitempty"`
	BlurKernelSize     *int      `json:"blur_kernel_size,omitempty"`
	HoughDP            *float64  `json:"hough_dp,omitempty"`
	HoughMinDist       *float64  `json:"hough_min_dist,omitempty"`
	HoughParam2Ladder  []float64 `json:"hough_param2_ladder,omitempty"`
	BallRadiusMin      *float64  `json:"ball_radius_min,omitempty"`
	BallRadiusMax      *float64  `json:"ball_radius_max,omitempty"`
	DedupeRadius       *float64  `json:"dedupe_radius,omitempty"`
	EdgeMargin         *int      `json:"edge_margin,omitempty"`
	MeanBrightnessMin  *float64  `json:"mean_brightness_min,omitempty"`
	ContrastMin        *float64  `json:"contrast_min,omitempty"`
	MinLockScore       *float64  `json:"min_lock_score,omitempty"`

	// Tracker params
	TemplateSize     *int     `json:"template_size,omitempty"`
	SearchRadius     *int     `json:"search_radius,omitempty"`
	StrongMatchScore *float64 `json:"strong_match_score,omitempty"`
	WeakMatchScore   *float64 `json:"weak_match_score,omitempty"`
	OcclusionBudget  *int     `json:"occlusion_budget,omitempty"`
	ProcessNoisePos  *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel  *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`

	// Radar params
	RadarPollInterval   *string  `json:"radar_poll_interval,omitempty"` // duration string like "50ms"
	RadarSampleRateHz   *float64 `json:"radar_sample_rate_hz,omitempty"`
	HighRangeMultiplier *float64 `json:"high_range_multiplier,omitempty"`
	MinTriggerSpeedMph  *float64 `json:"min_trigger_speed_mph,omitempty"`
	MinMagnitudeDB      *int     `json:"min_magnitude_db,omitempty"`
	DirectionFilter     *string  `json:"direction_filter,omitempty"` // "any", "approaching", "receding"

	// Exposure params
	TargetBrightness  *float64 `json:"target_brightness,omitempty"`
	BrightnessTol     *float64 `json:"brightness_tol,omitempty"`
	BrightnessAlpha   *float64 `json:"brightness_alpha,omitempty"`
	AdjustSpeed       *float64 `json:"adjust_speed,omitempty"`
	MinAdjustInterval *string  `json:"min_adjust_interval,omitempty"` // duration string like "150ms"
	ShutterMinMicros  *float64 `json:"shutter_min_micros,omitempty"`
	ShutterMaxMicros  *float64 `json:"shutter_max_micros,omitempty"`
	GainMin           *float64 `json:"gain_min,omitempty"`
	GainMax           *float64 `json:"gain_max,omitempty"`

	// Capture params
	MinLockConfidence *float64 `json:"min_lock_confidence,omitempty"`
	TriggerQueueSize  *int     `json:"trigger_queue_size,omitempty"`
}

// Direction filter values.
const (
	DirectionAny         = "any"
	DirectionApproaching = "approaching"
	DirectionReceding    = "receding"
)

// Empty returns a Config with all fields set to nil. Use Load to read
// actual values from a file.
func Empty() *Config {
	return &Config{}
}

// Load loads a Config from a JSON file. The file is validated to ensure it
// has a .json extension and is under the max file size. Fields omitted from
// the JSON retain their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches from the current directory up through common parents. Panics
// if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks set fields for out-of-range values. Unset fields are
// always valid because the accessors supply defaults.
func (c *Config) Validate() error {
	for name, v := range map[string]*float64{
		"preview_fps":      c.PreviewFPS,
		"burst_fps":        c.BurstFPS,
		"hough_dp":         c.HoughDP,
		"ball_radius_min":  c.BallRadiusMin,
		"ball_radius_max":  c.BallRadiusMax,
		"shutter_min_micros": c.ShutterMinMicros,
		"shutter_max_micros": c.ShutterMaxMicros,
		"gain_min":         c.GainMin,
		"gain_max":         c.GainMax,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"strong_match_score":  c.StrongMatchScore,
		"weak_match_score":    c.WeakMatchScore,
		"min_lock_score":      c.MinLockScore,
		"min_lock_confidence": c.MinLockConfidence,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.StrongMatchScore != nil && c.WeakMatchScore != nil && *c.WeakMatchScore >= *c.StrongMatchScore {
		return fmt.Errorf("weak_match_score %f must be below strong_match_score %f",
			*c.WeakMatchScore, *c.StrongMatchScore)
	}

	if c.BallRadiusMin != nil && c.BallRadiusMax != nil && *c.BallRadiusMin >= *c.BallRadiusMax {
		return fmt.Errorf("ball_radius_min %f must be below ball_radius_max %f",
			*c.BallRadiusMin, *c.BallRadiusMax)
	}

	if c.ShutterMinMicros != nil && c.ShutterMaxMicros != nil && *c.ShutterMinMicros > *c.ShutterMaxMicros {
		return fmt.Errorf("shutter_min_micros %f must not exceed shutter_max_micros %f",
			*c.ShutterMinMicros, *c.ShutterMaxMicros)
	}

	if c.GainMin != nil && c.GainMax != nil && *c.GainMin > *c.GainMax {
		return fmt.Errorf("gain_min %f must not exceed gain_max %f", *c.GainMin, *c.GainMax)
	}

	if c.BrightnessAlpha != nil && (*c.BrightnessAlpha <= 0 || *c.BrightnessAlpha > 1) {
		return fmt.Errorf("brightness_alpha must be in (0, 1], got %f", *c.BrightnessAlpha)
	}

	if c.TargetBrightness != nil && (*c.TargetBrightness < 0 || *c.TargetBrightness > 255) {
		return fmt.Errorf("target_brightness must be between 0 and 255, got %f", *c.TargetBrightness)
	}

	if c.MinTriggerSpeedMph != nil && *c.MinTriggerSpeedMph < 0 {
		return fmt.Errorf("min_trigger_speed_mph must be non-negative, got %f", *c.MinTriggerSpeedMph)
	}

	if c.OcclusionBudget != nil && *c.OcclusionBudget < 0 {
		return fmt.Errorf("occlusion_budget must be non-negative, got %d", *c.OcclusionBudget)
	}

	if c.DirectionFilter != nil {
		switch *c.DirectionFilter {
		case DirectionAny, DirectionApproaching, DirectionReceding:
		default:
			return fmt.Errorf("direction_filter must be one of any, approaching, receding; got %q", *c.DirectionFilter)
		}
	}

	for name, v := range map[string]*string{
		"radar_poll_interval": c.RadarPollInterval,
		"min_adjust_interval": c.MinAdjustInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if len(c.HoughParam2Ladder) > 0 {
		prev := c.HoughParam2Ladder[0]
		if prev <= 0 {
			return fmt.Errorf("hough_param2_ladder values must be positive, got %f", prev)
		}
		for _, v := range c.HoughParam2Ladder[1:] {
			if v <= 0 {
				return fmt.Errorf("hough_param2_ladder values must be positive, got %f", v)
			}
			if v >= prev {
				return fmt.Errorf("hough_param2_ladder must strictly descend, got %f after %f", v, prev)
			}
			prev = v
		}
	}

	return nil
}

// Camera accessors.

func (c *Config) GetCameraWidth() int {
	if c.CameraWidth == nil {
		return 1280
	}
	return *c.CameraWidth
}

func (c *Config) GetCameraHeight() int {
	if c.CameraHeight == nil {
		return 720
	}
	return *c.CameraHeight
}

func (c *Config) GetPreviewFPS() float64 {
	if c.PreviewFPS == nil {
		return 30
	}
	return *c.PreviewFPS
}

func (c *Config) GetBurstFPS() float64 {
	if c.BurstFPS == nil {
		return 120
	}
	return *c.BurstFPS
}

func (c *Config) GetBurstFrames() int {
	if c.BurstFrames == nil {
		return 24
	}
	return *c.BurstFrames
}

func (c *Config) GetDetectEvery() int {
	if c.DetectEvery == nil || *c.DetectEvery < 1 {
		return 3
	}
	return *c.DetectEvery
}

// Detector accessors.

func (c *Config) GetCLAHEClipLimit() float64 {
	if c.CLAHEClipLimit == nil {
		return 2.0
	}
	return *c.CLAHEClipLimit
}

func (c *Config) GetCLAHETileSize() int {
	if c.CLAHETileSize == nil {
		return 8
	}
	return *c.CLAHETileSize
}

func (c *Config) GetBrightnessFloor() float64 {
	if c.BrightnessFloor == nil {
		return 170
	}
	return *c.BrightnessFloor
}

func (c *Config) GetCannyLow() float64 {
	if c.CannyLow == nil {
		return 50
	}
	return *c.CannyLow
}

func (c *Config) GetCannyHigh() float64 {
	if c.CannyHigh == nil {
		return 150
	}
	return *c.CannyHigh
}

func (c *Config) GetMorphKernelSize() int {
	if c.MorphKernelSize == nil {
		return 3
	}
	return *c.MorphKernelSize
}

func (c *Config) GetBlurKernelSize() int {
	if c.BlurKernelSize == nil {
		return 5
	}
	return *c.BlurKernelSize
}

func (c *Config) GetHoughDP() float64 {
	if c.HoughDP == nil {
		return 1.2
	}
	return *c.HoughDP
}

func (c *Config) GetHoughMinDist() float64 {
	if c.HoughMinDist == nil {
		return 24
	}
	return *c.HoughMinDist
}

// GetHoughParam2Ladder returns the descending accumulator thresholds tried
// in order until one level yields circles.
func (c *Config) GetHoughParam2Ladder() []float64 {
	if len(c.HoughParam2Ladder) == 0 {
		return []float64{110, 85, 60, 40, 28}
	}
	return c.HoughParam2Ladder
}

func (c *Config) GetBallRadiusMin() float64 {
	if c.BallRadiusMin == nil {
		return 6
	}
	return *c.BallRadiusMin
}

func (c *Config) GetBallRadiusMax() float64 {
	if c.BallRadiusMax == nil {
		return 80
	}
	return *c.BallRadiusMax
}

func (c *Config) GetDedupeRadius() float64 {
	if c.DedupeRadius == nil {
		return 10
	}
	return *c.DedupeRadius
}

func (c *Config) GetEdgeMargin() int {
	if c.EdgeMargin == nil {
		return 4
	}
	return *c.EdgeMargin
}

func (c *Config) GetMeanBrightnessMin() float64 {
	if c.MeanBrightnessMin == nil {
		return 110
	}
	return *c.MeanBrightnessMin
}

func (c *Config) GetContrastMin() float64 {
	if c.ContrastMin == nil {
		return 25
	}
	return *c.ContrastMin
}

func (c *Config) GetMinLockScore() float64 {
	if c.MinLockScore == nil {
		return 0.5
	}
	return *c.MinLockScore
}

// Tracker accessors.

func (c *Config) GetTemplateSize() int {
	if c.TemplateSize == nil {
		return 48
	}
	return *c.TemplateSize
}

func (c *Config) GetSearchRadius() int {
	if c.SearchRadius == nil {
		return 64
	}
	return *c.SearchRadius
}

func (c *Config) GetStrongMatchScore() float64 {
	if c.StrongMatchScore == nil {
		return 0.70
	}
	return *c.StrongMatchScore
}

func (c *Config) GetWeakMatchScore() float64 {
	if c.WeakMatchScore == nil {
		return 0.45
	}
	return *c.WeakMatchScore
}

func (c *Config) GetOcclusionBudget() int {
	if c.OcclusionBudget == nil {
		return 5
	}
	return *c.OcclusionBudget
}

func (c *Config) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 1.0
	}
	return *c.ProcessNoisePos
}

func (c *Config) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 10.0
	}
	return *c.ProcessNoiseVel
}

func (c *Config) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 2.0
	}
	return *c.MeasurementNoise
}

// Radar accessors.

// GetRadarPollInterval parses and returns the poll interval as a Duration.
func (c *Config) GetRadarPollInterval() time.Duration {
	if c.RadarPollInterval == nil || *c.RadarPollInterval == "" {
		return 50 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.RadarPollInterval)
	if err != nil {
		return 50 * time.Millisecond
	}
	return d
}

func (c *Config) GetRadarSampleRateHz() float64 {
	if c.RadarSampleRateHz == nil {
		return 2560
	}
	return *c.RadarSampleRateHz
}

// GetHighRangeMultiplier returns the sample rate multiplier applied when the
// sensor reports its high speed range.
func (c *Config) GetHighRangeMultiplier() float64 {
	if c.HighRangeMultiplier == nil {
		return 2.0
	}
	return *c.HighRangeMultiplier
}

func (c *Config) GetMinTriggerSpeedMph() float64 {
	if c.MinTriggerSpeedMph == nil {
		return 15.0
	}
	return *c.MinTriggerSpeedMph
}

// GetMinMagnitudeDB returns the magnitude gate; zero disables it.
func (c *Config) GetMinMagnitudeDB() int {
	if c.MinMagnitudeDB == nil {
		return 0
	}
	return *c.MinMagnitudeDB
}

func (c *Config) GetDirectionFilter() string {
	if c.DirectionFilter == nil || *c.DirectionFilter == "" {
		return DirectionAny
	}
	return *c.DirectionFilter
}

// Exposure accessors.

func (c *Config) GetTargetBrightness() float64 {
	if c.TargetBrightness == nil {
		return 128
	}
	return *c.TargetBrightness
}

func (c *Config) GetBrightnessTol() float64 {
	if c.BrightnessTol == nil {
		return 16
	}
	return *c.BrightnessTol
}

func (c *Config) GetBrightnessAlpha() float64 {
	if c.BrightnessAlpha == nil {
		return 0.25
	}
	return *c.BrightnessAlpha
}

func (c *Config) GetAdjustSpeed() float64 {
	if c.AdjustSpeed == nil {
		return 0.5
	}
	return *c.AdjustSpeed
}

// GetMinAdjustInterval parses and returns the exposure adjustment rate limit.
func (c *Config) GetMinAdjustInterval() time.Duration {
	if c.MinAdjustInterval == nil || *c.MinAdjustInterval == "" {
		return 150 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.MinAdjustInterval)
	if err != nil {
		return 150 * time.Millisecond
	}
	return d
}

func (c *Config) GetShutterMinMicros() float64 {
	if c.ShutterMinMicros == nil {
		return 100
	}
	return *c.ShutterMinMicros
}

// GetShutterMaxMicros returns the shutter ceiling. This bounds motion blur:
// exposure never trades shutter past it no matter how dark the scene is.
func (c *Config) GetShutterMaxMicros() float64 {
	if c.ShutterMaxMicros == nil {
		return 8000
	}
	return *c.ShutterMaxMicros
}

func (c *Config) GetGainMin() float64 {
	if c.GainMin == nil {
		return 1.0
	}
	return *c.GainMin
}

func (c *Config) GetGainMax() float64 {
	if c.GainMax == nil {
		return 16.0
	}
	return *c.GainMax
}

// Capture accessors.

func (c *Config) GetMinLockConfidence() float64 {
	if c.MinLockConfidence == nil {
		return 0.5
	}
	return *c.MinLockConfidence
}

func (c *Config) GetTriggerQueueSize() int {
	if c.TriggerQueueSize == nil || *c.TriggerQueueSize < 1 {
		return 4
	}
	return *c.TriggerQueueSize
}
