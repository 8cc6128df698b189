// Package camera provides the frame sources the acquisition pipeline
// consumes: a gocv-backed webcam for hardware and a synthetic renderer for
// dev mode and tests. Exactly one goroutine may use a FrameSource at a
// time; the camera loop owns it.
package camera

import (
	"context"
	"fmt"

	"github.com/fairway-data/launch.report/internal/vision"
)

// StreamConfig is the capture configuration the pipeline asks for. The
// preview stream and the burst stream are two StreamConfigs over the same
// source.
type StreamConfig struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	FPS           float64 `json:"fps"`
	ShutterMicros float64 `json:"shutter_micros"`
	Gain          float64 `json:"gain"`
}

// Validate rejects configurations no source could honor.
func (c StreamConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %f", c.FPS)
	}
	return nil
}

// FrameSource supplies timestamped frames. Configure may be called between
// Start/Stop cycles and, for sources that support it, while running (the
// burst path reconfigures rate without stopping). Capture blocks until the
// next frame is ready or the context ends. The returned Frame is owned by
// the caller.
type FrameSource interface {
	Configure(StreamConfig) error
	Start() error
	Stop() error
	Capture(ctx context.Context) (*vision.Frame, error)
}

// ExposureApplier adapts a FrameSource's shutter/gain knobs for the
// exposure controller without exposing the rest of the contract.
type ExposureApplier struct {
	src     FrameSource
	current StreamConfig
}

// NewExposureApplier wraps a source whose current config is known.
func NewExposureApplier(src FrameSource, current StreamConfig) *ExposureApplier {
	return &ExposureApplier{src: src, current: current}
}

// ApplyExposure rewrites only the shutter and gain of the current stream.
func (a *ExposureApplier) ApplyExposure(shutterMicros, gain float64) error {
	cfg := a.current
	cfg.ShutterMicros = shutterMicros
	cfg.Gain = gain
	if err := a.src.Configure(cfg); err != nil {
		return err
	}
	a.current = cfg
	return nil
}
