// Package exposure keeps the ball inside a target brightness band by
// steering camera gain and shutter. Gain moves first in both directions so
// shutter (and with it motion blur) only changes once gain has nothing
// left to give.
package exposure

import (
	"sync"
	"time"
)

// Setting is a shutter/gain pair. Values are always inside the configured
// box no matter how far out of band the input brightness is.
type Setting struct {
	ShutterMicros float64 `json:"shutter_micros"`
	Gain          float64 `json:"gain"`
}

// Applier is the slice of the camera the controller writes to.
type Applier interface {
	ApplyExposure(shutterMicros, gain float64) error
}

// Params holds the controller's tuning.
type Params struct {
	// TargetBrightness and Tolerance define the acceptable band.
	TargetBrightness float64
	Tolerance        float64
	// Alpha is the EWMA smoothing factor for brightness samples, in (0,1].
	Alpha float64
	// AdjustSpeed moderates how aggressively an out-of-band reading moves
	// the outputs. 1.0 corrects the full error in one step.
	AdjustSpeed float64
	// MinAdjustInterval rate-limits hardware writes to stop oscillation.
	MinAdjustInterval time.Duration

	ShutterMinMicros float64
	// ShutterMaxMicros is the motion-blur-safe ceiling. The controller
	// never exceeds it regardless of how dark the scene gets.
	ShutterMaxMicros float64
	GainMin          float64
	GainMax          float64
}

// DefaultParams returns the tuning the defaults file ships with.
func DefaultParams() Params {
	return Params{
		TargetBrightness:  170,
		Tolerance:         20,
		Alpha:             0.3,
		AdjustSpeed:       0.5,
		MinAdjustInterval: 150 * time.Millisecond,
		ShutterMinMicros:  50,
		ShutterMaxMicros:  2000,
		GainMin:           1.0,
		GainMax:           16.0,
	}
}

// Controller is the closed-loop exposure regulator. The camera loop
// goroutine drives Update; Current and Smoothed may be read from other
// goroutines (the status endpoint reports both), so all three lock.
type Controller struct {
	mu      sync.Mutex
	params  Params
	current Setting

	smoothed   float64
	haveSample bool
	lastAdjust time.Time
	haveAdjust bool
}

// NewController creates a Controller starting from the given setting,
// clamped into the configured box.
func NewController(params Params, initial Setting) *Controller {
	c := &Controller{params: params}
	c.current = c.clamp(initial)
	return c
}

// Current returns the last computed setting.
func (c *Controller) Current() Setting {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Smoothed returns the smoothed brightness estimate.
func (c *Controller) Smoothed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.smoothed
}

// Update feeds one brightness sample. The returned bool is true only when
// the setting changed and the caller should write it to the camera;
// repeated identical settings never produce a hardware write.
func (c *Controller) Update(brightness float64, now time.Time) (Setting, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveSample {
		c.smoothed += c.params.Alpha * (brightness - c.smoothed)
	} else {
		c.smoothed = brightness
		c.haveSample = true
	}

	low := c.params.TargetBrightness - c.params.Tolerance
	high := c.params.TargetBrightness + c.params.Tolerance
	if c.smoothed >= low && c.smoothed <= high {
		return c.current, false
	}

	if c.haveAdjust && now.Sub(c.lastAdjust) < c.params.MinAdjustInterval {
		return c.current, false
	}

	// Error as a fraction of the target, moderated by the adjust speed.
	errFrac := (c.params.TargetBrightness - c.smoothed) / c.params.TargetBrightness
	step := errFrac * c.params.AdjustSpeed

	next := c.current
	if step > 0 {
		// Too dark. Gain first: raising shutter lengthens motion blur.
		next.Gain = next.Gain * (1 + step)
		if next.Gain >= c.params.GainMax {
			next.Gain = c.params.GainMax
			next.ShutterMicros = next.ShutterMicros * (1 + step)
		}
	} else {
		// Too bright. Unwind gain before shortening shutter.
		next.Gain = next.Gain * (1 + step)
		if next.Gain <= c.params.GainMin {
			next.Gain = c.params.GainMin
			next.ShutterMicros = next.ShutterMicros * (1 + step)
		}
	}

	next = c.clamp(next)
	if next == c.current {
		return c.current, false
	}

	c.current = next
	c.lastAdjust = now
	c.haveAdjust = true
	return c.current, true
}

// clamp forces a setting into the configured box.
func (c *Controller) clamp(s Setting) Setting {
	if s.ShutterMicros < c.params.ShutterMinMicros {
		s.ShutterMicros = c.params.ShutterMinMicros
	}
	if s.ShutterMicros > c.params.ShutterMaxMicros {
		s.ShutterMicros = c.params.ShutterMaxMicros
	}
	if s.Gain < c.params.GainMin {
		s.Gain = c.params.GainMin
	}
	if s.Gain > c.params.GainMax {
		s.Gain = c.params.GainMax
	}
	return s
}
