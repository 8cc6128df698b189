// Package capture runs the camera side of the pipeline: the preview-rate
// detect/track/expose loop, the high-speed burst it services on a swing
// trigger, and the orchestrator that turns a validated burst into a stored
// shot.
package capture

import (
	"math"
	"time"
)

// TrajectoryPoint is one tracked ball position inside a burst.
type TrajectoryPoint struct {
	Time       time.Time `json:"time"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Radius     float64   `json:"radius"`
	Confidence float64   `json:"confidence"`
}

// BurstResult is what a capture burst yields. A truncated burst still
// carries the trajectory collected before the lock dropped; partial data
// is returned, never discarded.
type BurstResult struct {
	Trajectory []TrajectoryPoint `json:"trajectory"`
	Truncated  bool              `json:"truncated"`
}

// LaunchAngleDeg derives the launch angle from the first and last
// trajectory samples in pixel space. Positive is upward (image Y grows
// downward). Fewer than two points yield zero.
func (b BurstResult) LaunchAngleDeg() float64 {
	if len(b.Trajectory) < 2 {
		return 0
	}
	first := b.Trajectory[0]
	last := b.Trajectory[len(b.Trajectory)-1]
	dx := last.X - first.X
	dy := first.Y - last.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	return math.Atan2(dy, math.Abs(dx)) * 180 / math.Pi
}

// Shot is one recorded swing: the radar measurements, the burst
// trajectory, and the profile it belongs to.
type Shot struct {
	ID             string            `json:"id"`
	ProfileID      string            `json:"profile_id"`
	Club           string            `json:"club"`
	CapturedAt     time.Time         `json:"captured_at"`
	BallSpeedMph   float64           `json:"ball_speed_mph"`
	LaunchAngleDeg float64           `json:"launch_angle_deg"`
	Direction      string            `json:"direction"`
	MagnitudeDB    int               `json:"magnitude_db"`
	Truncated      bool              `json:"truncated"`
	Trajectory     []TrajectoryPoint `json:"trajectory"`
}

// MissedCapture is the event payload for a trigger that arrived without a
// usable ball lock.
type MissedCapture struct {
	Time       time.Time `json:"time"`
	SpeedMph   float64   `json:"speed_mph"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
}
