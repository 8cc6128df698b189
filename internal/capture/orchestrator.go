package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/monitoring"
	"github.com/fairway-data/launch.report/internal/radar"
	"github.com/fairway-data/launch.report/internal/vision"
)

// Burster runs a capture burst. Implemented by Loop.
type Burster interface {
	RequestBurst(ctx context.Context, frames int) (BurstResult, error)
}

// ShotSink persists completed shots. Implemented by the store.
type ShotSink interface {
	AppendShot(ctx context.Context, shot Shot) error
}

// ProfileResolver names the profile and club a shot should record under.
// Implemented over the settings store; the zero-value resolver is allowed
// and records unattributed shots.
type ProfileResolver interface {
	ActiveProfile(ctx context.Context) (profileID, club string)
}

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	Triggers <-chan radar.SwingEvent
	Holder   *vision.SnapshotHolder
	Burster  Burster
	Sink     ShotSink
	Profile  ProfileResolver
	Bus      *events.Bus

	// BurstFrames is the fixed burst length.
	BurstFrames int
	// MinLockConfidence gates bursts: a trigger that arrives while the
	// tracker is unlocked or below this confidence is a missed capture,
	// because burning the high-speed frame budget without a validated
	// ball position yields nothing.
	MinLockConfidence float64
}

// Orchestrator connects swing triggers to capture bursts.
type Orchestrator struct {
	opts OrchestratorOptions

	// missed is read by the status endpoint while the run loop counts.
	missed atomic.Int64
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.BurstFrames < 1 {
		opts.BurstFrames = 16
	}
	return &Orchestrator{opts: opts}
}

// MissedCount returns how many triggers arrived without a usable lock.
func (o *Orchestrator) MissedCount() int {
	return int(o.missed.Load())
}

// Run consumes swing events until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.opts.Triggers:
			if !ok {
				return nil
			}
			o.handle(ctx, ev)
		}
	}
}

// handle services one swing trigger.
func (o *Orchestrator) handle(ctx context.Context, ev radar.SwingEvent) {
	snap := o.opts.Holder.Load()
	if snap.State != vision.StateLocked || snap.Confidence < o.opts.MinLockConfidence {
		o.missed.Add(1)
		reason := "no ball locked"
		if snap.State == vision.StateLocked {
			reason = "lock confidence too low"
		}
		monitoring.Logf("capture: missed swing at %.1f mph: %s (confidence %.2f)",
			ev.SpeedMph, reason, snap.Confidence)
		o.emit(events.KindCaptureMissed, MissedCapture{
			Time:       ev.Time,
			SpeedMph:   ev.SpeedMph,
			Reason:     reason,
			Confidence: snap.Confidence,
		})
		return
	}

	result, err := o.opts.Burster.RequestBurst(ctx, o.opts.BurstFrames)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		monitoring.Logf("capture: burst failed: %v", err)
		o.emit(events.KindCaptureMissed, MissedCapture{
			Time:     ev.Time,
			SpeedMph: ev.SpeedMph,
			Reason:   "burst failed: " + err.Error(),
		})
		return
	}

	shot := o.assemble(ctx, ev, result)
	if o.opts.Sink != nil {
		if err := o.opts.Sink.AppendShot(ctx, shot); err != nil {
			monitoring.Logf("capture: failed to store shot %s: %v", shot.ID, err)
		}
	}
	monitoring.Logf("capture: shot %s recorded: %.1f mph, launch %.1f°, %d trajectory points (truncated=%v)",
		shot.ID, shot.BallSpeedMph, shot.LaunchAngleDeg, len(shot.Trajectory), shot.Truncated)
	o.emit(events.KindCaptureComplete, shot)
}

// assemble builds the Shot record for a completed burst.
func (o *Orchestrator) assemble(ctx context.Context, ev radar.SwingEvent, result BurstResult) Shot {
	var profileID, club string
	if o.opts.Profile != nil {
		profileID, club = o.opts.Profile.ActiveProfile(ctx)
	}
	capturedAt := ev.Time
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	return Shot{
		ID:             uuid.NewString(),
		ProfileID:      profileID,
		Club:           club,
		CapturedAt:     capturedAt,
		BallSpeedMph:   ev.SpeedMph,
		LaunchAngleDeg: result.LaunchAngleDeg(),
		Direction:      string(ev.Direction),
		MagnitudeDB:    ev.MagnitudeDB,
		Truncated:      result.Truncated,
		Trajectory:     result.Trajectory,
	}
}

func (o *Orchestrator) emit(kind events.Kind, payload interface{}) {
	if o.opts.Bus != nil {
		o.opts.Bus.Emit(kind, payload)
	}
}
