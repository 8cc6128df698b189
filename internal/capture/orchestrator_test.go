package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/radar"
	"github.com/fairway-data/launch.report/internal/vision"
)

type fakeBurster struct {
	result BurstResult
	err    error
	calls  int
}

func (f *fakeBurster) RequestBurst(ctx context.Context, frames int) (BurstResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeSink struct {
	shots []Shot
	err   error
}

func (f *fakeSink) AppendShot(ctx context.Context, shot Shot) error {
	if f.err != nil {
		return f.err
	}
	f.shots = append(f.shots, shot)
	return nil
}

type fakeProfile struct{ id, club string }

func (f fakeProfile) ActiveProfile(ctx context.Context) (string, string) { return f.id, f.club }

func lockedHolder(confidence float64) *vision.SnapshotHolder {
	h := vision.NewSnapshotHolder()
	h.Store(vision.TrackSnapshot{
		State: vision.StateLocked, X: 320, Y: 384, Radius: 26, Confidence: confidence,
	})
	return h
}

func swing(speed float64) radar.SwingEvent {
	return radar.SwingEvent{
		Time:        time.Unix(1700000000, 0),
		SpeedMph:    speed,
		MagnitudeDB: 70,
		Direction:   radar.DirectionApproaching,
	}
}

// drain collects currently buffered bus events of one kind.
func drain(ch <-chan events.Event, kind events.Kind) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func TestTriggerWithoutLockIsMissedCapture(t *testing.T) {
	bus := events.NewBus(16)
	_, ch := bus.Subscribe()
	burst := &fakeBurster{}

	o := NewOrchestrator(OrchestratorOptions{
		Holder:            vision.NewSnapshotHolder(), // unlocked
		Burster:           burst,
		Bus:               bus,
		MinLockConfidence: 0.5,
	})

	o.handle(context.Background(), swing(20.8))

	assert.Equal(t, 0, burst.calls, "no burst without a validated lock")
	assert.Equal(t, 1, o.MissedCount())

	missed := drain(ch, events.KindCaptureMissed)
	require.Len(t, missed, 1)
	payload := missed[0].Payload.(MissedCapture)
	assert.Equal(t, "no ball locked", payload.Reason)
	assert.InDelta(t, 20.8, payload.SpeedMph, 0.01)
}

func TestTriggerWithWeakConfidenceIsMissedCapture(t *testing.T) {
	bus := events.NewBus(16)
	_, ch := bus.Subscribe()
	burst := &fakeBurster{}

	o := NewOrchestrator(OrchestratorOptions{
		Holder:            lockedHolder(0.2),
		Burster:           burst,
		Bus:               bus,
		MinLockConfidence: 0.5,
	})

	o.handle(context.Background(), swing(30))

	assert.Equal(t, 0, burst.calls)
	missed := drain(ch, events.KindCaptureMissed)
	require.Len(t, missed, 1)
	assert.Equal(t, "lock confidence too low", missed[0].Payload.(MissedCapture).Reason)
}

func TestTriggerWithLockRecordsShot(t *testing.T) {
	bus := events.NewBus(16)
	_, ch := bus.Subscribe()
	traj := []TrajectoryPoint{
		{X: 320, Y: 384, Radius: 26, Confidence: 0.95},
		{X: 360, Y: 364, Radius: 25, Confidence: 0.9},
		{X: 400, Y: 344, Radius: 24, Confidence: 0.85},
	}
	burst := &fakeBurster{result: BurstResult{Trajectory: traj}}
	sink := &fakeSink{}

	o := NewOrchestrator(OrchestratorOptions{
		Holder:            lockedHolder(0.95),
		Burster:           burst,
		Sink:              sink,
		Profile:           fakeProfile{id: "p-1", club: "driver"},
		Bus:               bus,
		BurstFrames:       8,
		MinLockConfidence: 0.5,
	})

	o.handle(context.Background(), swing(98.5))

	assert.Equal(t, 1, burst.calls)
	require.Len(t, sink.shots, 1)

	shot := sink.shots[0]
	assert.NotEmpty(t, shot.ID)
	assert.Equal(t, "p-1", shot.ProfileID)
	assert.Equal(t, "driver", shot.Club)
	assert.InDelta(t, 98.5, shot.BallSpeedMph, 0.01)
	assert.Equal(t, "approaching", shot.Direction)
	assert.Equal(t, 70, shot.MagnitudeDB)
	assert.False(t, shot.Truncated)
	assert.Len(t, shot.Trajectory, 3)
	assert.Greater(t, shot.LaunchAngleDeg, 0.0, "rising trajectory has positive launch angle")

	complete := drain(ch, events.KindCaptureComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, shot.ID, complete[0].Payload.(Shot).ID)
	assert.Equal(t, 0, o.MissedCount())
}

func TestTruncatedBurstStillRecords(t *testing.T) {
	burst := &fakeBurster{result: BurstResult{
		Trajectory: []TrajectoryPoint{{X: 320, Y: 384}, {X: 340, Y: 374}},
		Truncated:  true,
	}}
	sink := &fakeSink{}

	o := NewOrchestrator(OrchestratorOptions{
		Holder:            lockedHolder(0.9),
		Burster:           burst,
		Sink:              sink,
		MinLockConfidence: 0.5,
	})

	o.handle(context.Background(), swing(80))

	require.Len(t, sink.shots, 1)
	assert.True(t, sink.shots[0].Truncated, "partial trajectory is kept, flagged truncated")
	assert.Len(t, sink.shots[0].Trajectory, 2)
}

func TestBurstErrorIsMissedNotStored(t *testing.T) {
	bus := events.NewBus(16)
	_, ch := bus.Subscribe()
	burst := &fakeBurster{err: assert.AnError}
	sink := &fakeSink{}

	o := NewOrchestrator(OrchestratorOptions{
		Holder:            lockedHolder(0.9),
		Burster:           burst,
		Sink:              sink,
		Bus:               bus,
		MinLockConfidence: 0.5,
	})

	o.handle(context.Background(), swing(80))

	assert.Empty(t, sink.shots)
	assert.Len(t, drain(ch, events.KindCaptureMissed), 1)
}

func TestRunConsumesTriggerChannel(t *testing.T) {
	triggers := make(chan radar.SwingEvent, 2)
	sink := &fakeSink{}
	o := NewOrchestrator(OrchestratorOptions{
		Triggers:          triggers,
		Holder:            lockedHolder(0.9),
		Burster:           &fakeBurster{result: BurstResult{}},
		Sink:              sink,
		MinLockConfidence: 0.5,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	triggers <- swing(50)
	triggers <- swing(60)

	assert.Eventually(t, func() bool { return len(sink.shots) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLaunchAngle(t *testing.T) {
	t.Run("empty and single-point trajectories are flat", func(t *testing.T) {
		assert.Equal(t, 0.0, BurstResult{}.LaunchAngleDeg())
		assert.Equal(t, 0.0, BurstResult{Trajectory: []TrajectoryPoint{{X: 1, Y: 1}}}.LaunchAngleDeg())
	})

	t.Run("45 degree rise", func(t *testing.T) {
		b := BurstResult{Trajectory: []TrajectoryPoint{
			{X: 0, Y: 100},
			{X: 100, Y: 0},
		}}
		assert.InDelta(t, 45, b.LaunchAngleDeg(), 0.01)
	})

	t.Run("downward motion is negative", func(t *testing.T) {
		b := BurstResult{Trajectory: []TrajectoryPoint{
			{X: 0, Y: 0},
			{X: 100, Y: 50},
		}}
		assert.Less(t, b.LaunchAngleDeg(), 0.0)
	})

	t.Run("leftward launch measures the same rise", func(t *testing.T) {
		b := BurstResult{Trajectory: []TrajectoryPoint{
			{X: 100, Y: 100},
			{X: 0, Y: 0},
		}}
		assert.InDelta(t, 45, b.LaunchAngleDeg(), 0.01)
	})
}

// MissedCount is polled by the status endpoint while Run counts misses;
// this passes only when the counter is atomic (run with -race).
func TestMissedCountReadableWhileRunning(t *testing.T) {
	triggers := make(chan radar.SwingEvent, 8)
	o := NewOrchestrator(OrchestratorOptions{
		Triggers:          triggers,
		Holder:            vision.NewSnapshotHolder(), // unlocked: every trigger is a miss
		Burster:           &fakeBurster{},
		MinLockConfidence: 0.5,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	for i := 0; i < 50; i++ {
		triggers <- swing(30)
		_ = o.MissedCount()
	}

	assert.Eventually(t, func() bool { return o.MissedCount() == 50 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
