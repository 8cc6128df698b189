package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-data/launch.report/internal/camera"
	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/exposure"
	"github.com/fairway-data/launch.report/internal/vision"
)

func previewConfig() camera.StreamConfig {
	// High FPS keeps the paced synthetic source fast in tests.
	return camera.StreamConfig{Width: 640, Height: 480, FPS: 2000, ShutterMicros: 500, Gain: 4}
}

func newTestLoop(t *testing.T, src *camera.Synthetic) (*Loop, *vision.SnapshotHolder, *events.Bus) {
	t.Helper()
	holder := vision.NewSnapshotHolder()
	bus := events.NewBus(64)
	loop := NewLoop(LoopOptions{
		Source:       src,
		Detector:     vision.NewDetector(vision.DefaultDetectorParams()),
		Tracker:      vision.NewTracker(vision.DefaultTrackerParams()),
		Holder:       holder,
		Bus:          bus,
		Preview:      previewConfig(),
		BurstFPS:     4000,
		DetectEvery:  2,
		MinLockScore: 0.2,
	})
	return loop, holder, bus
}

func waitForLock(t *testing.T, holder *vision.SnapshotHolder) {
	t.Helper()
	require.Eventually(t, func() bool {
		return holder.Load().State == vision.StateLocked
	}, 5*time.Second, 5*time.Millisecond, "preview loop should lock the synthetic ball")
}

func TestLoopLocksOnSyntheticBall(t *testing.T) {
	src := camera.NewSynthetic(previewConfig())
	loop, holder, bus := newTestLoop(t, src)
	_, ch := bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	waitForLock(t, holder)

	snap := holder.Load()
	assert.InDelta(t, 320, snap.X, 10)
	assert.InDelta(t, 384, snap.Y, 10)
	assert.Greater(t, snap.Confidence, 0.5)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	locks := drain(ch, events.KindTrackLock)
	assert.NotEmpty(t, locks, "lock event published")
}

func TestBurstTracksLaunchAndRestoresPreview(t *testing.T) {
	src := camera.NewSynthetic(previewConfig())
	loop, holder, _ := newTestLoop(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	waitForLock(t, holder)

	// Launch the ball a few frames into the burst, slow enough for the
	// tracker to follow.
	src.SetScript(camera.LaunchedBall(640, 480, 0, 6))

	result, err := loop.RequestBurst(ctx, 12)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Trajectory, "burst must yield trajectory points")

	if len(result.Trajectory) >= 2 {
		first := result.Trajectory[0]
		last := result.Trajectory[len(result.Trajectory)-1]
		assert.Greater(t, last.X, first.X, "trajectory follows the launch")
	}

	assert.Equal(t, previewConfig().FPS, src.Config().FPS, "preview rate restored after burst")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestBurstTruncatesWhenBallLeavesFrame(t *testing.T) {
	src := camera.NewSynthetic(previewConfig())
	loop, holder, _ := newTestLoop(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	waitForLock(t, holder)

	// A launch so fast the ball outruns the search window within a couple
	// of frames: the lock must drop and the burst must come back partial,
	// not fail.
	src.SetScript(camera.LaunchedBall(640, 480, 0, 400))

	result, err := loop.RequestBurst(ctx, 24)
	require.NoError(t, err)
	assert.True(t, result.Truncated, "losing the ball mid-burst flags truncation")
	assert.Less(t, len(result.Trajectory), 24)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLoopStopsCameraOnCancel(t *testing.T) {
	src := camera.NewSynthetic(previewConfig())
	loop, _, _ := newTestLoop(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	_, err := src.Capture(context.Background())
	assert.Error(t, err, "source stopped on loop exit")
}

func TestPreviewRestoreKeepsAppliedExposure(t *testing.T) {
	src := camera.NewSynthetic(previewConfig())
	holder := vision.NewSnapshotHolder()
	// The controller starts away from the preview defaults, standing in
	// for adjustments applied during an earlier session.
	ctrl := exposure.NewController(exposure.DefaultParams(), exposure.Setting{ShutterMicros: 900, Gain: 8})
	loop := NewLoop(LoopOptions{
		Source:       src,
		Detector:     vision.NewDetector(vision.DefaultDetectorParams()),
		Tracker:      vision.NewTracker(vision.DefaultTrackerParams()),
		Exposure:     ctrl,
		Holder:       holder,
		Preview:      previewConfig(),
		BurstFPS:     4000,
		DetectEvery:  2,
		MinLockScore: 0.2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	waitForLock(t, holder)

	_, err := loop.RequestBurst(ctx, 4)
	require.NoError(t, err)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The exit restore brings back the preview rate but must keep the
	// controller's shutter and gain, not the startup values.
	cfg := src.Config()
	cur := ctrl.Current()
	assert.Equal(t, previewConfig().FPS, cfg.FPS)
	assert.Equal(t, cur.ShutterMicros, cfg.ShutterMicros)
	assert.Equal(t, cur.Gain, cfg.Gain)
	assert.NotEqual(t, previewConfig().Gain, cfg.Gain, "restore must not revert applied exposure")
}
