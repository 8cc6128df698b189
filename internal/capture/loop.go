package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/fairway-data/launch.report/internal/camera"
	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/exposure"
	"github.com/fairway-data/launch.report/internal/monitoring"
	"github.com/fairway-data/launch.report/internal/vision"
)

// maxConsecutiveReadFailures is how many back-to-back capture errors the
// preview loop absorbs before treating the camera as gone.
const maxConsecutiveReadFailures = 10

// LoopOptions wires a Loop.
type LoopOptions struct {
	Source   camera.FrameSource
	Detector *vision.Detector
	Tracker  *vision.Tracker
	Exposure *exposure.Controller
	Applier  exposure.Applier
	Holder   *vision.SnapshotHolder
	Bus      *events.Bus

	// Preview is the stream configuration for the live detect/track loop;
	// BurstFPS replaces its rate for the duration of a burst.
	Preview  camera.StreamConfig
	BurstFPS float64

	// DetectEvery runs the full detector only every Nth unlocked frame.
	DetectEvery int
	// MinLockScore is the candidate score floor for acquiring a lock.
	MinLockScore float64
}

type burstRequest struct {
	frames int
	resp   chan burstReply
}

type burstReply struct {
	result BurstResult
	err    error
}

// Loop owns the FrameSource and everything that runs per frame. A single
// goroutine calls Run; bursts are serviced inside that goroutine between
// preview frames, so the camera never sees two streams at once and preview
// suspension during a burst is structural.
type Loop struct {
	opts     LoopOptions
	requests chan burstRequest
}

// NewLoop creates a Loop.
func NewLoop(opts LoopOptions) *Loop {
	if opts.DetectEvery < 1 {
		opts.DetectEvery = 1
	}
	return &Loop{
		opts:     opts,
		requests: make(chan burstRequest),
	}
}

// RequestBurst asks the loop to capture a burst of the given length. It
// blocks until the burst completes or ctx ends. Safe for one caller at a
// time; the orchestrator is the only client.
func (l *Loop) RequestBurst(ctx context.Context, frames int) (BurstResult, error) {
	req := burstRequest{frames: frames, resp: make(chan burstReply, 1)}
	select {
	case l.requests <- req:
	case <-ctx.Done():
		return BurstResult{}, ctx.Err()
	}
	select {
	case reply := <-req.resp:
		return reply.result, reply.err
	case <-ctx.Done():
		return BurstResult{}, ctx.Err()
	}
}

// previewConfig is the preview stream with the exposure controller's
// latest shutter and gain folded in, so restoring the preview rate never
// undoes an applied exposure adjustment.
func (l *Loop) previewConfig() camera.StreamConfig {
	cfg := l.opts.Preview
	if l.opts.Exposure != nil {
		setting := l.opts.Exposure.Current()
		cfg.ShutterMicros = setting.ShutterMicros
		cfg.Gain = setting.Gain
	}
	return cfg
}

// Run captures and processes preview frames until ctx ends or the camera
// fails. The source is always stopped, and left at preview-rate settings,
// on every exit path.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.opts.Source.Configure(l.previewConfig()); err != nil {
		return l.fatal(fmt.Errorf("camera configure: %w", err))
	}
	if err := l.opts.Source.Start(); err != nil {
		return l.fatal(fmt.Errorf("camera start: %w", err))
	}
	defer func() {
		// Burst exits restore this too; doing it again is idempotent and
		// guarantees the hardware never stays at burst rate.
		if err := l.opts.Source.Configure(l.previewConfig()); err != nil {
			monitoring.Logf("capture: failed to restore preview config: %v", err)
		}
		if err := l.opts.Source.Stop(); err != nil {
			monitoring.Logf("capture: camera stop: %v", err)
		}
	}()

	readFailures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-l.requests:
			result, err := l.runBurst(ctx, req.frames)
			req.resp <- burstReply{result: result, err: err}
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		default:
		}

		frame, err := l.opts.Source.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			readFailures++
			if readFailures >= maxConsecutiveReadFailures {
				return l.fatal(fmt.Errorf("camera read failed %d times: %w", readFailures, err))
			}
			monitoring.Debugf("capture: dropped frame: %v", err)
			continue
		}
		readFailures = 0

		l.processPreviewFrame(frame)
		frame.Close()
	}
}

// processPreviewFrame runs exposure, tracking, and detection for one live
// frame, then publishes the tracker snapshot.
func (l *Loop) processPreviewFrame(f *vision.Frame) {
	l.updateExposure(f)

	tracker := l.opts.Tracker
	wasLocked := tracker.State() == vision.StateLocked

	if wasLocked {
		if _, ok := tracker.Track(f); !ok {
			monitoring.Logf("capture: ball lock lost")
			l.emit(events.KindTrackUnlock, tracker.Snapshot())
		}
	} else if f.Seq%uint64(l.opts.DetectEvery) == 0 {
		l.tryAcquire(f)
	}

	l.opts.Holder.Store(tracker.Snapshot())
}

// tryAcquire runs the full detector and locks on a good enough candidate.
func (l *Loop) tryAcquire(f *vision.Frame) {
	cands, err := l.opts.Detector.Detect(f)
	if err != nil {
		monitoring.Debugf("capture: detect: %v", err)
		return
	}
	if len(cands) == 0 || cands[0].Score < l.opts.MinLockScore {
		return
	}

	best := cands[0]
	if err := l.opts.Tracker.Lock(f, best.X, best.Y, best.Radius); err != nil {
		monitoring.Debugf("capture: lock: %v", err)
		return
	}
	monitoring.Logf("capture: ball locked at (%.0f, %.0f) r=%.0f score=%.2f",
		best.X, best.Y, best.Radius, best.Score)
	l.emit(events.KindTrackLock, l.opts.Tracker.Snapshot())
}

// updateExposure samples brightness in the relevant zone and applies any
// resulting setting change to the camera.
func (l *Loop) updateExposure(f *vision.Frame) {
	if l.opts.Exposure == nil {
		return
	}

	roi := l.brightnessZone(f)
	region := f.Mat.Region(roi)
	mean := region.Mean().Val1
	region.Close()

	setting, changed := l.opts.Exposure.Update(mean, f.Timestamp)
	if !changed {
		return
	}
	if l.opts.Applier != nil {
		if err := l.opts.Applier.ApplyExposure(setting.ShutterMicros, setting.Gain); err != nil {
			monitoring.Logf("capture: exposure apply: %v", err)
			return
		}
	}
	l.emit(events.KindExposureUpdate, setting)
	l.emit(events.KindBrightness, map[string]float64{"brightness": l.opts.Exposure.Smoothed()})
}

// brightnessZone is the last-known ball zone while locked, the frame
// center otherwise.
func (l *Loop) brightnessZone(f *vision.Frame) image.Rectangle {
	snap := l.opts.Tracker.Snapshot()
	if snap.State == vision.StateLocked && snap.Radius > 0 {
		r := int(snap.Radius * 2)
		zone := image.Rect(int(snap.X)-r, int(snap.Y)-r, int(snap.X)+r, int(snap.Y)+r)
		if z := zone.Intersect(f.Bounds()); !z.Empty() {
			return z
		}
	}
	w, h := f.Width, f.Height
	return image.Rect(w/4, h/4, 3*w/4, 3*h/4)
}

// runBurst reconfigures to burst rate, tracks through the burst, and
// restores the preview stream no matter how it exits.
func (l *Loop) runBurst(ctx context.Context, frames int) (BurstResult, error) {
	burstCfg := l.previewConfig()
	burstCfg.FPS = l.opts.BurstFPS
	if err := l.opts.Source.Configure(burstCfg); err != nil {
		return BurstResult{}, fmt.Errorf("burst configure: %w", err)
	}
	defer func() {
		if err := l.opts.Source.Configure(l.previewConfig()); err != nil {
			monitoring.Logf("capture: failed to restore preview config after burst: %v", err)
		}
	}()

	var result BurstResult
	for i := 0; i < frames; i++ {
		frame, err := l.opts.Source.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			// A dropped burst frame ends the burst; what we have is still
			// a usable partial trajectory.
			result.Truncated = true
			break
		}

		pos, ok := l.opts.Tracker.Track(frame)
		l.opts.Holder.Store(l.opts.Tracker.Snapshot())
		frame.Close()

		if !ok {
			result.Truncated = true
			break
		}
		result.Trajectory = append(result.Trajectory, TrajectoryPoint{
			Time:       pos.Time,
			X:          pos.X,
			Y:          pos.Y,
			Radius:     pos.Radius,
			Confidence: pos.Confidence,
		})
	}
	return result, nil
}

// emit publishes to the bus when one is wired.
func (l *Loop) emit(kind events.Kind, payload interface{}) {
	if l.opts.Bus != nil {
		l.opts.Bus.Emit(kind, payload)
	}
}

// fatal surfaces a camera failure on the bus before Run returns it.
func (l *Loop) fatal(err error) error {
	if l.opts.Bus != nil {
		l.opts.Bus.Emit(events.KindComponentStatus, events.ComponentStatus{
			Component: "camera",
			Level:     "fatal",
			Detail:    err.Error(),
		})
	}
	return err
}
