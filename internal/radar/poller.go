package radar

import (
	"context"
	"fmt"
	"time"

	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/monitoring"
	"github.com/fairway-data/launch.report/internal/timeutil"
	"github.com/fairway-data/launch.report/internal/units"
)

// Transactor is the slice of the serial connection the poller needs.
type Transactor interface {
	Transact(ctx context.Context, command string) (string, error)
}

// PollerOptions configures a Poller. Clock and Bus may be nil (real clock,
// no event publishing) to keep tests small.
type PollerOptions struct {
	Conn         Transactor
	Gate         TriggerGate
	Clock        timeutil.Clock
	Bus          *events.Bus
	SampleRateHz float64
	// HighRangeMultiplier scales the sample rate when the sensor reports
	// its high speed range.
	HighRangeMultiplier float64
	// TriggerQueueSize bounds the trigger channel. When the orchestrator
	// falls behind, newer triggers are dropped with a log line rather than
	// stalling the poll loop.
	TriggerQueueSize int
}

// Poller owns the radar side of the pipeline: it ticks the detection
// register, converts speed reads, drives the trigger state machine, and
// hands SwingEvents to the capture orchestrator.
type Poller struct {
	conn          Transactor
	machine       *TriggerStateMachine
	clock         timeutil.Clock
	bus           *events.Bus
	sampleRateHz  float64
	highRangeMult float64
	triggers      chan SwingEvent
}

// NewPoller builds a Poller from options, applying defaults for optional
// fields.
func NewPoller(opts PollerOptions) *Poller {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sampleRate := opts.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = units.DefaultSampleRateHz
	}
	mult := opts.HighRangeMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	queue := opts.TriggerQueueSize
	if queue < 1 {
		queue = 4
	}
	return &Poller{
		conn:          opts.Conn,
		machine:       NewTriggerStateMachine(opts.Gate),
		clock:         clock,
		bus:           opts.Bus,
		sampleRateHz:  sampleRate,
		highRangeMult: mult,
		triggers:      make(chan SwingEvent, queue),
	}
}

// Triggers returns the channel carrying fired swing events.
func (p *Poller) Triggers() <-chan SwingEvent {
	return p.triggers
}

// State exposes the trigger state for the status API.
func (p *Poller) State() TriggerState {
	return p.machine.State()
}

// reading converts a decoded speed sample into a SpeedReading, scaling the
// sample rate when the sensor is in its high speed range.
func (p *Poller) reading(s Sample) *SpeedReading {
	rate := p.sampleRateHz
	if s.HighSpeedRange {
		rate *= p.highRangeMult
	}
	return &SpeedReading{
		SpeedMph:       units.BinToMph(s.Bin, rate),
		Direction:      s.Direction,
		MagnitudeDB:    s.MagnitudeDB,
		HighSpeedRange: s.HighSpeedRange,
		Time:           p.clock.Now(),
	}
}

// emit publishes the event and queues it for the orchestrator without ever
// blocking the poll loop.
func (p *Poller) emit(ev SwingEvent) {
	if p.bus != nil {
		p.bus.Emit(events.KindSwingTrigger, ev)
	}
	select {
	case p.triggers <- ev:
	default:
		monitoring.Logf("radar: trigger queue full, dropping swing event (%.1f mph)", ev.SpeedMph)
	}
}

// fatal surfaces an unrecoverable poller failure on the bus before Run
// returns it.
func (p *Poller) fatal(err error) error {
	if p.bus != nil {
		p.bus.Emit(events.KindComponentStatus, events.ComponentStatus{
			Component: "radar",
			Level:     "fatal",
			Detail:    err.Error(),
		})
	}
	return err
}

// Run polls the sensor at the given cadence until the context is cancelled
// or serial I/O fails. Parse failures are transient noise: they count as
// "no detection" polls and the loop keeps going. I/O errors are fatal and
// returned after a status event.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	version, err := p.identify(ctx)
	if err != nil {
		return p.fatal(fmt.Errorf("radar identity check failed: %w", err))
	}
	monitoring.Logf("radar: module firmware %s", version)

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := p.poll(ctx); err != nil {
				return p.fatal(err)
			}
		}
	}
}

// identify queries the firmware string once at startup.
func (p *Poller) identify(ctx context.Context) (string, error) {
	line, err := p.conn.Transact(ctx, CmdFirmware)
	if err != nil {
		return "", err
	}
	return ParseFirmwareResponse(line)
}

// poll performs one detection cycle. The returned error is always a fatal
// I/O failure; protocol garbage is logged and swallowed.
func (p *Poller) poll(ctx context.Context) error {
	line, err := p.conn.Transact(ctx, CmdDetection)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("radar detection poll: %w", err)
	}

	det, err := ParseDetectionRegister(line)
	if err != nil {
		monitoring.Debugf("radar: %v", err)
		p.machine.Observe(nil)
		return nil
	}

	if !det.Detected {
		p.machine.Observe(nil)
		return nil
	}

	line, err = p.conn.Transact(ctx, CmdSpeed)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("radar speed poll: %w", err)
	}

	speed, err := ParseSpeedResponse(line)
	if err != nil {
		monitoring.Debugf("radar: %v", err)
		p.machine.Observe(nil)
		return nil
	}

	reading := p.reading(speed)
	if p.bus != nil {
		p.bus.Emit(events.KindRadarSpeed, reading)
	}
	if ev := p.machine.Observe(reading); ev != nil {
		monitoring.Logf("radar: swing trigger at %.1f mph (%s, %d dB)",
			ev.SpeedMph, ev.Direction, ev.MagnitudeDB)
		p.emit(*ev)
	}
	return nil
}
