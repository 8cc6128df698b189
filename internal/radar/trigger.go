package radar

import "sync"

// TriggerState is the swing trigger's position in a detection run.
type TriggerState string

const (
	// StateIdle means no motion is currently detected.
	StateIdle TriggerState = "idle"
	// StateDetecting means motion is present but the run's rising edge did
	// not pass the gate; the run can no longer trigger.
	StateDetecting TriggerState = "detecting"
	// StateTriggered means this run fired a swing event.
	StateTriggered TriggerState = "triggered"
)

// TriggerGate is the qualification a rising-edge reading must pass to fire.
type TriggerGate struct {
	// MinSpeedMph rejects slow motion (practice waggles, people walking
	// through the scene).
	MinSpeedMph float64
	// MinMagnitudeDB rejects weak returns. Zero disables the magnitude gate.
	MinMagnitudeDB int
	// Direction restricts triggering to one radial direction. Empty or
	// "any" accepts both.
	Direction string
}

// TriggerStateMachine turns a stream of polled readings into at most one
// SwingEvent per detection run. Only the first reading of a run (the rising
// edge out of Idle) is examined: if it passes the gate the machine fires
// and holds Triggered; if not, the machine holds Detecting and the rest of
// the run is ignored no matter how fast it gets. Either way a run must
// return to Idle before another event is possible.
//
// Observe runs on the poll goroutine; State may be read from any
// goroutine (the status endpoint polls it), so both hold the mutex.
type TriggerStateMachine struct {
	mu    sync.Mutex
	gate  TriggerGate
	state TriggerState
}

// NewTriggerStateMachine creates a machine in StateIdle.
func NewTriggerStateMachine(gate TriggerGate) *TriggerStateMachine {
	return &TriggerStateMachine{gate: gate, state: StateIdle}
}

// State returns the current state.
func (m *TriggerStateMachine) State() TriggerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe consumes one poll. A nil reading means the sensor reported no
// detection (or the response was unreadable, which is treated the same
// way). The returned event is non-nil exactly when this poll fires the
// trigger.
func (m *TriggerStateMachine) Observe(reading *SpeedReading) *SwingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reading == nil {
		m.state = StateIdle
		return nil
	}

	switch m.state {
	case StateIdle:
		if !m.passes(reading) {
			m.state = StateDetecting
			return nil
		}
		m.state = StateTriggered
		return &SwingEvent{
			Time:        reading.Time,
			SpeedMph:    reading.SpeedMph,
			MagnitudeDB: reading.MagnitudeDB,
			Direction:   reading.Direction,
		}
	default:
		// Mid-run readings never trigger, in either state.
		return nil
	}
}

// passes applies the gate to a rising-edge reading.
func (m *TriggerStateMachine) passes(r *SpeedReading) bool {
	if r.SpeedMph < m.gate.MinSpeedMph {
		return false
	}
	if m.gate.MinMagnitudeDB > 0 && r.MagnitudeDB < m.gate.MinMagnitudeDB {
		return false
	}
	switch m.gate.Direction {
	case "", "any":
		return true
	default:
		return string(r.Direction) == m.gate.Direction
	}
}
