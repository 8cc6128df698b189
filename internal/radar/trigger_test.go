package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(speedMph float64, dir Direction, magDB int) *SpeedReading {
	return &SpeedReading{
		SpeedMph:    speedMph,
		Direction:   dir,
		MagnitudeDB: magDB,
		Time:        time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestTriggerFiresOnceOnQualifyingRisingEdge(t *testing.T) {
	t.Parallel()
	m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15})

	// Quiet polls stay idle.
	assert.Nil(t, m.Observe(nil))
	assert.Nil(t, m.Observe(nil))
	assert.Equal(t, StateIdle, m.State())

	// Rising edge above the floor fires exactly one event.
	ev := m.Observe(reading(92.5, DirectionApproaching, 80))
	require.NotNil(t, ev)
	assert.Equal(t, 92.5, ev.SpeedMph)
	assert.Equal(t, DirectionApproaching, ev.Direction)
	assert.Equal(t, 80, ev.MagnitudeDB)
	assert.Equal(t, StateTriggered, m.State())

	// The rest of the run is silent no matter what it reports.
	assert.Nil(t, m.Observe(reading(95.0, DirectionApproaching, 85)))
	assert.Nil(t, m.Observe(reading(88.0, DirectionApproaching, 70)))
	assert.Equal(t, StateTriggered, m.State())

	// Run ends; machine returns to idle.
	assert.Nil(t, m.Observe(nil))
	assert.Equal(t, StateIdle, m.State())

	// A fresh run can fire again.
	require.NotNil(t, m.Observe(reading(60.0, DirectionApproaching, 75)))
}

func TestTriggerSlowRisingEdgePoisonsTheRun(t *testing.T) {
	t.Parallel()
	m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15})

	// Rising edge below the floor: no event, run enters Detecting.
	assert.Nil(t, m.Observe(reading(8.0, DirectionApproaching, 60)))
	assert.Equal(t, StateDetecting, m.State())

	// Later polls of the same run exceed the floor but must not fire.
	assert.Nil(t, m.Observe(reading(40.0, DirectionApproaching, 75)))
	assert.Nil(t, m.Observe(reading(90.0, DirectionApproaching, 85)))
	assert.Equal(t, StateDetecting, m.State())

	// Only after a gap does a qualifying edge fire.
	assert.Nil(t, m.Observe(nil))
	require.NotNil(t, m.Observe(reading(90.0, DirectionApproaching, 85)))
}

func TestTriggerNeverFiresTwiceWithoutIdleGap(t *testing.T) {
	t.Parallel()
	m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15})

	events := 0
	// One long run with wild speed swings: exactly one event.
	for _, mph := range []float64{20, 90, 5, 120, 40, 200, 3} {
		if m.Observe(reading(mph, DirectionApproaching, 80)) != nil {
			events++
		}
	}
	assert.Equal(t, 1, events)
}

func TestTriggerEventCountMatchesQualifyingRuns(t *testing.T) {
	t.Parallel()
	m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15})

	// Sequence of polls: nil is a quiet poll. Runs: [20 30] qualifies,
	// [5 90] does not (slow edge), [50] qualifies, [10] does not.
	seq := []*SpeedReading{
		nil,
		reading(20, DirectionApproaching, 70),
		reading(30, DirectionApproaching, 70),
		nil,
		reading(5, DirectionApproaching, 70),
		reading(90, DirectionApproaching, 70),
		nil, nil,
		reading(50, DirectionReceding, 70),
		nil,
		reading(10, DirectionApproaching, 70),
		nil,
	}

	events := 0
	for _, r := range seq {
		if m.Observe(r) != nil {
			events++
		}
	}
	assert.Equal(t, 2, events)
}

func TestTriggerMagnitudeGate(t *testing.T) {
	t.Parallel()

	t.Run("zero disables the gate", func(t *testing.T) {
		t.Parallel()
		m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15, MinMagnitudeDB: 0})
		assert.NotNil(t, m.Observe(reading(50, DirectionApproaching, 1)))
	})

	t.Run("weak return rejected at the edge", func(t *testing.T) {
		t.Parallel()
		m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15, MinMagnitudeDB: 40})
		assert.Nil(t, m.Observe(reading(50, DirectionApproaching, 35)))
		assert.Equal(t, StateDetecting, m.State())
	})

	t.Run("strong return passes", func(t *testing.T) {
		t.Parallel()
		m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15, MinMagnitudeDB: 40})
		assert.NotNil(t, m.Observe(reading(50, DirectionApproaching, 40)))
	})
}

func TestTriggerDirectionFilter(t *testing.T) {
	t.Parallel()

	t.Run("any accepts both", func(t *testing.T) {
		t.Parallel()
		m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15, Direction: "any"})
		assert.NotNil(t, m.Observe(reading(50, DirectionReceding, 70)))
	})

	t.Run("empty accepts both", func(t *testing.T) {
		t.Parallel()
		m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15})
		assert.NotNil(t, m.Observe(reading(50, DirectionReceding, 70)))
	})

	t.Run("approaching-only rejects receding edge", func(t *testing.T) {
		t.Parallel()
		m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15, Direction: "approaching"})
		assert.Nil(t, m.Observe(reading(50, DirectionReceding, 70)))
		assert.Equal(t, StateDetecting, m.State())

		// And the matching direction fires after a gap.
		m.Observe(nil)
		assert.NotNil(t, m.Observe(reading(50, DirectionApproaching, 70)))
	})
}

func TestTriggerExactFloorPasses(t *testing.T) {
	t.Parallel()
	m := NewTriggerStateMachine(TriggerGate{MinSpeedMph: 15})
	assert.NotNil(t, m.Observe(reading(15.0, DirectionApproaching, 70)),
		"speed equal to the floor should pass")
}
