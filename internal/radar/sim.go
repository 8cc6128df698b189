package radar

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// SimulatedModule emulates the radar device behind a serial port for dev
// mode: it answers the poll commands like real firmware and stages a swing
// every few seconds so the whole trigger-and-capture path can run on a
// bench with no hardware. It implements serialio.SerialPorter.
type SimulatedModule struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readBuf bytes.Buffer
	closed  bool

	// polls counts detection register reads; the swing script is keyed off
	// it so behaviour is deterministic under any poll rate. lastPhase is
	// latched at each detection poll so the speed query that follows reports
	// the same instant.
	polls     int
	lastPhase int

	// SwingPeriod is the number of detection polls between staged swings.
	SwingPeriod int
	// SwingBins is the bin ramp reported across one staged swing.
	SwingBins []int
	// SwingMagnitudes parallels SwingBins.
	SwingMagnitudes []int
}

// NewSimulatedModule creates a simulator with the default swing script:
// one approaching swing roughly every 64 polls, ramping through plausible
// driver-speed bins.
func NewSimulatedModule() *SimulatedModule {
	s := &SimulatedModule{
		SwingPeriod:     64,
		SwingBins:       []int{48, 150, 142, 96},
		SwingMagnitudes: []int{62, 81, 78, 70},
		lastPhase:       -1,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// phase returns the index into the swing script, or -1 when idle.
func (s *SimulatedModule) phase() int {
	cycle := s.polls % s.SwingPeriod
	if cycle < len(s.SwingBins) {
		return cycle
	}
	return -1
}

// respond appends a line to the read buffer and wakes blocked readers.
func (s *SimulatedModule) respond(line string) {
	s.readBuf.WriteString(line)
	s.readBuf.WriteString("\r\n")
	s.cond.Signal()
}

// Write consumes CR-terminated commands and stages responses.
func (s *SimulatedModule) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.New("serial port closed")
	}

	for _, command := range strings.FieldsFunc(string(p), func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		switch {
		case command == CmdDetection:
			s.lastPhase = s.phase()
			s.polls++
			reg := 0
			if s.lastPhase >= 0 {
				reg = regDetected | regApproaching
			}
			s.respond(fmt.Sprintf("@%s%X", CmdDetection, reg))

		case command == CmdSpeed:
			reg, bin, mag := 0, 0, 0
			if s.lastPhase >= 0 {
				reg = regDetected | regApproaching
				bin = s.SwingBins[s.lastPhase]
				mag = s.SwingMagnitudes[s.lastPhase]
			}
			s.respond(fmt.Sprintf("@%s%X;%d;%d;", CmdSpeed, reg, bin, mag))

		case command == CmdFirmware:
			s.respond("@" + CmdFirmware + "SIM-1.0")

		case len(command) >= 3:
			// Echo unknown commands so the debug console gets feedback.
			s.respond("@" + command[:3])
		}
	}
	return len(p), nil
}

// Read blocks until response data is available or the port is closed.
func (s *SimulatedModule) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.closed && s.readBuf.Len() == 0 {
		s.cond.Wait()
	}
	if s.closed {
		return 0, errors.New("serial port closed")
	}
	return s.readBuf.Read(p)
}

// Close marks the port closed and wakes blocked readers.
func (s *SimulatedModule) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}
