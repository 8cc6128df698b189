// Package radar speaks the ASCII command protocol of the K-band Doppler
// module and turns its register reads into swing triggers. The device is
// strictly request/response over serial: the host polls the detection
// register and, when something is moving, the speed estimate.
package radar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Command codes. The device echoes the code after an '@' in its response.
const (
	// CmdDetection queries the detection register.
	CmdDetection = "R00"
	// CmdSpeed queries the speed bin and signal magnitude.
	CmdSpeed = "C00"
	// CmdFirmware queries the firmware identity string.
	CmdFirmware = "F00"
)

// Detection register bits.
const (
	regDetected    = 1 << 0
	regApproaching = 1 << 1 // set = approaching, clear = receding
	regHighRange   = 1 << 2 // set = high speed range (doubled sample rate)
	regMicro       = 1 << 3 // micro-detection (sub-threshold motion)
)

// Direction is the radial direction of the detected motion.
type Direction string

const (
	DirectionApproaching Direction = "approaching"
	DirectionReceding    Direction = "receding"
)

// Sample is one decoded poll of the sensor.
type Sample struct {
	Detected       bool
	Direction      Direction
	HighSpeedRange bool
	MicroDetection bool
	Bin            int
	MagnitudeDB    int
}

// SpeedReading is a validated speed measurement derived from a Sample.
// SpeedMph is always non-negative; Direction carries the sign separately.
type SpeedReading struct {
	SpeedMph       float64   `json:"speed_mph"`
	Direction      Direction `json:"direction"`
	MagnitudeDB    int       `json:"magnitude_db"`
	HighSpeedRange bool      `json:"high_speed_range"`
	Time           time.Time `json:"time"`
}

// SwingEvent is emitted exactly once per qualifying swing: the rising edge
// of a detection run whose first reading passes the trigger gate.
type SwingEvent struct {
	Time        time.Time `json:"time"`
	SpeedMph    float64   `json:"speed_mph"`
	MagnitudeDB int       `json:"magnitude_db"`
	Direction   Direction `json:"direction"`
}

// decodeRegister maps detection register bits onto a Sample.
func decodeRegister(reg uint64) Sample {
	s := Sample{
		Detected:       reg&regDetected != 0,
		HighSpeedRange: reg&regHighRange != 0,
		MicroDetection: reg&regMicro != 0,
		Direction:      DirectionReceding,
	}
	if reg&regApproaching != 0 {
		s.Direction = DirectionApproaching
	}
	return s
}

// ParseDetectionRegister decodes a response to CmdDetection, e.g. "@R003".
func ParseDetectionRegister(line string) (Sample, error) {
	payload, err := stripEcho(line, CmdDetection)
	if err != nil {
		return Sample{}, err
	}
	reg, err := strconv.ParseUint(payload, 16, 8)
	if err != nil {
		return Sample{}, fmt.Errorf("bad detection register %q: %w", payload, err)
	}
	return decodeRegister(reg), nil
}

// ParseSpeedResponse decodes a response to CmdSpeed, e.g. "@C003;150;80;".
// The payload is the detection register followed by the speed bin and the
// signal magnitude in dB, semicolon separated with a trailing semicolon.
func ParseSpeedResponse(line string) (Sample, error) {
	payload, err := stripEcho(line, CmdSpeed)
	if err != nil {
		return Sample{}, err
	}

	fields := strings.Split(payload, ";")
	if len(fields) < 3 {
		return Sample{}, fmt.Errorf("speed response %q: want 3 fields, got %d", line, len(fields))
	}

	reg, err := strconv.ParseUint(fields[0], 16, 8)
	if err != nil {
		return Sample{}, fmt.Errorf("speed response %q: bad register: %w", line, err)
	}

	bin, err := strconv.Atoi(fields[1])
	if err != nil {
		return Sample{}, fmt.Errorf("speed response %q: bad bin: %w", line, err)
	}
	if bin < 0 {
		return Sample{}, fmt.Errorf("speed response %q: negative bin %d", line, bin)
	}

	mag, err := strconv.Atoi(fields[2])
	if err != nil {
		return Sample{}, fmt.Errorf("speed response %q: bad magnitude: %w", line, err)
	}

	s := decodeRegister(reg)
	s.Bin = bin
	s.MagnitudeDB = mag
	return s, nil
}

// ParseFirmwareResponse decodes a response to CmdFirmware, e.g. "@F00K-LD2 v2.1".
func ParseFirmwareResponse(line string) (string, error) {
	version, err := stripEcho(line, CmdFirmware)
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", fmt.Errorf("firmware response %q: empty version", line)
	}
	return version, nil
}

// stripEcho validates the '@'+command echo and returns the payload after it.
func stripEcho(line, command string) (string, error) {
	want := "@" + command
	if !strings.HasPrefix(line, want) {
		return "", fmt.Errorf("response %q: missing %q echo", line, want)
	}
	return strings.TrimSpace(line[len(want):]), nil
}
