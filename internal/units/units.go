// Package units converts raw Doppler bin indices from the radar into speeds
// and handles display-unit conversion for stored readings.
package units

import "math"

// The sensor reports speed as an FFT bin index. The bin maps to a Doppler
// frequency as bin*(sampleRate/DopplerBins), and the module's K-band
// geometry gives HzPerKmh Doppler hertz per km/h of radial speed.
const (
	// DopplerBins is the FFT length of the radar's speed estimator.
	DopplerBins = 256

	// HzPerKmh is the Doppler shift in hertz produced by 1 km/h of radial
	// velocity at the sensor's transmit frequency.
	HzPerKmh = 44.7

	// MphPerKmh converts kilometres per hour to miles per hour.
	MphPerKmh = 0.621371

	// DefaultSampleRateHz is the radar's default ADC sample rate. The
	// effective rate doubles when the sensor is in its high speed range.
	DefaultSampleRateHz = 2560.0
)

// Unit constants for the stored display preference.
const (
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
	MPS  = "mps"
)

// ValidUnits contains all valid display unit values.
var ValidUnits = []string{MPH, KMPH, KPH, MPS}

// IsValid checks if the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// BinToHz converts a Doppler bin index to its center frequency for the
// given ADC sample rate.
func BinToHz(bin int, sampleRateHz float64) float64 {
	return float64(bin) * (sampleRateHz / DopplerBins)
}

// HzToKmh converts a Doppler frequency to speed in km/h.
func HzToKmh(hz float64) float64 {
	return hz / HzPerKmh
}

// KmhToMph converts km/h to mph.
func KmhToMph(kmh float64) float64 {
	return kmh * MphPerKmh
}

// BinToMph converts a raw Doppler bin index straight to mph. The result is
// always non-negative; direction is carried separately by the detection
// register, never by the sign of the speed.
func BinToMph(bin int, sampleRateHz float64) float64 {
	return math.Abs(KmhToMph(HzToKmh(BinToHz(bin, sampleRateHz))))
}

// ConvertFromMph converts a stored mph speed to the target display units.
// Unknown units return the input unchanged.
func ConvertFromMph(speedMph float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMph
	case KMPH, KPH:
		return speedMph / MphPerKmh
	case MPS:
		return speedMph / MphPerKmh / 3.6
	default:
		return speedMph
	}
}
