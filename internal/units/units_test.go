package units

import (
	"math"
	"testing"
)

func TestBinToMph(t *testing.T) {
	tests := []struct {
		name         string
		bin          int
		sampleRateHz float64
		expected     float64
	}{
		{"bin 0 is exactly zero", 0, DefaultSampleRateHz, 0.0},
		{"bin 100 at default rate", 100, DefaultSampleRateHz, 13.9009},
		{"bin 150 at default rate", 150, DefaultSampleRateHz, 20.8513},
		{"bin 1 resolution", 1, DefaultSampleRateHz, 0.139009},
		{"high range doubles the rate", 100, 2 * DefaultSampleRateHz, 27.8018},
		{"max bin", 255, DefaultSampleRateHz, 35.4472},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BinToMph(tt.bin, tt.sampleRateHz)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("BinToMph(%d, %f) = %f, want %f", tt.bin, tt.sampleRateHz, result, tt.expected)
			}
		})
	}
}

func TestBinToMphMonotonic(t *testing.T) {
	prev := -1.0
	for bin := 0; bin < 256; bin++ {
		got := BinToMph(bin, DefaultSampleRateHz)
		if got < 0 {
			t.Fatalf("BinToMph(%d) = %f, speeds must be non-negative", bin, got)
		}
		if got <= prev {
			t.Fatalf("BinToMph(%d) = %f, not greater than BinToMph(%d) = %f", bin, got, bin-1, prev)
		}
		prev = got
	}
}

func TestConversionChain(t *testing.T) {
	// bin 150 at 2560 Hz: 1500 Hz Doppler, 33.557 km/h, 20.851 mph
	hz := BinToHz(150, 2560)
	if math.Abs(hz-1500.0) > 1e-9 {
		t.Errorf("BinToHz(150, 2560) = %f, want 1500", hz)
	}
	kmh := HzToKmh(hz)
	if math.Abs(kmh-33.5570) > 0.001 {
		t.Errorf("HzToKmh(%f) = %f, want 33.557", hz, kmh)
	}
	mph := KmhToMph(kmh)
	if math.Abs(mph-20.8513) > 0.001 {
		t.Errorf("KmhToMph(%f) = %f, want 20.8513", kmh, mph)
	}
}

func TestConvertFromMph(t *testing.T) {
	tests := []struct {
		name     string
		speedMph float64
		units    string
		expected float64
	}{
		{"mph passthrough", 100.0, MPH, 100.0},
		{"mph to kmph", 100.0, KMPH, 160.9344},
		{"mph to kph", 100.0, KPH, 160.9344},
		{"mph to mps", 100.0, MPS, 44.704},
		{"unknown unit passthrough", 100.0, "furlongs", 100.0},
		{"zero", 0.0, KMPH, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertFromMph(tt.speedMph, tt.units)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("ConvertFromMph(%f, %s) = %f, want %f", tt.speedMph, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{MPH, true},
		{KMPH, true},
		{KPH, true},
		{MPS, true},
		{"invalid", false},
		{"", false},
		{"MPH", false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}
