package audio

import (
	"math"
	"testing"
)

// sinePCM builds a PCM16 byte stream containing a sine tone.
func sinePCM(freq float64, amplitude int16, duration float64, sampleRate int) []byte {
	n := int(duration * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(float64(amplitude) * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return EncodePCM16(samples)
}

// constantPCM builds a PCM16 byte stream with every sample at the given value.
func constantPCM(value int16, n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = value
	}
	return EncodePCM16(samples)
}

func TestDecodePCM16_RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 1000, -1000, 32767, -32768}
	decoded := DecodePCM16(EncodePCM16(samples))

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, s := range samples {
		if decoded[i] != s {
			t.Errorf("Sample %d: expected %d, got %d", i, s, decoded[i])
		}
	}
}

func TestDecodePCM16_OddLengthDropsTrailingByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	samples := DecodePCM16(data)

	if len(samples) != 1 {
		t.Fatalf("Expected 1 sample from 3 bytes, got %d", len(samples))
	}
	if samples[0] != 0x0201 {
		t.Errorf("Expected sample 0x0201, got %#x", samples[0])
	}
}

func TestNormalize_Range(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767, -32768}
	normalized := Normalize(samples)

	for i, v := range normalized {
		if v < -1.0 || v > 1.0 {
			t.Errorf("Sample %d out of range: %f", i, v)
		}
	}
	if normalized[0] != 0.0 {
		t.Errorf("Expected 0.0 for zero sample, got %f", normalized[0])
	}
	if normalized[4] != -1.0 {
		t.Errorf("Expected -1.0 for minimum sample, got %f", normalized[4])
	}
}

func TestResample_Upsample(t *testing.T) {
	samples := make([]int16, 8000) // 1 second at 8kHz
	out := Resample(samples, 8000, 16000)

	if len(out) != 16000 {
		t.Errorf("Expected 16000 samples after upsampling, got %d", len(out))
	}
}

func TestResample_Downsample(t *testing.T) {
	samples := make([]int16, 16000)
	out := Resample(samples, 16000, 8000)

	if len(out) != 8000 {
		t.Errorf("Expected 8000 samples after downsampling, got %d", len(out))
	}
}

func TestResample_SameRateUnchanged(t *testing.T) {
	samples := []int16{1, 2, 3}
	out := Resample(samples, 16000, 16000)

	if len(out) != 3 || out[0] != 1 || out[2] != 3 {
		t.Error("Expected samples unchanged when rates match")
	}
}

func TestResample_Interpolates(t *testing.T) {
	// Doubling the rate of a ramp should place midpoints between neighbors.
	samples := []int16{0, 100}
	out := Resample(samples, 8000, 16000)

	if len(out) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(out))
	}
	if out[1] != 50 {
		t.Errorf("Expected interpolated midpoint 50, got %d", out[1])
	}
}

func TestRMS_KnownValues(t *testing.T) {
	samples := []float32{0.5, -0.5, 0.5, -0.5}
	rms := RMS(samples)

	if math.Abs(rms-0.5) > 1e-6 {
		t.Errorf("Expected RMS 0.5, got %f", rms)
	}
}

func TestRMS_Empty(t *testing.T) {
	if rms := RMS(nil); rms != 0.0 {
		t.Errorf("Expected RMS 0.0 for empty input, got %f", rms)
	}
}
