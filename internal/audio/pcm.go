package audio

import (
	"math"
)

// maxPCM16 is the normalization divisor for signed 16-bit samples.
const maxPCM16 = 32768.0

// DecodePCM16 decodes little-endian signed 16-bit PCM bytes into samples.
// A trailing odd byte is dropped; partial samples are never synthesized.
func DecodePCM16(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// EncodePCM16 encodes samples back to little-endian 16-bit PCM bytes.
func EncodePCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// Normalize converts 16-bit samples to float32 in [-1, 1].
func Normalize(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / maxPCM16
	}
	return out
}

// Resample converts samples between sample rates using linear interpolation.
// Quality is intentionally basic; speech energy analysis does not need more.
func Resample(samples []int16, sourceRate, targetRate int) []int16 {
	if sourceRate == targetRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(targetRate) / float64(sourceRate)
	outLen := int(float64(len(samples)) * ratio)
	out := make([]int16, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		frac := srcPos - float64(idx0)
		out[i] = int16(float64(samples[idx0])*(1.0-frac) + float64(samples[idx1])*frac)
	}

	return out
}

// RMS calculates the root mean square energy of normalized samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
