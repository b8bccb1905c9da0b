package audio

import (
	"fmt"
)

// silenceFloorRMS rejects recordings with effectively no signal.
const silenceFloorRMS = 0.001

// SegmentOptimizer enforces duration bounds on recordings and searches for
// the most speech-dense sub-window when a recording runs long. Its output is
// the reference audio handed to the voice-cloning collaborator.
type SegmentOptimizer struct {
	minDuration    float64
	maxDuration    float64
	targetDuration float64
}

// NewSegmentOptimizer creates an optimizer with the given duration bounds in
// seconds.
func NewSegmentOptimizer(minDuration, maxDuration, targetDuration float64) *SegmentOptimizer {
	return &SegmentOptimizer{
		minDuration:    minDuration,
		maxDuration:    maxDuration,
		targetDuration: targetDuration,
	}
}

// ValidateAudio checks a PCM16 recording for use as cloning reference audio.
// It never fails on well-formed input in any other way than the returned
// reason: empty, too short, too long, silent, or clipped.
func (o *SegmentOptimizer) ValidateAudio(data []byte, sampleRate int) (bool, string) {
	if len(data) == 0 {
		return false, "audio data is empty"
	}

	samples := DecodePCM16(data)
	duration := float64(len(samples)) / float64(sampleRate)

	if duration < o.minDuration {
		return false, fmt.Sprintf("audio too short: %.2fs < %.2fs minimum", duration, o.minDuration)
	}
	if duration > o.maxDuration {
		return false, fmt.Sprintf("audio too long: %.2fs > %.2fs maximum", duration, o.maxDuration)
	}

	if RMS(Normalize(samples)) < silenceFloorRMS {
		return false, "audio appears to be silent or very quiet"
	}

	for _, s := range samples {
		amp := int(s)
		if amp < 0 {
			amp = -amp
		}
		if amp >= 32767 {
			return false, "audio appears to be clipped (too loud)"
		}
	}

	return true, "audio is valid"
}

// TrimAudio bounds a recording to the maximum duration by keeping the
// centered window, then adds silence padding of the requested lengths.
// Recordings shorter than the minimum are returned unchanged; rejecting them
// is ValidateAudio's job.
func (o *SegmentOptimizer) TrimAudio(data []byte, sampleRate int, startPadding, endPadding float64) ([]byte, float64) {
	samples := DecodePCM16(data)
	duration := float64(len(samples)) / float64(sampleRate)

	if duration < o.minDuration {
		return data, duration
	}

	if duration > o.maxDuration {
		samples = centerWindow(samples, int(o.maxDuration*float64(sampleRate)))
	}

	if startPadding > 0 || endPadding > 0 {
		startSilence := make([]int16, int(startPadding*float64(sampleRate)))
		endSilence := make([]int16, int(endPadding*float64(sampleRate)))
		padded := make([]int16, 0, len(startSilence)+len(samples)+len(endSilence))
		padded = append(padded, startSilence...)
		padded = append(padded, samples...)
		padded = append(padded, endSilence...)
		samples = padded
	}

	return EncodePCM16(samples), float64(len(samples)) / float64(sampleRate)
}

// FindOptimalSegment selects the sub-window of targetDuration seconds with
// the highest average frame energy. Recordings already within the target are
// returned unchanged. A non-positive targetDuration uses the configured
// default. Returns the segment bytes plus its start, end, and duration in
// seconds.
func (o *SegmentOptimizer) FindOptimalSegment(data []byte, sampleRate int, targetDuration float64) ([]byte, float64, float64, float64) {
	if targetDuration <= 0 {
		targetDuration = o.targetDuration
	}

	samples := DecodePCM16(data)
	totalDuration := float64(len(samples)) / float64(sampleRate)

	if totalDuration <= targetDuration {
		return data, 0.0, totalDuration, totalDuration
	}

	start, end := o.bestSegment(samples, sampleRate, targetDuration)
	segment := samples[start:end]

	return EncodePCM16(segment),
		float64(start) / float64(sampleRate),
		float64(end) / float64(sampleRate),
		float64(len(segment)) / float64(sampleRate)
}

// bestSegment slides a window of targetDuration in 100ms steps over the
// per-frame energy sequence and returns the sample range of the earliest
// window with the highest average energy, clamped to the recording tail.
func (o *SegmentOptimizer) bestSegment(samples []int16, sampleRate int, targetDuration float64) (int, int) {
	targetSamples := int(targetDuration * float64(sampleRate))
	frameSize := int(batchFrameSeconds * float64(sampleRate))

	var energies []float64
	for i := 0; i+frameSize < len(samples); i += frameSize {
		energies = append(energies, RMS(Normalize(samples[i:i+frameSize])))
	}

	if len(energies) == 0 {
		// Recording shorter than one frame: fall back to the centered window.
		start := (len(samples) - targetSamples) / 2
		if start < 0 {
			start = 0
		}
		end := start + targetSamples
		if end > len(samples) {
			end = len(samples)
		}
		return start, end
	}

	windowFrames := int(targetDuration * 10) // 10 frames per second
	maxEnergy := 0.0
	bestStart := 0
	bestEnd := targetSamples

	for i := 0; i+windowFrames <= len(energies); i++ {
		sum := 0.0
		for _, e := range energies[i : i+windowFrames] {
			sum += e
		}
		avg := sum / float64(windowFrames)

		// Strictly greater keeps the earliest window on ties.
		if avg > maxEnergy {
			maxEnergy = avg
			bestStart = i * frameSize
			bestEnd = bestStart + targetSamples
		}
	}

	if bestEnd > len(samples) {
		bestEnd = len(samples)
	}
	if bestEnd-targetSamples > 0 {
		bestStart = bestEnd - targetSamples
	} else {
		bestStart = 0
	}

	return bestStart, bestEnd
}

// centerWindow keeps the middle targetSamples of a recording.
func centerWindow(samples []int16, targetSamples int) []int16 {
	if len(samples) <= targetSamples {
		return samples
	}
	start := (len(samples) - targetSamples) / 2
	return samples[start : start+targetSamples]
}

// MinDuration returns the configured minimum duration in seconds.
func (o *SegmentOptimizer) MinDuration() float64 { return o.minDuration }

// MaxDuration returns the configured maximum duration in seconds.
func (o *SegmentOptimizer) MaxDuration() float64 { return o.maxDuration }

// TargetDuration returns the configured target duration in seconds.
func (o *SegmentOptimizer) TargetDuration() float64 { return o.targetDuration }
