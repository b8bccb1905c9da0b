package audio

import (
	"sort"
	"time"
)

// VADConfig holds configuration for voice activity detection.
type VADConfig struct {
	EnergyThreshold   float64 // fixed RMS floor for speech detection
	SilenceDuration   float64 // seconds of silence that commit speech end
	MinSpeechDuration float64 // minimum seconds for a valid utterance
	FrameSize         int     // samples per analysis frame
	SampleRate        int     // audio sample rate in Hz
}

// DefaultVADConfig returns the detection defaults for 16kHz speech.
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold:   0.01,
		SilenceDuration:   0.5,
		MinSpeechDuration: 0.1,
		FrameSize:         1024, // ~64ms at 16kHz
		SampleRate:        16000,
	}
}

const (
	energyHistorySize = 10
	noiseFloorWindow  = 5
	batchFrameSeconds = 0.1
)

// VoiceActivityDetector classifies audio frames as speech or silence using an
// adaptive energy threshold, and runs a hysteresis state machine that turns
// frame decisions into committed utterance boundaries. It is session-local
// and needs no locking of its own.
type VoiceActivityDetector struct {
	config *VADConfig

	isSpeaking       bool
	speechStartTime  time.Time
	silenceStartTime time.Time
	hasSpeechStart   bool
	hasSilenceStart  bool

	energyHistory     []float64
	adaptiveThreshold float64
	noiseFloor        float64

	lastUtteranceDuration float64

	// now is replaceable so tests can drive the hysteresis timers.
	now func() time.Time
}

// NewVoiceActivityDetector creates a detector with the given configuration,
// falling back to defaults when config is nil.
func NewVoiceActivityDetector(config *VADConfig) *VoiceActivityDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VoiceActivityDetector{
		config:            config,
		adaptiveThreshold: config.EnergyThreshold,
		noiseFloor:        config.EnergyThreshold * 0.5,
		now:               time.Now,
	}
}

// DetectVoiceActivity processes one PCM16 frame and returns the committed
// speaking state after the hysteresis update — not whether this particular
// frame was voiced.
func (v *VoiceActivityDetector) DetectVoiceActivity(data []byte) bool {
	frame := Normalize(DecodePCM16(data))
	energy := RMS(frame)

	v.pushEnergy(energy)
	v.updateAdaptiveThreshold()

	isVoice := v.analyzeFrame(energy)
	v.updateState(isVoice)

	return v.isSpeaking
}

// IsSpeaking returns the current committed speaking state.
func (v *VoiceActivityDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// Reset clears all state back to the fixed threshold with empty history.
func (v *VoiceActivityDetector) Reset() {
	v.isSpeaking = false
	v.hasSpeechStart = false
	v.hasSilenceStart = false
	v.energyHistory = v.energyHistory[:0]
	v.adaptiveThreshold = v.config.EnergyThreshold
	v.noiseFloor = v.config.EnergyThreshold * 0.5
}

func (v *VoiceActivityDetector) pushEnergy(energy float64) {
	v.energyHistory = append(v.energyHistory, energy)
	if len(v.energyHistory) > energyHistorySize {
		v.energyHistory = v.energyHistory[1:]
	}
}

// updateAdaptiveThreshold recomputes the noise floor as the 20th percentile
// of the last five frame energies, and raises the detection threshold to
// three times that floor when background noise dominates the fixed setting.
func (v *VoiceActivityDetector) updateAdaptiveThreshold() {
	if len(v.energyHistory) < noiseFloorWindow {
		return
	}
	recent := v.energyHistory[len(v.energyHistory)-noiseFloorWindow:]
	floor := percentile(recent, 20)

	v.noiseFloor = floor
	v.adaptiveThreshold = v.config.EnergyThreshold
	if floor*3.0 > v.adaptiveThreshold {
		v.adaptiveThreshold = floor * 3.0
	}
}

// analyzeFrame classifies a single frame. A frame is voiced if its energy
// clears the adaptive threshold, if it rose sharply relative to the previous
// frame (onset), or if the last three frames all sit near the threshold
// (sustained energy). The current frame's energy is already in the history.
func (v *VoiceActivityDetector) analyzeFrame(energy float64) bool {
	threshold := v.adaptiveThreshold

	if energy >= threshold {
		return true
	}

	n := len(v.energyHistory)
	if n >= 2 && energy-v.energyHistory[n-2] >= threshold*0.5 {
		return true
	}

	if n >= 3 {
		sustained := true
		for _, e := range v.energyHistory[n-3:] {
			if e < threshold*0.8 {
				sustained = false
				break
			}
		}
		if sustained {
			return true
		}
	}

	return false
}

func (v *VoiceActivityDetector) updateState(isVoice bool) {
	currentTime := v.now()

	if isVoice {
		if !v.isSpeaking {
			v.isSpeaking = true
			v.speechStartTime = currentTime
			v.hasSpeechStart = true
			v.hasSilenceStart = false
		}
		// Voiced frames while speaking clear any pending silence timer.
		v.hasSilenceStart = false
		return
	}

	if !v.isSpeaking {
		return
	}

	if !v.hasSilenceStart {
		v.silenceStartTime = currentTime
		v.hasSilenceStart = true
		return
	}

	if currentTime.Sub(v.silenceStartTime).Seconds() >= v.config.SilenceDuration {
		// Speech end commits regardless of utterance length; spans shorter
		// than the minimum are discarded as noise rather than recorded.
		if v.hasSpeechStart {
			speechDuration := v.silenceStartTime.Sub(v.speechStartTime).Seconds()
			if speechDuration >= v.config.MinSpeechDuration {
				v.lastUtteranceDuration = speechDuration
			}
		}
		v.isSpeaking = false
		v.hasSpeechStart = false
		v.hasSilenceStart = false
	}
}

// Segment describes one contiguous voiced span of a recording in seconds.
type Segment struct {
	Start    float64
	End      float64
	Duration float64
}

// SpeechSegments slides fixed 100ms frames over a whole recording, applies
// the energy threshold without the hysteresis timers, and coalesces
// contiguous voiced frames into segments. Segments shorter than the minimum
// speech duration are discarded.
func (v *VoiceActivityDetector) SpeechSegments(data []byte, sampleRate int) []Segment {
	samples := Normalize(DecodePCM16(data))
	frameSamples := int(batchFrameSeconds * float64(sampleRate))
	if frameSamples < 1 {
		frameSamples = 1
	}

	var segments []Segment
	var current *Segment

	flush := func() {
		if current == nil {
			return
		}
		current.Duration = current.End - current.Start
		if current.Duration >= v.config.MinSpeechDuration {
			segments = append(segments, *current)
		}
		current = nil
	}

	for i := 0; i < len(samples); i += frameSamples {
		end := i + frameSamples
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[i:end]
		if len(frame) == 0 {
			break
		}

		energy := RMS(frame)
		frameTime := float64(i) / float64(sampleRate)

		if energy > v.adaptiveThreshold {
			if current == nil {
				current = &Segment{Start: frameTime, End: frameTime}
			} else {
				current.End = frameTime
			}
		} else {
			flush()
		}
	}
	flush()

	return segments
}

// Stats returns a snapshot of the detector state for status reporting.
func (v *VoiceActivityDetector) Stats() map[string]interface{} {
	return map[string]interface{}{
		"is_speaking":           v.isSpeaking,
		"energy_threshold":      v.config.EnergyThreshold,
		"adaptive_threshold":    v.adaptiveThreshold,
		"noise_floor":           v.noiseFloor,
		"energy_history_length": len(v.energyHistory),
		"last_utterance":        v.lastUtteranceDuration,
	}
}

// percentile computes the p-th percentile of values with linear
// interpolation between ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100.0 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
