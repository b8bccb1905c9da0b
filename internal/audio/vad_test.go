package audio

import (
	"testing"
	"time"
)

// testVAD returns a detector with default config and a manually advanced
// clock, so hysteresis timers are driven by the test instead of wall time.
func testVAD() (*VoiceActivityDetector, *time.Time) {
	vad := NewVoiceActivityDetector(nil)
	now := time.Unix(0, 0)
	vad.now = func() time.Time { return now }
	return vad, &now
}

func TestVAD_QuietFramesStaySilent(t *testing.T) {
	vad, now := testVAD()
	quiet := constantPCM(100, 1024) // RMS ~0.003, below the 0.01 threshold

	for i := 0; i < 20; i++ {
		*now = now.Add(64 * time.Millisecond)
		if vad.DetectVoiceActivity(quiet) {
			t.Fatalf("Expected silence on frame %d", i)
		}
	}
}

func TestVAD_LoudFrameStartsSpeech(t *testing.T) {
	vad, now := testVAD()
	*now = now.Add(64 * time.Millisecond)

	if !vad.DetectVoiceActivity(constantPCM(8000, 1024)) {
		t.Error("Expected speaking state after a loud frame")
	}
	if !vad.IsSpeaking() {
		t.Error("Expected IsSpeaking true after a loud frame")
	}
}

func TestVAD_UtteranceLifecycle(t *testing.T) {
	vad, now := testVAD()
	loud := constantPCM(8000, 1024)
	quiet := constantPCM(100, 1024)

	starts, ends := 0, 0
	prev := false
	step := func(frame []byte) {
		*now = now.Add(64 * time.Millisecond)
		speaking := vad.DetectVoiceActivity(frame)
		if speaking && !prev {
			starts++
		}
		if !speaking && prev {
			ends++
		}
		prev = speaking
	}

	// 192ms of speech, above the 100ms minimum.
	for i := 0; i < 3; i++ {
		step(loud)
	}
	// Well over the 500ms silence hysteresis.
	for i := 0; i < 12; i++ {
		step(quiet)
	}

	if starts != 1 || ends != 1 {
		t.Errorf("Expected exactly one SILENT->SPEAKING->SILENT cycle, got %d starts, %d ends", starts, ends)
	}
	if vad.IsSpeaking() {
		t.Error("Expected silent state after the utterance ended")
	}
	if vad.lastUtteranceDuration < 0.1 {
		t.Errorf("Expected utterance duration >= 0.1s, got %f", vad.lastUtteranceDuration)
	}
}

func TestVAD_BriefSilenceDoesNotEndUtterance(t *testing.T) {
	vad, now := testVAD()
	loud := constantPCM(8000, 1024)
	quiet := constantPCM(100, 1024)

	*now = now.Add(64 * time.Millisecond)
	vad.DetectVoiceActivity(loud)

	// 192ms of silence, below the 500ms hysteresis.
	for i := 0; i < 3; i++ {
		*now = now.Add(64 * time.Millisecond)
		if !vad.DetectVoiceActivity(quiet) {
			t.Fatalf("Expected speaking to persist through brief silence (frame %d)", i)
		}
	}
}

func TestVAD_ShortBlipDiscardedAsNoise(t *testing.T) {
	vad, now := testVAD()
	loud := constantPCM(8000, 1024)
	quiet := constantPCM(100, 1024)

	// One 64ms voiced frame, under the 100ms minimum.
	*now = now.Add(64 * time.Millisecond)
	vad.DetectVoiceActivity(loud)
	*now = now.Add(32 * time.Millisecond)
	vad.DetectVoiceActivity(quiet)

	// Let the silence hysteresis commit.
	for i := 0; i < 10; i++ {
		*now = now.Add(100 * time.Millisecond)
		vad.DetectVoiceActivity(quiet)
	}

	if vad.IsSpeaking() {
		t.Error("Expected transition back to silent even for a discarded blip")
	}
	if vad.lastUtteranceDuration != 0 {
		t.Errorf("Expected blip shorter than minimum to be discarded, recorded %f", vad.lastUtteranceDuration)
	}
}

func TestVAD_AdaptiveThresholdTracksNoiseFloor(t *testing.T) {
	vad, now := testVAD()

	// Background noise loud enough that 3x its floor exceeds the fixed
	// threshold: RMS of constant 400 is ~0.0122.
	noise := constantPCM(400, 1024)
	for i := 0; i < 6; i++ {
		*now = now.Add(64 * time.Millisecond)
		vad.DetectVoiceActivity(noise)
	}

	if vad.adaptiveThreshold <= vad.config.EnergyThreshold {
		t.Errorf("Expected adaptive threshold above fixed %f, got %f",
			vad.config.EnergyThreshold, vad.adaptiveThreshold)
	}
	if vad.noiseFloor <= 0 {
		t.Errorf("Expected positive noise floor, got %f", vad.noiseFloor)
	}
}

func TestVAD_OnsetDetection(t *testing.T) {
	vad := NewVoiceActivityDetector(nil)

	// Noise floor 0.0122 pushes the adaptive threshold to ~0.0366. An energy
	// of 0.032 sits below that, but the rise from the previous frame exceeds
	// half the threshold, so the onset rule fires.
	for i := 0; i < 5; i++ {
		vad.pushEnergy(0.0122)
	}
	vad.updateAdaptiveThreshold()

	vad.pushEnergy(0.032)
	vad.updateAdaptiveThreshold()
	if vad.adaptiveThreshold <= 0.032 {
		t.Fatalf("Test setup: expected threshold above 0.032, got %f", vad.adaptiveThreshold)
	}
	if !vad.analyzeFrame(0.032) {
		t.Error("Expected sharp energy rise to be classified as voice onset")
	}

	// A small step from the floor is below threshold and below the onset
	// rise, so it stays unvoiced.
	vad.pushEnergy(0.013)
	if vad.analyzeFrame(0.013) {
		t.Error("Expected small energy step to stay unvoiced")
	}
}

func TestVAD_Reset(t *testing.T) {
	vad, now := testVAD()

	for i := 0; i < 6; i++ {
		*now = now.Add(64 * time.Millisecond)
		vad.DetectVoiceActivity(constantPCM(8000, 1024))
	}
	if !vad.IsSpeaking() {
		t.Fatal("Expected speaking before reset")
	}

	vad.Reset()

	if vad.IsSpeaking() {
		t.Error("Expected silent state after reset")
	}
	if len(vad.energyHistory) != 0 {
		t.Errorf("Expected empty energy history after reset, got %d entries", len(vad.energyHistory))
	}
	if vad.adaptiveThreshold != vad.config.EnergyThreshold {
		t.Errorf("Expected threshold back at fixed %f, got %f",
			vad.config.EnergyThreshold, vad.adaptiveThreshold)
	}
}

func TestVAD_SpeechSegments(t *testing.T) {
	vad := NewVoiceActivityDetector(nil)
	rate := 16000

	// 0.5s silence, 1.0s speech, 1.0s silence.
	recording := append([]byte{}, constantPCM(0, rate/2)...)
	recording = append(recording, sinePCM(440, 8000, 1.0, rate)...)
	recording = append(recording, constantPCM(0, rate)...)

	segments := vad.SpeechSegments(recording, rate)

	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(segments))
	}
	seg := segments[0]
	if seg.Start < 0.4 || seg.Start > 0.6 {
		t.Errorf("Expected segment start near 0.5s, got %f", seg.Start)
	}
	if seg.End < 1.3 || seg.End > 1.6 {
		t.Errorf("Expected segment end near 1.5s, got %f", seg.End)
	}
	if seg.Duration < vad.config.MinSpeechDuration {
		t.Errorf("Expected duration >= minimum, got %f", seg.Duration)
	}
}

func TestVAD_SpeechSegments_DiscardsShortBlips(t *testing.T) {
	config := DefaultVADConfig()
	config.MinSpeechDuration = 0.3
	vad := NewVoiceActivityDetector(config)
	rate := 16000

	// A single 100ms burst coalesces into a zero-length segment and a 200ms
	// burst into a 100ms one; both fall under the 300ms minimum.
	recording := append([]byte{}, constantPCM(0, rate/2)...)
	recording = append(recording, sinePCM(440, 8000, 0.1, rate)...)
	recording = append(recording, constantPCM(0, rate/2)...)
	recording = append(recording, sinePCM(440, 8000, 0.2, rate)...)
	recording = append(recording, constantPCM(0, rate/2)...)

	if segments := vad.SpeechSegments(recording, rate); len(segments) != 0 {
		t.Errorf("Expected no segments from short blips, got %d", len(segments))
	}
}

func TestVAD_Stats(t *testing.T) {
	vad, now := testVAD()

	for i := 0; i < 4; i++ {
		*now = now.Add(64 * time.Millisecond)
		vad.DetectVoiceActivity(constantPCM(8000, 1024))
	}

	stats := vad.Stats()
	if !stats["is_speaking"].(bool) {
		t.Error("Expected is_speaking true")
	}
	if stats["energy_threshold"].(float64) != vad.config.EnergyThreshold {
		t.Errorf("Expected energy_threshold %f, got %v", vad.config.EnergyThreshold, stats["energy_threshold"])
	}
	if stats["energy_history_length"].(int) != 4 {
		t.Errorf("Expected 4 history entries, got %v", stats["energy_history_length"])
	}
	if stats["adaptive_threshold"].(float64) < vad.config.EnergyThreshold {
		t.Errorf("Expected adaptive threshold at or above fixed, got %v", stats["adaptive_threshold"])
	}
}

func TestDefaultVADConfig(t *testing.T) {
	config := DefaultVADConfig()
	if config.EnergyThreshold != 0.01 {
		t.Errorf("Expected default EnergyThreshold 0.01, got %f", config.EnergyThreshold)
	}
	if config.SilenceDuration != 0.5 {
		t.Errorf("Expected default SilenceDuration 0.5, got %f", config.SilenceDuration)
	}
	if config.MinSpeechDuration != 0.1 {
		t.Errorf("Expected default MinSpeechDuration 0.1, got %f", config.MinSpeechDuration)
	}
	if config.FrameSize != 1024 {
		t.Errorf("Expected default FrameSize 1024, got %d", config.FrameSize)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	if p := percentile(values, 0); p != 1 {
		t.Errorf("Expected 0th percentile 1, got %f", p)
	}
	if p := percentile(values, 100); p != 5 {
		t.Errorf("Expected 100th percentile 5, got %f", p)
	}
	if p := percentile(values, 50); p != 3 {
		t.Errorf("Expected 50th percentile 3, got %f", p)
	}
}
