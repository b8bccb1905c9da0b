package audio

import (
	"sync"
	"time"
)

// StreamBuffer is a rolling store of the most recent audio for one session,
// plus an independently gated accumulation store that captures one utterance
// at a time. All methods take the buffer lock: the session receive loop and
// any background probing (level meters, silence timers) touch it concurrently.
type StreamBuffer struct {
	mu           sync.Mutex
	sampleRate   int
	capacity     int
	ring         []int16
	write        int
	count        int
	accumulating bool
	accumulated  []int16
	lastActivity time.Time
}

// NewStreamBuffer creates a buffer holding at most maxDuration seconds of
// audio at the given native sample rate.
func NewStreamBuffer(maxDuration float64, sampleRate int) *StreamBuffer {
	capacity := int(maxDuration * float64(sampleRate))
	if capacity < 1 {
		capacity = 1
	}
	return &StreamBuffer{
		sampleRate:   sampleRate,
		capacity:     capacity,
		ring:         make([]int16, capacity),
		lastActivity: time.Now(),
	}
}

// AddAudio decodes a PCM16 chunk, resamples it to the buffer's native rate if
// needed, and appends it to the ring store, evicting the oldest samples once
// full. While accumulating, the chunk is also appended to the utterance store.
func (b *StreamBuffer) AddAudio(data []byte, sourceRate int) {
	samples := DecodePCM16(data)
	if sourceRate != b.sampleRate {
		samples = Resample(samples, sourceRate, b.sampleRate)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range samples {
		b.ring[b.write] = s
		b.write = (b.write + 1) % b.capacity
		if b.count < b.capacity {
			b.count++
		}
	}

	if b.accumulating {
		b.accumulated = append(b.accumulated, samples...)
	}
	b.lastActivity = time.Now()
}

// StartAccumulation begins capturing a new utterance. Any previously
// accumulated samples are discarded; accumulation windows never overlap.
func (b *StreamBuffer) StartAccumulation() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accumulating = true
	b.accumulated = b.accumulated[:0]
}

// StopAccumulation freezes the accumulation store until the next
// StartAccumulation.
func (b *StreamBuffer) StopAccumulation() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accumulating = false
}

// IsAccumulating reports whether an utterance is currently being captured.
func (b *StreamBuffer) IsAccumulating() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accumulating
}

// Audio returns the accumulated utterance normalized to [-1, 1], or nil if
// nothing has been accumulated.
func (b *StreamBuffer) Audio() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.accumulated) == 0 {
		return nil
	}
	return Normalize(b.accumulated)
}

// RecentAudio returns up to the last duration seconds from the ring store,
// normalized to [-1, 1], or nil if the buffer is empty.
func (b *StreamBuffer) RecentAudio(duration float64) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := int(duration * float64(b.sampleRate))
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}

	samples := make([]int16, n)
	start := (b.write - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		samples[i] = b.ring[(start+i)%b.capacity]
	}
	return Normalize(samples)
}

// IsSilent reports whether the RMS energy of the last duration seconds is
// below threshold. An empty buffer counts as silent.
func (b *StreamBuffer) IsSilent(threshold, duration float64) bool {
	recent := b.RecentAudio(duration)
	if recent == nil {
		return true
	}
	return RMS(recent) < threshold
}

// AudioLevel returns the RMS level of the last 100ms, clamped to [0, 1].
func (b *StreamBuffer) AudioLevel() float64 {
	recent := b.RecentAudio(0.1)
	if recent == nil {
		return 0.0
	}
	level := RMS(recent)
	if level > 1.0 {
		level = 1.0
	}
	return level
}

// Len returns the number of samples currently in the ring store.
func (b *StreamBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the fixed sample capacity of the ring store.
func (b *StreamBuffer) Capacity() int {
	return b.capacity
}

// Duration returns the length of the accumulated utterance in seconds.
func (b *StreamBuffer) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(len(b.accumulated)) / float64(b.sampleRate)
}

// BufferDuration returns the length of the ring store contents in seconds.
func (b *StreamBuffer) BufferDuration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.count) / float64(b.sampleRate)
}

// SampleRate returns the buffer's native sample rate.
func (b *StreamBuffer) SampleRate() int {
	return b.sampleRate
}

// Clear empties both stores and stops accumulation.
func (b *StreamBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.write = 0
	b.count = 0
	b.accumulated = nil
	b.accumulating = false
}

// Stats returns a snapshot of the buffer state for status reporting.
func (b *StreamBuffer) Stats() map[string]interface{} {
	b.mu.Lock()
	bufferSamples := b.count
	accumulated := len(b.accumulated)
	accumulating := b.accumulating
	lastActivity := b.lastActivity
	b.mu.Unlock()

	return map[string]interface{}{
		"buffer_samples":       bufferSamples,
		"buffer_duration":      float64(bufferSamples) / float64(b.sampleRate),
		"accumulated_samples":  accumulated,
		"accumulated_duration": float64(accumulated) / float64(b.sampleRate),
		"is_accumulating":      accumulating,
		"last_activity":        lastActivity,
		"audio_level":          b.AudioLevel(),
	}
}
