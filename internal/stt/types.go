package stt

import (
	"context"
	"errors"
)

// Result is one transcription of a complete audio span.
type Result struct {
	// Text is the transcribed text.
	Text string

	// Confidence is the confidence score in [0, 1] if available.
	Confidence float64

	// Language is the detected or assumed language code.
	Language string
}

// ErrNoAudio is returned when a transcription request carries no samples.
var ErrNoAudio = errors.New("no audio samples to transcribe")

// Transcriber is the capability interface for speech-to-text backends. The
// backend may be slow or unavailable; callers bound each request with a
// context timeout and must tolerate failure without tearing down a session.
type Transcriber interface {
	// Transcribe converts normalized mono samples at the given sample rate
	// into text.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (*Result, error)
}

// HealthChecker is implemented by transcribers that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (bool, error)
}
