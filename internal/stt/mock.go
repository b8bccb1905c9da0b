package stt

import (
	"context"
	"fmt"
)

// MockTranscriber is a deterministic stand-in used when no backend API key is
// configured, and by tests. It never fails on well-formed input: runtime
// backend failures must come from a real backend and surface as protocol
// errors, never as fabricated text.
type MockTranscriber struct {
	Language string
}

// NewMockTranscriber creates a mock transcriber reporting the given language.
func NewMockTranscriber(language string) *MockTranscriber {
	if language == "" {
		language = "en"
	}
	return &MockTranscriber{Language: language}
}

// Transcribe returns canned text with a confidence that grows with the
// recording length, capped at 0.95.
func (m *MockTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	duration := float64(len(samples)) / float64(sampleRate)
	confidence := 0.7 + duration/10.0
	if confidence > 0.95 {
		confidence = 0.95
	}

	return &Result{
		Text:       fmt.Sprintf("mock transcription of %.1fs of audio", duration),
		Confidence: confidence,
		Language:   m.Language,
	}, nil
}

// HealthCheck always reports healthy.
func (m *MockTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	return true, nil
}
