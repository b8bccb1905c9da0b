package stt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/voicecraft/asr-gateway/internal/audio"
	"github.com/voicecraft/asr-gateway/internal/observability"
	"github.com/voicecraft/asr-gateway/internal/resilience"
)

// DeepgramTranscriber implements Transcriber using Deepgram's prerecorded
// REST API. Each accumulated utterance is sent as one linear16 request; a
// circuit breaker keeps a dead backend from being hammered by every session.
type DeepgramTranscriber struct {
	client   *listenv1rest.Client
	model    string
	language string
	breaker  *resilience.CircuitBreaker
}

// DeepgramOptions configures a DeepgramTranscriber.
type DeepgramOptions struct {
	APIKey              string
	Model               string
	Language            string
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// NewDeepgramTranscriber creates a transcriber backed by the Deepgram REST API.
func NewDeepgramTranscriber(opts DeepgramOptions) (*DeepgramTranscriber, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}
	if opts.Model == "" {
		opts.Model = "nova-2"
	}
	if opts.BreakerMaxFailures <= 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerResetTimeout <= 0 {
		opts.BreakerResetTimeout = 30 * time.Second
	}

	restClient := listenClient.NewREST(opts.APIKey, &interfaces.ClientOptions{})

	return &DeepgramTranscriber{
		client:   listenv1rest.New(restClient),
		model:    opts.Model,
		language: opts.Language,
		breaker:  resilience.NewCircuitBreaker("deepgram", opts.BreakerMaxFailures, opts.BreakerResetTimeout),
	}, nil
}

// Transcribe sends the samples to Deepgram as linear16 PCM and returns the
// best alternative of the first channel.
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*Result, error) {
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	pcm := audio.EncodePCM16(denormalize(samples))

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:      d.model,
		Language:   d.language,
		Punctuate:  true,
		Encoding:   "linear16",
		Channels:   1,
		SampleRate: sampleRate,
	}

	var result *Result
	err := d.breaker.Call(func() error {
		response, err := d.client.FromStream(ctx, bytes.NewReader(pcm), options)
		if err != nil {
			return fmt.Errorf("deepgram request failed: %w", err)
		}

		if len(response.Results.Channels) == 0 || len(response.Results.Channels[0].Alternatives) == 0 {
			return fmt.Errorf("deepgram returned no transcription alternatives")
		}

		alt := response.Results.Channels[0].Alternatives[0]
		language := d.language
		if detected := response.Results.Channels[0].DetectedLanguage; detected != "" {
			language = detected
		}

		result = &Result{
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Language:   language,
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(d.breaker.State()))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HealthCheck reports whether the breaker currently admits requests.
func (d *DeepgramTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	if d.breaker.State() == resilience.StateOpen {
		return false, fmt.Errorf("deepgram circuit breaker is open")
	}
	return true, nil
}

// denormalize converts [-1, 1] samples back to 16-bit PCM values.
func denormalize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32767.0
		if v > 32767.0 {
			v = 32767.0
		} else if v < -32768.0 {
			v = -32768.0
		}
		out[i] = int16(v)
	}
	return out
}
