package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voicecraft/asr-gateway/internal/audio"
	"github.com/voicecraft/asr-gateway/internal/config"
	"github.com/voicecraft/asr-gateway/internal/observability"
	"github.com/voicecraft/asr-gateway/internal/resilience"
	"github.com/voicecraft/asr-gateway/internal/session"
	"github.com/voicecraft/asr-gateway/internal/stt"
)

// maxUploadBytes caps raw PCM16 request bodies. 16MB covers well over the
// maximum reference duration at 16kHz.
const maxUploadBytes = 16 << 20

// Handlers serves the non-streaming HTTP surface: batch transcription,
// service status, and reference-audio preparation for the voice-cloning
// collaborator.
type Handlers struct {
	cfg         *config.Config
	transcriber stt.Transcriber
	optimizer   *audio.SegmentOptimizer
	manager     *session.Manager
	retry       *resilience.RetryConfig
	logger      zerolog.Logger
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(cfg *config.Config, transcriber stt.Transcriber, optimizer *audio.SegmentOptimizer, manager *session.Manager) *Handlers {
	return &Handlers{
		cfg:         cfg,
		transcriber: transcriber,
		optimizer:   optimizer,
		manager:     manager,
		retry: &resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		},
		logger: observability.GetLogger().With().Str("component", "http_handlers").Logger(),
	}
}

// HandleTranscribe serves POST /transcribe?sample_rate=<hz>&language_hint=<bcp47>
// with a raw PCM16 mono body. Transient backend failures are retried with
// exponential backoff before an error is reported.
func (h *Handlers) HandleTranscribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
				"status": "error", "message": "method not allowed",
			})
			return
		}

		sampleRate := queryInt(r, "sample_rate", h.cfg.SampleRate)
		languageHint := r.URL.Query().Get("language_hint")
		if languageHint == "" {
			languageHint = h.cfg.LanguageHint
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"status": "error", "message": "failed to read audio body",
			})
			return
		}
		if len(data) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"status": "error", "message": "audio body is empty",
			})
			return
		}

		samples := audio.Normalize(audio.DecodePCM16(data))
		duration := float64(len(samples)) / float64(sampleRate)

		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.cfg.TranscribeTimeout)*time.Second)
		defer cancel()

		var result *stt.Result
		err = resilience.Retry(ctx, func() error {
			var callErr error
			result, callErr = h.transcriber.Transcribe(ctx, samples, sampleRate)
			return callErr
		}, h.retry, resilience.IsRetryableNetworkError)

		if err != nil {
			observability.RecordBatchTranscription(false)
			h.logger.Error().Err(err).Float64("duration", duration).Msg("batch transcription failed")
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"status": "error", "message": "transcription failed",
			})
			return
		}

		observability.RecordBatchTranscription(true)
		language := result.Language
		if language == "" {
			language = languageHint
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"text":       result.Text,
			"confidence": result.Confidence,
			"language":   language,
			"duration":   duration,
		})
	}
}

// HandleStatus serves GET /status with service limits and the live session
// count.
func (h *Handlers) HandleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":              "ok",
			"active_connections":  h.manager.ActiveSessionCount(),
			"supported_languages": h.cfg.SupportedLanguages,
			"max_duration":        h.optimizer.MaxDuration(),
			"min_duration":        h.optimizer.MinDuration(),
			"sample_rate":         h.cfg.SampleRate,
		})
	}
}

// HandleVoiceReference serves POST /voice/reference?sample_rate=<hz>&target_duration=<s>
// with a raw PCM16 mono body. The recording is validated and the most
// speech-dense window is extracted; the response carries the segment timing
// the cloning collaborator needs alongside a fresh voice ID.
func (h *Handlers) HandleVoiceReference() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
				"status": "error", "message": "method not allowed",
			})
			return
		}

		sampleRate := queryInt(r, "sample_rate", h.cfg.SampleRate)
		targetDuration := queryFloat(r, "target_duration", 0)

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"status": "error", "message": "failed to read audio body",
			})
			return
		}

		totalDuration := float64(len(data)/2) / float64(sampleRate)

		if ok, reason := h.optimizer.ValidateAudio(data, sampleRate); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"status": "error", "message": reason,
			})
			return
		}

		segment, start, end, duration := h.optimizer.FindOptimalSegment(data, sampleRate, targetDuration)
		voiceID := uuid.New().String()

		h.logger.Info().
			Str("voice_id", voiceID).
			Float64("total_duration", totalDuration).
			Float64("segment_start", start).
			Float64("segment_end", end).
			Msg("reference segment selected")

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"voice_id":       voiceID,
			"start_time":     start,
			"end_time":       end,
			"duration":       duration,
			"total_duration": totalDuration,
			"segment_bytes":  len(segment),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
