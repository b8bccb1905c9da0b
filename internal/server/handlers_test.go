package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicecraft/asr-gateway/internal/audio"
	"github.com/voicecraft/asr-gateway/internal/config"
	"github.com/voicecraft/asr-gateway/internal/observability"
	"github.com/voicecraft/asr-gateway/internal/session"
	"github.com/voicecraft/asr-gateway/internal/stt"
)

func TestMain(m *testing.M) {
	observability.InitLogger("error", false)
	m.Run()
}

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "8080",
		SampleRate:           16000,
		BufferMaxDuration:    30.0,
		VADEnergyThreshold:   0.01,
		VADSilenceDuration:   0.5,
		VADMinSpeechDuration: 0.1,
		VADFrameSize:         1024,
		TrimMinDuration:      5.0,
		TrimMaxDuration:      20.0,
		TrimTargetDuration:   10.0,
		PartialInterval:      1.0,
		LanguageHint:         "en",
		SupportedLanguages:   []string{"en", "es", "fr"},
		TranscribeTimeout:    5,
		RetryMaxAttempts:     2,
		RetryInitialBackoff:  1,
	}
}

type stubTranscriber struct {
	result *stt.Result
	err    error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*stt.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testHandlers(transcriber stt.Transcriber) *Handlers {
	cfg := testConfig()
	manager := session.NewManager(cfg, transcriber)
	optimizer := audio.NewSegmentOptimizer(cfg.TrimMinDuration, cfg.TrimMaxDuration, cfg.TrimTargetDuration)
	return NewHandlers(cfg, transcriber, optimizer, manager)
}

func tonePCM(amplitude int16, duration float64, sampleRate int) []byte {
	n := int(duration * float64(sampleRate))
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(float64(amplitude) * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return audio.EncodePCM16(samples)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	return body
}

func TestHandleStatus(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	rec := httptest.NewRecorder()
	h.HandleStatus()(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)

	if body["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", body["status"])
	}
	if body["active_connections"].(float64) != 0 {
		t.Errorf("Expected 0 active connections, got %v", body["active_connections"])
	}
	if body["max_duration"].(float64) != 20.0 {
		t.Errorf("Expected max_duration 20, got %v", body["max_duration"])
	}
	if body["min_duration"].(float64) != 5.0 {
		t.Errorf("Expected min_duration 5, got %v", body["min_duration"])
	}
	if body["sample_rate"].(float64) != 16000 {
		t.Errorf("Expected sample_rate 16000, got %v", body["sample_rate"])
	}
	if langs := body["supported_languages"].([]interface{}); len(langs) != 3 {
		t.Errorf("Expected 3 supported languages, got %d", len(langs))
	}
}

func TestHandleTranscribe(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{Text: "hello world", Confidence: 0.9, Language: "en"}})

	req := httptest.NewRequest(http.MethodPost, "/transcribe?sample_rate=16000&language_hint=en",
		bytes.NewReader(tonePCM(8000, 2.0, 16000)))
	rec := httptest.NewRecorder()
	h.HandleTranscribe()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)

	if body["status"] != "ok" || body["text"] != "hello world" {
		t.Errorf("Unexpected response: %v", body)
	}
	if d := body["duration"].(float64); d != 2.0 {
		t.Errorf("Expected duration 2.0, got %v", d)
	}
}

func TestHandleTranscribe_EmptyBody(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	rec := httptest.NewRecorder()
	h.HandleTranscribe()(rec, httptest.NewRequest(http.MethodPost, "/transcribe", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty body, got %d", rec.Code)
	}
}

func TestHandleTranscribe_MethodNotAllowed(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	rec := httptest.NewRecorder()
	h.HandleTranscribe()(rec, httptest.NewRequest(http.MethodGet, "/transcribe", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestHandleTranscribe_BackendFailure(t *testing.T) {
	h := testHandlers(&stubTranscriber{err: errors.New("boom")})

	req := httptest.NewRequest(http.MethodPost, "/transcribe",
		bytes.NewReader(tonePCM(8000, 2.0, 16000)))
	rec := httptest.NewRecorder()
	h.HandleTranscribe()(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 from failing backend, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "error" {
		t.Errorf("Expected error status, got %v", body["status"])
	}
}

func TestHandleVoiceReference(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	req := httptest.NewRequest(http.MethodPost, "/voice/reference?sample_rate=16000",
		bytes.NewReader(tonePCM(8000, 10.0, 16000)))
	rec := httptest.NewRecorder()
	h.HandleVoiceReference()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)

	if body["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", body["status"])
	}
	if body["voice_id"] == "" {
		t.Error("Expected a voice ID")
	}
	if d := body["duration"].(float64); d != 10.0 {
		t.Errorf("Expected duration 10.0, got %v", d)
	}
}

func TestHandleVoiceReference_OverTargetExtractsSegment(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	// 15 seconds is within the 5-20s bounds but over the 10s target, so the
	// optimal-segment search extracts a target-length window.
	req := httptest.NewRequest(http.MethodPost, "/voice/reference?sample_rate=16000",
		bytes.NewReader(tonePCM(8000, 15.0, 16000)))
	rec := httptest.NewRecorder()
	h.HandleVoiceReference()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)

	if d := body["duration"].(float64); d < 9.9 || d > 10.1 {
		t.Errorf("Expected ~10.0s segment, got %v", d)
	}
	if total := body["total_duration"].(float64); total != 15.0 {
		t.Errorf("Expected total_duration 15.0, got %v", total)
	}
}

func TestHandleVoiceReference_TooLong(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	req := httptest.NewRequest(http.MethodPost, "/voice/reference?sample_rate=16000",
		bytes.NewReader(tonePCM(8000, 25.0, 16000)))
	rec := httptest.NewRecorder()
	h.HandleVoiceReference()(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a clip over the maximum, got %d", rec.Code)
	}
}

func TestHandleVoiceReference_TooShort(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	req := httptest.NewRequest(http.MethodPost, "/voice/reference?sample_rate=16000",
		bytes.NewReader(tonePCM(8000, 2.0, 16000)))
	rec := httptest.NewRecorder()
	h.HandleVoiceReference()(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a clip under the minimum, got %d", rec.Code)
	}
}

func TestHandleVoiceReference_Silent(t *testing.T) {
	h := testHandlers(&stubTranscriber{result: &stt.Result{}})

	req := httptest.NewRequest(http.MethodPost, "/voice/reference?sample_rate=16000",
		bytes.NewReader(make([]byte, 10*16000*2)))
	rec := httptest.NewRecorder()
	h.HandleVoiceReference()(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for silent audio, got %d", rec.Code)
	}
}
