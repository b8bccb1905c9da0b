package session

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voicecraft/asr-gateway/internal/audio"
	"github.com/voicecraft/asr-gateway/internal/config"
	"github.com/voicecraft/asr-gateway/internal/observability"
	"github.com/voicecraft/asr-gateway/internal/stt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins during capture.
		return true
	},
}

// endOfUtterance is the text frame a client sends to force finalization
// without disconnecting.
const endOfUtterance = "end"

// levelProbeInterval is how often the background task samples the buffer's
// audio level.
const levelProbeInterval = 500 * time.Millisecond

// Manager owns the registry of active streaming sessions and translates the
// wire protocol into buffer, VAD, and transcriber calls. Each manager
// instance is fully self-contained, so tests can run several side by side.
type Manager struct {
	cfg         *config.Config
	transcriber stt.Transcriber
	logger      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager using the given transcription
// capability.
func NewManager(cfg *config.Config, transcriber stt.Transcriber) *Manager {
	return &Manager{
		cfg:         cfg,
		transcriber: transcriber,
		logger:      observability.GetLogger().With().Str("component", "session_manager").Logger(),
		sessions:    make(map[string]*Session),
	}
}

// Connect registers a new session with a fresh buffer and VAD, and sends the
// connected event. An existing session with the same ID is torn down first.
// sampleRate is the declared rate of the client's PCM frames; zero means the
// service's native rate.
func (m *Manager) Connect(sender EventSender, sessionID, languageHint string, sampleRate int) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if languageHint == "" {
		languageHint = m.cfg.LanguageHint
	}
	if sampleRate <= 0 {
		sampleRate = m.cfg.SampleRate
	}

	m.Disconnect(sessionID)

	vadConfig := &audio.VADConfig{
		EnergyThreshold:   m.cfg.VADEnergyThreshold,
		SilenceDuration:   m.cfg.VADSilenceDuration,
		MinSpeechDuration: m.cfg.VADMinSpeechDuration,
		FrameSize:         m.cfg.VADFrameSize,
		SampleRate:        m.cfg.SampleRate,
	}

	correlationID := observability.NewCorrelationID()
	sess := &Session{
		ID:           sessionID,
		LanguageHint: languageHint,
		SampleRate:   sampleRate,
		buffer:       audio.NewStreamBuffer(m.cfg.BufferMaxDuration, m.cfg.SampleRate),
		vad:          audio.NewVoiceActivityDetector(vadConfig),
		transcriber:  m.transcriber,
		sender:       sender,
		metrics:      observability.NewSessionMetrics(sessionID),
		logger: observability.WithCorrelationID(correlationID).With().
			Str("session_id", sessionID).
			Logger(),
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	sess.metrics.RecordSessionStart()
	sess.logger.Info().Str("language_hint", languageHint).Msg("session connected")

	if err := sender.SendEvent(newConnectedEvent(sessionID, languageHint)); err != nil {
		m.Disconnect(sessionID)
		return nil, fmt.Errorf("failed to send connected event: %w", err)
	}
	return sess, nil
}

// OnAudioChunk feeds one binary chunk through the session's buffer and VAD.
// While the VAD reports speech, audio accumulates and paced partial
// transcriptions are emitted. Chunks for one session are processed strictly
// in arrival order; the VAD hysteresis depends on it.
func (m *Manager) OnAudioChunk(sessionID string, data []byte) {
	sess, ok := m.session(sessionID)
	if !ok {
		return
	}

	speaking := sess.vad.DetectVoiceActivity(data)

	// Accumulation starts before the chunk lands so the first voiced frame is
	// part of the utterance.
	if speaking && !sess.buffer.IsAccumulating() {
		sess.buffer.StartAccumulation()
		sess.metrics.RecordUtterance()
		sess.logger.Debug().Msg("utterance started, accumulating")
	}

	sess.buffer.AddAudio(data, sess.SampleRate)
	sess.metrics.RecordAudioBytes(int64(len(data)))

	if !speaking {
		return
	}

	// Pace partials: one request per PartialInterval of new speech, not one
	// per voiced frame.
	accumulated := sess.buffer.Duration()
	if accumulated-sess.lastPartialAt < m.cfg.PartialInterval {
		return
	}

	samples := sess.buffer.Audio()
	if len(samples) == 0 {
		return
	}

	sess.metrics.RecordTranscriptionStart()
	result, err := m.transcribe(samples)
	if err != nil {
		sess.metrics.RecordTranscriptionEnd("partial", false)
		sess.metrics.RecordError("transcription_failed", "stt")
		sess.logger.Error().Err(err).Msg("partial transcription failed")
		m.sendEvent(sess, newErrorEvent(fmt.Sprintf("transcription failed: %v", err)))
		return
	}

	sess.metrics.RecordTranscriptionEnd("partial", true)
	sess.lastPartialAt = accumulated
	m.sendEvent(sess, newPartialEvent(result.Text, result.Confidence, result.Language))
}

// Finalize issues one last transcription over the accumulated utterance,
// emits the final event with derived speech metrics, and clears the buffer.
// A session with no accumulated audio finalizes silently.
func (m *Manager) Finalize(sessionID string) {
	sess, ok := m.session(sessionID)
	if !ok {
		return
	}

	samples := sess.buffer.Audio()
	duration := sess.buffer.Duration()
	sess.reset()

	if len(samples) == 0 {
		return
	}

	sess.metrics.RecordTranscriptionStart()
	result, err := m.transcribe(samples)
	if err != nil {
		sess.metrics.RecordTranscriptionEnd("final", false)
		sess.metrics.RecordError("transcription_failed", "stt")
		sess.logger.Error().Err(err).Msg("final transcription failed")
		m.sendEvent(sess, newErrorEvent(fmt.Sprintf("final transcription failed: %v", err)))
		return
	}
	sess.metrics.RecordTranscriptionEnd("final", true)

	wordCount := 0
	if result.Text != "" {
		wordCount = len(strings.Fields(result.Text))
	}
	wpm := 0.0
	if duration > 0 {
		wpm = float64(wordCount) / duration * 60.0
	}

	sess.logger.Info().
		Int("word_count", wordCount).
		Float64("duration", duration).
		Float64("wpm", wpm).
		Msg("session finalized")

	m.sendEvent(sess, newFinalEvent(
		result.Text,
		result.Confidence,
		result.Language,
		round(wpm, 1),
		round(duration, 2),
		wordCount,
	))
}

// Disconnect tears down a session. Removing an absent session is a no-op.
func (m *Manager) Disconnect(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	sess.close()
	sess.metrics.RecordSessionEnd()
	sess.logger.Info().Msg("session disconnected")
}

// ActiveSessionCount returns the number of registered sessions.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// HandleStream upgrades GET /stream?sessionId=<id>&langHint=<bcp47>&sampleRate=<hz>
// to a websocket and runs the session receive loop until the client disconnects.
func (m *Manager) HandleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.logger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		sessionID := r.URL.Query().Get("sessionId")
		langHint := r.URL.Query().Get("langHint")
		sampleRate, _ := strconv.Atoi(r.URL.Query().Get("sampleRate"))

		sess, err := m.Connect(&wsTransport{conn: conn}, sessionID, langHint, sampleRate)
		if err != nil {
			m.logger.Error().Err(err).Msg("session connect failed")
			return
		}
		defer m.Disconnect(sess.ID)

		go sess.watchLevel(levelProbeInterval)

		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					sess.logger.Warn().Err(err).Msg("websocket read error")
				}
				break
			}

			switch messageType {
			case websocket.BinaryMessage:
				m.OnAudioChunk(sess.ID, message)
			case websocket.TextMessage:
				if strings.TrimSpace(string(message)) == endOfUtterance {
					m.Finalize(sess.ID)
				}
			}
		}

		// Stream end counts as end-of-utterance.
		m.Finalize(sess.ID)
	}
}

func (m *Manager) session(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	return sess, ok
}

// transcribe runs one bounded request against the capability. The timeout is
// the only suspension point in chunk processing.
func (m *Manager) transcribe(samples []float32) (*stt.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(m.cfg.TranscribeTimeout)*time.Second)
	defer cancel()
	return m.transcriber.Transcribe(ctx, samples, m.cfg.SampleRate)
}

// sendEvent delivers an event, logging delivery failures without tearing the
// session down; a dead transport surfaces in the receive loop.
func (m *Manager) sendEvent(sess *Session, event interface{}) {
	if err := sess.sender.SendEvent(event); err != nil {
		sess.metrics.RecordError("send_failed", "transport")
		sess.logger.Error().Err(err).Msg("failed to send event")
	}
}

// reset clears the per-utterance state after finalization.
func (s *Session) reset() {
	s.buffer.Clear()
	s.vad.Reset()
	s.lastPartialAt = 0
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
