package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voicecraft/asr-gateway/internal/audio"
	"github.com/voicecraft/asr-gateway/internal/observability"
	"github.com/voicecraft/asr-gateway/internal/stt"
)

// EventSender delivers one JSON protocol event to the client. The websocket
// transport implements it; tests inject a recording fake.
type EventSender interface {
	SendEvent(event interface{}) error
}

// Session holds all state for one streaming client: its buffer, its VAD, and
// its handle to the transcription capability. Nothing here is shared across
// sessions; the manager owns the registry and the lifecycle.
type Session struct {
	ID           string
	LanguageHint string
	SampleRate   int // declared rate of the client's PCM frames

	buffer      *audio.StreamBuffer
	vad         *audio.VoiceActivityDetector
	transcriber stt.Transcriber
	sender      EventSender

	metrics *observability.SessionMetrics
	logger  zerolog.Logger

	// lastPartialAt tracks how much accumulated audio the most recent
	// partial transcription covered, so partials are paced rather than
	// issued for every voiced frame.
	lastPartialAt float64

	done     chan struct{}
	doneOnce sync.Once
}

func (s *Session) close() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// Buffer returns the session's stream buffer.
func (s *Session) Buffer() *audio.StreamBuffer {
	return s.buffer
}

// VAD returns the session's voice activity detector.
func (s *Session) VAD() *audio.VoiceActivityDetector {
	return s.vad
}

// watchLevel periodically probes the buffer's audio level for debug
// observability. It runs independently of the receive loop, which is why the
// buffer carries its own lock. The VAD belongs to the receive loop alone and
// must not be read here.
func (s *Session) watchLevel(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logger.Debug().
				Float64("audio_level", s.buffer.AudioLevel()).
				Bool("is_accumulating", s.buffer.IsAccumulating()).
				Msg("session level probe")
		case <-s.done:
			return
		}
	}
}

// wsTransport adapts a gorilla websocket connection to EventSender,
// serializing concurrent writers.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) SendEvent(event interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(event)
}
