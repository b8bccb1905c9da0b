package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asr_gateway_active_sessions",
		Help: "Number of active streaming sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_gateway_sessions_total",
		Help: "Total number of streaming sessions handled",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asr_gateway_session_duration_seconds",
		Help:    "Duration of streaming sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_gateway_transcription_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"mode", "status"}) // mode: "partial", "final", "batch"

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "asr_gateway_transcription_latency_seconds",
		Help:    "Transcription request latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Audio metrics
	audioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_gateway_audio_bytes_total",
		Help: "Total audio bytes received from clients",
	})

	utterancesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_gateway_utterances_total",
		Help: "Total utterances detected by the VAD",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asr_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "asr_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single streaming session.
type SessionMetrics struct {
	sessionID      string
	startTime      time.Time
	transcribeTime time.Time
	mu             sync.Mutex
}

// NewSessionMetrics creates a metrics tracker for one session.
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records a session opening.
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records a session closing.
func (m *SessionMetrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTranscriptionStart marks the start of a transcription request.
func (m *SessionMetrics) RecordTranscriptionStart() {
	m.mu.Lock()
	m.transcribeTime = time.Now()
	m.mu.Unlock()
}

// RecordTranscriptionEnd records the outcome of a transcription request.
func (m *SessionMetrics) RecordTranscriptionEnd(mode string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.transcribeTime.IsZero() {
		transcriptionLatency.Observe(time.Since(m.transcribeTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	transcriptionRequests.WithLabelValues(mode, status).Inc()
}

// RecordAudioBytes records audio bytes received from the client.
func (m *SessionMetrics) RecordAudioBytes(bytes int64) {
	audioBytesReceived.Add(float64(bytes))
}

// RecordUtterance records one VAD-committed utterance.
func (m *SessionMetrics) RecordUtterance() {
	utterancesDetected.Inc()
}

// RecordError records an error by type and component.
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordBatchTranscription records the outcome of a non-streaming request.
func RecordBatchTranscription(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	transcriptionRequests.WithLabelValues("batch", status).Inc()
}

// UpdateCircuitBreakerState updates the circuit breaker state metric.
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
