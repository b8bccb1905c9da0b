package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the ASR gateway service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Audio processing configuration
	SampleRate        int     `envconfig:"SAMPLE_RATE" default:"16000"`        // Native sample rate in Hz
	BufferMaxDuration float64 `envconfig:"BUFFER_MAX_DURATION" default:"30.0"` // Ring buffer length in seconds

	// Voice activity detection configuration
	VADEnergyThreshold   float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"0.01"`    // Fixed RMS floor
	VADSilenceDuration   float64 `envconfig:"VAD_SILENCE_DURATION" default:"0.5"`     // Seconds of silence ending an utterance
	VADMinSpeechDuration float64 `envconfig:"VAD_MIN_SPEECH_DURATION" default:"0.1"`  // Minimum utterance length in seconds
	VADFrameSize         int     `envconfig:"VAD_FRAME_SIZE" default:"1024"`          // Samples per analysis frame

	// Reference audio trimming configuration
	TrimMinDuration    float64 `envconfig:"TRIM_MIN_DURATION" default:"5.0"`     // Minimum reference duration in seconds
	TrimMaxDuration    float64 `envconfig:"TRIM_MAX_DURATION" default:"20.0"`    // Maximum reference duration in seconds
	TrimTargetDuration float64 `envconfig:"TRIM_TARGET_DURATION" default:"10.0"` // Preferred reference duration in seconds

	// Streaming transcription configuration
	PartialInterval float64 `envconfig:"PARTIAL_INTERVAL" default:"1.0"` // Seconds of new speech between partial transcriptions

	// Transcription capability configuration. When the API key is empty the
	// service runs with the deterministic mock transcriber.
	DeepgramAPIKey     string   `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel      string   `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	LanguageHint       string   `envconfig:"LANGUAGE_HINT" default:"en"`
	SupportedLanguages []string `envconfig:"SUPPORTED_LANGUAGES" default:"en,es,fr,de,it,pt,ru,ja,ko,zh"`
	TranscribeTimeout  int      `envconfig:"TRANSCRIBE_TIMEOUT" default:"10"` // Per-request timeout in seconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from the environment, first merging a .env file if
// one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables without
// consulting a .env file (useful for containerized deployments).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("SAMPLE_RATE must be positive, got %d", cfg.SampleRate)
	}
	if cfg.BufferMaxDuration <= 0 {
		return nil, fmt.Errorf("BUFFER_MAX_DURATION must be positive, got %g", cfg.BufferMaxDuration)
	}
	if cfg.TrimMinDuration >= cfg.TrimMaxDuration {
		return nil, fmt.Errorf("TRIM_MIN_DURATION (%g) must be below TRIM_MAX_DURATION (%g)",
			cfg.TrimMinDuration, cfg.TrimMaxDuration)
	}
	if cfg.VADFrameSize <= 0 {
		return nil, fmt.Errorf("VAD_FRAME_SIZE must be positive, got %d", cfg.VADFrameSize)
	}
	if cfg.PartialInterval <= 0 {
		return nil, fmt.Errorf("PARTIAL_INTERVAL must be positive, got %g", cfg.PartialInterval)
	}

	return &cfg, nil
}
