package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicecraft/asr-gateway/internal/audio"
	"github.com/voicecraft/asr-gateway/internal/config"
	"github.com/voicecraft/asr-gateway/internal/observability"
	"github.com/voicecraft/asr-gateway/internal/server"
	"github.com/voicecraft/asr-gateway/internal/session"
	"github.com/voicecraft/asr-gateway/internal/stt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Int("sample_rate", cfg.SampleRate).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("ASR Gateway Service starting")

	// Select the transcription capability: Deepgram when an API key is
	// configured, the deterministic mock otherwise.
	var transcriber stt.Transcriber
	if cfg.DeepgramAPIKey != "" {
		transcriber, err = stt.NewDeepgramTranscriber(stt.DeepgramOptions{
			APIKey:              cfg.DeepgramAPIKey,
			Model:               cfg.DeepgramModel,
			Language:            cfg.LanguageHint,
			BreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
			BreakerResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Deepgram transcriber")
		}
		logger.Info().Str("model", cfg.DeepgramModel).Msg("Using Deepgram transcription backend")
	} else {
		transcriber = stt.NewMockTranscriber(cfg.LanguageHint)
		logger.Warn().Msg("DEEPGRAM_API_KEY not set, using mock transcription backend")
	}

	manager := session.NewManager(cfg, transcriber)
	optimizer := audio.NewSegmentOptimizer(cfg.TrimMinDuration, cfg.TrimMaxDuration, cfg.TrimTargetDuration)
	handlers := server.NewHandlers(cfg, transcriber, optimizer, manager)

	// Create HTTP server
	mux := http.NewServeMux()

	// Streaming ASR websocket
	mux.HandleFunc("/stream", manager.HandleStream())

	// Batch fallback, status, and reference-audio preparation
	mux.HandleFunc("/transcribe", handlers.HandleTranscribe())
	mux.HandleFunc("/status", handlers.HandleStatus())
	mux.HandleFunc("/voice/reference", handlers.HandleVoiceReference())

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint probes the transcription capability when it can
	// report health.
	checks := map[string]observability.HealthCheckFunc{}
	if hc, ok := transcriber.(stt.HealthChecker); ok {
		checks["transcriber"] = hc.HealthCheck
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. The websocket endpoint holds
	// connections open far longer than any request timeout, so only the
	// read header phase is bounded.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/stream", cfg.Port)).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
