package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fairytail9511-bot/eiken-mvp/internal/config"
	httpserver "github.com/fairytail9511-bot/eiken-mvp/internal/httpserver"
	"github.com/fairytail9511-bot/eiken-mvp/internal/infra/storage"
	"github.com/fairytail9511-bot/eiken-mvp/internal/logging"
	"github.com/fairytail9511-bot/eiken-mvp/internal/records"
	"github.com/fairytail9511-bot/eiken-mvp/internal/transcript"
	"github.com/fairytail9511-bot/eiken-mvp/internal/tts"
)

func main() {
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	if !cfg.EnvFileLoaded {
		logger.Debug().Msg("no .env file found, using process environment")
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	deps, cleanup := buildDeps(cfg, logger)
	defer cleanup()

	srv := httpserver.New(cfg, deps, logging.Component(logger, "http"))

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress).Msg("server listening")
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			cleanup()
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = server.Close()
	}
}

// buildDeps wires the optional collaborators. Features whose configuration is
// missing are left nil and answer 503.
func buildDeps(cfg config.Config, logger zerolog.Logger) (httpserver.Deps, func()) {
	var deps httpserver.Deps
	cleanup := func() {}

	if cfg.OpenAIKey != "" {
		deps.Transcriber = transcript.NewWhisperClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.WhisperModel, cfg.TranscribeTimeout, logger)
	}

	switch cfg.TTSProvider {
	case config.TTSProviderDeepgram:
		if cfg.DeepgramKey != "" {
			deps.Synthesizer = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramVoiceFemale, cfg.DeepgramVoiceMale, logger)
		}
	default:
		if cfg.ElevenLabsKey != "" {
			deps.Synthesizer = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceFemale, cfg.ElevenLabsVoiceMale, logger)
		}
	}

	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		archive, err := storage.NewSupabaseArchive(storage.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("recording archive disabled")
		} else {
			deps.Archive = archive
		}
	}

	if cfg.RecordsDBPath != "" {
		store, err := records.Open(cfg.RecordsDBPath, cfg.RecordsMaxKeep)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.RecordsDBPath).Msg("records store disabled")
		} else {
			deps.Records = store
			cleanup = func() {
				if err := store.Close(); err != nil {
					logger.Warn().Err(err).Msg("close records store")
				}
			}
		}
	}

	return deps, cleanup
}
