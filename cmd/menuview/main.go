package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/menulive/internal/config"
	"github.com/onnwee/menulive/internal/errorreporting"
	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/secrets"
	"github.com/onnwee/menulive/internal/server"
	"github.com/onnwee/menulive/internal/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (falling back to system env)")
	}

	cfg := config.Load()

	logger.Init(cfg.LogLevel)
	logger.Info("Initializing menu display",
		"api", secrets.MaskURL(cfg.APIBaseURL),
		"push", secrets.MaskURL(cfg.PushURL),
		"lang", cfg.DefaultLang,
		"cache_backend", cfg.CacheBackend,
		"sentry_dsn", secrets.Mask(cfg.SentryDSN),
	)

	if err := errorreporting.Init(cfg.SentryDSN, cfg.SentryEnvironment); err != nil {
		logger.Warn("Failed to initialize error reporting", "error", err)
	} else if errorreporting.IsSentryEnabled() {
		logger.Info("Error reporting initialized", "environment", cfg.SentryEnvironment)
		defer func() {
			logger.Info("Flushing error reports...")
			errorreporting.Flush(2 * time.Second)
		}()
	}

	shutdownTracing, err := tracing.Init("menulive", tracing.Options{
		Enabled:    cfg.OTELEnabled,
		Endpoint:   cfg.OTELEndpoint,
		SampleRate: cfg.OTELSampleRate,
	})
	if err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	} else if cfg.OTELEnabled {
		logger.Info("Tracing initialized", "endpoint", cfg.OTELEndpoint, "sample_rate", cfg.OTELSampleRate)
		defer func() {
			logger.Info("Shutting down tracer...")
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	srv, err := server.New(cfg)
	if err != nil {
		logger.Error("Failed to build display server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Display server stopped with error", "error", err)
		errorreporting.CaptureErrorWithContext(err, map[string]string{"component": "server"}, nil)
		return
	}
	logger.Info("Display server stopped")
}
