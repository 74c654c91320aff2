package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/callscope/internal/telemetry"
	"github.com/tjfontaine/callscope/pkg/callscope"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdown, err := telemetry.InitTracer("callscope", logger)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
		}
	}()

	configPath := os.Getenv("CALLSCOPE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	addr := os.Getenv("CALLSCOPE_SERVER__ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// The daemon exists to serve the control plane, so the listener is always
	// on; everything else (storage, outputs, schedule) comes from config.
	tr, err := callscope.New(
		callscope.WithConfigFile(configPath),
		callscope.WithListenAddr(addr),
		callscope.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx); err != nil {
		log.Fatalf("Failed to start tracer: %v", err)
	}

	logger.Info("recording control plane ready",
		slog.String("addr", addr),
		slog.String("config", configPath))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping tracer...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := tr.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Tracer shutdown complete")
}

// logLevel reads CALLSCOPE_LOG__LEVEL straight from the environment; the
// logger has to exist before the config system comes up.
func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("CALLSCOPE_LOG__LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
