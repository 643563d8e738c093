// Package main is the entry point for the tierfolio HTTP service.
// It serves the analysis API, streams run events and runs the background
// jobs (scheduled snapshot analysis, database maintenance, run retention).
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/tierfolio/internal/config"
	"github.com/aristath/tierfolio/internal/di"
	"github.com/aristath/tierfolio/internal/server"
	"github.com/aristath/tierfolio/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration from environment variables (.env file)
// 2. Initializes logging to stdout and <data dir>/logs/tierfolio.log
// 3. Wires all dependencies via the DI container
// 4. Starts the HTTP server and the scheduler
// 5. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// The log file feeds /api/logs and the log_file option of the event stream
	var output io.Writer = os.Stdout
	logFile, err := openLogFile(cfg.DataDir)
	if err == nil {
		defer logFile.Close()
		output = io.MultiWriter(os.Stdout, logFile)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		Output: output,
	})
	logger.SetGlobalLogger(log)

	if err != nil {
		log.Warn().Err(err).Msg("Failed to open log file, logging to stdout only")
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("currency", string(cfg.Currency)).
		Msg("Starting tierfolio")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Let a running analysis finish before the database closes
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func openLogFile(dataDir string) (*os.File, error) {
	logsDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(logsDir, "tierfolio.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
