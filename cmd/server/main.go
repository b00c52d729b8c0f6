// Package main is the entry point for the cardlink API server.
//
// main() stays minimal: read configuration, set up logging, make sure the
// data directories exist, hand off to internal/server. All real logic lives
// in the internal packages so it can be tested without running a binary.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/cardlink/internal/config"
	"github.com/sakif/cardlink/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config failures happen before the logger level is known; report
		// with a default logger and bail.
		slog.Error("configuration error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	// The sqlite file and the upload tree must have parent directories
	// before anything opens them.
	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("creating directory", slog.String("dir", dir), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("server setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func logLevel(s string) slog.Level {
	switch s {
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
