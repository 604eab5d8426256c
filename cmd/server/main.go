// Command server runs the YaMDb review API.
//
// Configuration is read from the environment (and an optional .env file);
// see internal/config for the variables.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/yamdb/internal/config"
	sqliteRepo "github.com/sakif/yamdb/internal/repository/sqlite"
	"github.com/sakif/yamdb/internal/server"
)

func main() {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	level, _ := config.ParseLevel(cfg.LogLevel) // already validated
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// === 3. DATABASE ===
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 4. SERVER ===
	srv, err := server.New(cfg, db, server.NewNotifier(cfg, logger), logger)
	if err != nil {
		db.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM and closes db on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
