// Package main is the entry point for the Arkeo cache sync pipeline.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/arkeo-network/arkeo-cache-sync/cmd/arkeo-cache-sync/app"
)

// getLogLevel parses the LOG_LEVEL environment variable and returns the
// corresponding slog.Level. Defaults to slog.LevelInfo if unset or invalid.
func getLogLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", os.Getenv("LOG_LEVEL"))
		return slog.LevelInfo
	}
}

func main() {
	// Structured JSON logging on stderr keeps stdout clean for commands
	// that output data (e.g., version --format json).
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: getLogLevel()})
	slog.SetDefault(slog.New(handler))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
