package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Every record carries the process
// name so API and worker output can be told apart once shipped.
func NewLogger(cfg *Config, process string) *slog.Logger {
	return newLogger(os.Stdout, cfg, process)
}

func newLogger(w io.Writer, cfg *Config, process string) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && !cfg.IsProduction() {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler)
	if process != "" {
		logger = logger.With(slog.String("process", process))
	}
	if cfg != nil {
		logger = logger.With(slog.String("env", cfg.AppEnv))
	}
	return logger
}
