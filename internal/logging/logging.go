package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the rotated log file. Empty disables file logging.
	FilePath string
	// MaxSizeMB triggers rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept (default: 5).
	MaxFiles int
	// Stderr mirrors every record to stderr.
	Stderr bool
}

// DefaultConfig returns file logging at info level mirrored to stderr.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		FilePath:  DefaultLogPath(),
		MaxSizeMB: 10,
		MaxFiles:  5,
		Stderr:    true,
	}
}

// CLIConfig is used by one-shot commands. Only warnings reach stderr
// unless debug is set, in which case everything is also kept on file.
func CLIConfig(debug bool) Config {
	if !debug {
		return Config{Level: "warn", Stderr: true}
	}
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// ServeConfig logs to file only. stdio carries the MCP stream.
func ServeConfig(level string) Config {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.Stderr = false
	return cfg
}

// Setup builds a JSON slog logger from cfg. Records carry the process id
// because serve and index runs share one log file.
// The returned cleanup flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var sinks []io.Writer
	cleanup := func() {}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, w)
		cleanup = func() {
			_ = w.Sync()
			_ = w.Close()
		}
	}
	if cfg.Stderr {
		sinks = append(sinks, os.Stderr)
	}

	var handler slog.Handler
	switch len(sinks) {
	case 0:
		handler = slog.DiscardHandler
	case 1:
		handler = slog.NewJSONHandler(sinks[0], opts)
	default:
		handler = slog.NewJSONHandler(io.MultiWriter(sinks...), opts)
	}
	return slog.New(handler).With(slog.Int("pid", os.Getpid())), cleanup, nil
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
