package logging

import (
	"log/slog"
)

// SetupServeMode installs the ServeConfig logger as the slog default.
// Any stray write to stdout or stderr would corrupt the stdio stream.
func SetupServeMode(level string) (func(), error) {
	cfg := ServeConfig(level)
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Info("serve_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
