package logging

import (
	"os"
	"path/filepath"
)

// LogDirEnv overrides the log directory.
const LogDirEnv = "KBQA_LOG_DIR"

// DefaultLogDir returns $KBQA_LOG_DIR, or ~/.kbqa/logs. Without a home
// directory the logs go under the temp dir.
func DefaultLogDir() string {
	if dir := os.Getenv(LogDirEnv); dir != "" {
		return dir
	}
	base, err := os.UserHomeDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, ".kbqa", "logs")
}

// DefaultLogPath is kbqa.log inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "kbqa.log")
}
