// Package ui renders indexing progress and index status in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is an indexing stage.
type Stage int

const (
	StageScanning Stage = iota
	StageIndexing
	StageCommitting
	StageComplete
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageCommitting:
		return "Committing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short tag used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageCommitting:
		return "COMMIT"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is an error or warning raised while indexing.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// EmbedderInfo describes the vector side of a run.
type EmbedderInfo struct {
	Backend    string `json:"backend"` // "ollama", "static", or "none"
	Model      string `json:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Files        int
	Success      int
	Failed       int
	Skipped      int
	Removed      int
	Documents    int
	Duration     time.Duration
	PeakMemoryMB int64
	Embedder     EmbedderInfo
}

// Renderer displays indexing progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	SourceDir  string // shown in the TUI header
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithSourceDir sets the directory shown in the TUI header.
func WithSourceDir(dir string) ConfigOption {
	return func(c *Config) { c.SourceDir = dir }
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer for interactive terminals and the
// plain renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether a CI environment variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
