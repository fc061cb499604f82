package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/embed"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/logging"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status as its name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// EmbedderFactory opens the embedder for the embeddings config.
type EmbedderFactory func(ctx context.Context, cfg config.EmbeddingsConfig) (embed.Embedder, error)

// Checker performs preflight validation checks.
type Checker struct {
	verbose  bool
	output   io.Writer
	embedder EmbedderFactory
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithEmbedderFactory replaces embed.NewEmbedder in the embedder check.
func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(c *Checker) {
		c.embedder = f
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
		embedder: func(ctx context.Context, cfg config.EmbeddingsConfig) (embed.Embedder, error) {
			return embed.NewEmbedder(ctx, cfg, logging.Discard())
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check for the project rooted at root.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config, root string) []CheckResult {
	storageDir := cfg.StoragePath(root)

	return []CheckResult{
		c.CheckSourceDir(cfg.SourcePath(root)),
		c.CheckWritePermissions(storageDir),
		c.CheckDiskSpace(existingParent(storageDir)),
		c.CheckFileDescriptors(),
		c.CheckIndexLock(storageDir),
		c.CheckEmbedder(ctx, cfg.Embeddings),
	}
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "kbqa System Check")
	_, _ = fmt.Fprintln(c.output, "=================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, failures []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			failures = append(failures, r.Name+": "+r.Message)
		case r.Status != StatusPass:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	printList(c.output, "error(s)", failures)
	printList(c.output, "warning(s)", warnings)
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "%d %s:\n", len(items), label)
	for _, item := range items {
		_, _ = fmt.Fprintf(w, "  - %s\n", item)
	}
}

// CheckSourceDir checks that the document directory exists.
func (c *Checker) CheckSourceDir(path string) CheckResult {
	result := CheckResult{
		Name:     "source_dir",
		Required: true,
		Details:  path,
	}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read document directory: %v", err)
	case !info.IsDir():
		result.Status = StatusFail
		result.Message = "document path is not a directory"
	default:
		result.Status = StatusPass
		result.Message = "OK"
	}
	return result
}

// CheckWritePermissions checks that the storage directory can be created
// and written to.
func (c *Checker) CheckWritePermissions(storageDir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
		Details:  storageDir,
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create storage directory: %v", err)
		return result
	}

	f, err := os.CreateTemp(storageDir, ".kbqa-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckIndexLock warns when another process is indexing into storageDir.
func (c *Checker) CheckIndexLock(storageDir string) CheckResult {
	result := CheckResult{Name: "index_lock"}

	lock := store.NewStorageLock(storageDir)
	if err := lock.Acquire(); err != nil {
		result.Status = StatusWarn
		result.Message = "another process holds the index; index, watch and serve will refuse to start"
		result.Details = err.Error()
		return result
	}
	_ = lock.Release()

	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// existingParent returns path or its nearest existing ancestor.
func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
