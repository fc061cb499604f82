package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainProgressEvery limits indexing lines to one per n files.
const plainProgressEvery = 10

// PlainRenderer writes line-oriented progress for CI and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors int
	warns  int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer. Indexing updates print every
// plainProgressEvery files and on the last one.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage == StageIndexing && event.Total > 0 &&
		event.Current%plainProgressEvery != 0 && event.Current != event.Total {
		return
	}

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	if msg == "" {
		msg = event.Stage.String()
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warns++
	} else {
		r.errors++
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d/%d files indexed, %d documents in %s",
		stats.Success, stats.Files, stats.Documents, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 || stats.Skipped > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed, %d skipped)", stats.Failed, stats.Skipped)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Removed > 0 {
		_, _ = fmt.Fprintf(r.out, "Removed: %d vanished files\n", stats.Removed)
	}
	if stats.PeakMemoryMB > 0 {
		_, _ = fmt.Fprintf(r.out, "Peak memory: %d MB\n", stats.PeakMemoryMB)
	}
	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%s, %d dims)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
