package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
)

// BuildFunc runs one build, reporting progress through report.
type BuildFunc func(ctx context.Context, report func(index.Progress)) index.BuildResult

// ErrAlreadyRunning is returned by Start while a build is in flight.
var ErrAlreadyRunning = errors.New("a background build is already running")

// BackgroundIndexer runs builds on a goroutine, one at a time.
type BackgroundIndexer struct {
	build    BuildFunc
	progress *Progress
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  index.BuildResult
}

// NewBackgroundIndexer returns an indexer that runs build.
func NewBackgroundIndexer(build BuildFunc, logger *slog.Logger) *BackgroundIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &BackgroundIndexer{
		build:    build,
		progress: NewProgress(),
		logger:   logger,
		done:     done,
	}
}

// Progress returns the progress of the current or last build.
func (b *BackgroundIndexer) Progress() *Progress {
	return b.progress
}

// IsRunning reports whether a build is in flight.
func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start launches a build and returns immediately.
func (b *BackgroundIndexer) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrAlreadyRunning
	}
	if b.build == nil {
		b.progress.fail(errors.New("no build function configured"))
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	b.progress.begin()

	go b.run(ctx, b.done)
	return nil
}

func (b *BackgroundIndexer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	result := b.build(ctx, b.progress.Observe)
	b.progress.Finish(result)

	if result.Err != nil {
		b.logger.Warn("background_build_failed", slog.String("error", result.Err.Error()))
	} else {
		b.logger.Info("background_build_complete",
			slog.Int("files", result.TotalFiles),
			slog.Int("documents", result.TotalDocuments),
			slog.Int64("duration_ms", result.BuildTimeMs))
	}

	b.mu.Lock()
	b.running = false
	b.result = result
	b.cancel()
	b.mu.Unlock()
}

// Stop cancels a running build and waits for it to return.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
}

// Wait blocks until the current build returns and gives its result.
func (b *BackgroundIndexer) Wait() index.BuildResult {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()

	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}
