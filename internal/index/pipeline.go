// Package index scans a source directory and ingests its documents into the
// lexical and vector indexes, tracking each file so later runs only touch
// what changed.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/chunk"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/embed"
	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/optimizer"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/parser"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/scanner"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/tracking"
)

const (
	// DefaultParallelThreshold is the file count above which parallel mode is used.
	DefaultParallelThreshold = 5

	// DefaultBatchSize is the number of files per parallel batch.
	DefaultBatchSize = 10

	// serialCommitEvery forces a serial-mode commit every n files.
	serialCommitEvery = 10

	// serialMemoryLogEvery logs memory every n files in serial mode.
	serialMemoryLogEvery = 5

	// parallelProgressEvery logs parallel progress every n files.
	parallelProgressEvery = 10
)

// Dependencies are the collaborators a Pipeline drives. Vector, Embedder
// and Lock are optional; without a vector index every document is lexical only.
type Dependencies struct {
	Parser    parser.Parser
	Scanner   *scanner.Scanner
	Lexical   store.LexicalIndex
	Vector    store.VectorIndex
	Embedder  embed.Embedder
	Detector  *tracking.Detector
	Optimizer *optimizer.Optimizer
	Chunker   *chunk.Chunker
	Lock      *store.StorageLock
}

// PipelineConfig controls batching, concurrency and content limits.
type PipelineConfig struct {
	Parallel          bool
	ParallelThreshold int
	BatchSize         int
	Workers           int
	ShutdownTimeout   time.Duration

	// MaxContentChars truncates file content beyond this many characters. 0 disables.
	MaxContentChars int

	ExcludePatterns []string

	// StorageDir is never scanned.
	StorageDir string
}

// ConfigFrom builds a PipelineConfig from the loaded configuration.
func ConfigFrom(cfg *config.Config, root string) PipelineConfig {
	return PipelineConfig{
		Parallel:          cfg.Document.Parallel(),
		ParallelThreshold: DefaultParallelThreshold,
		BatchSize:         cfg.Document.BatchSize,
		Workers:           cfg.Document.WorkerCount(),
		ShutdownTimeout:   cfg.Document.ShutdownTimeout(),
		MaxContentChars:   cfg.Document.MaxIndexContentChars,
		ExcludePatterns:   cfg.Paths.Exclude,
		StorageDir:        cfg.StoragePath(root),
	}
}

// Stage identifies a pipeline phase in progress reports.
type Stage int

const (
	StageScanning Stage = iota
	StageIndexing
	StageCommitting
	StageComplete
)

// Progress is one progress report. Current counts processed files.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	File    string
}

// BuildResult summarizes a run. Err carries run-level failures only;
// individual file failures are counted in FailedCount.
type BuildResult struct {
	TotalFiles     int   `json:"totalFiles"`
	SuccessCount   int   `json:"successCount"`
	FailedCount    int   `json:"failedCount"`
	SkippedCount   int   `json:"skippedCount"`
	RemovedCount   int   `json:"removedCount"`
	TotalDocuments int   `json:"totalDocuments"`
	BuildTimeMs    int64 `json:"buildTimeMs"`
	PeakMemoryMB   int64 `json:"peakMemoryMb"`
	Err            error `json:"-"`
}

// Pipeline ingests documents. A Pipeline runs one build at a time.
type Pipeline struct {
	deps     Dependencies
	cfg      PipelineConfig
	logger   *slog.Logger
	progress func(Progress)

	runMu      sync.Mutex
	commitMu   sync.Mutex
	progressMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithProgress registers a progress callback. Calls are serialized.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// NewPipeline validates deps and returns a pipeline.
func NewPipeline(deps Dependencies, cfg PipelineConfig, opts ...Option) (*Pipeline, error) {
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if deps.Lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("change detector is required")
	}
	if deps.Optimizer == nil {
		return nil, fmt.Errorf("optimizer is required")
	}
	if deps.Chunker == nil {
		deps.Chunker = chunk.NewChunker(chunk.Options{}, nil)
	}

	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = DefaultParallelThreshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 60 * time.Second
	}

	p := &Pipeline{
		deps:   deps,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if deps.Scanner == nil {
		p.deps.Scanner = scanner.New(p.logger)
	}
	return p, nil
}

// vectorEnabled reports whether documents are embedded.
func (p *Pipeline) vectorEnabled() bool {
	return p.deps.Vector != nil && p.deps.Embedder != nil
}

// BuildFull indexes every supported file under sourcePath. With rebuild,
// both indexes and the tracking state are cleared first. Without it, a
// lexical index that already holds documents is left untouched.
func (p *Pipeline) BuildFull(ctx context.Context, sourcePath string, rebuild bool) BuildResult {
	return p.run(ctx, sourcePath, buildFull, rebuild)
}

// BuildIncremental indexes new and modified files and removes the
// documents of tracked files that no longer exist.
func (p *Pipeline) BuildIncremental(ctx context.Context, sourcePath string) BuildResult {
	return p.run(ctx, sourcePath, buildIncremental, false)
}

type buildMode string

const (
	buildFull        buildMode = "full"
	buildIncremental buildMode = "incremental"
)

// runState holds the counters of one run. Workers update it concurrently.
type runState struct {
	logger    *slog.Logger
	total     int
	success   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	processed atomic.Int64

	// abandoned is set when cancelled workers outlived the shutdown timeout.
	abandoned atomic.Bool
}

func (p *Pipeline) run(ctx context.Context, sourcePath string, mode buildMode, rebuild bool) (result BuildResult) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	started := time.Now()
	logger := p.logger.With(slog.String("run_id", uuid.NewString()))

	defer func() {
		result.BuildTimeMs = time.Since(started).Milliseconds()
		result.PeakMemoryMB = p.deps.Optimizer.PeakMemoryMB()
		if result.Err != nil {
			logger.Error("index_failed",
				slog.String("mode", string(mode)),
				slog.String("code", kberrors.GetCode(result.Err)),
				slog.String("error", result.Err.Error()))
		}
	}()

	if p.deps.Lock != nil {
		if err := p.deps.Lock.Acquire(); err != nil {
			result.Err = err
			return result
		}
		defer func() {
			if err := p.deps.Lock.Release(); err != nil {
				logger.Warn("lock_release_failed", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("index_started",
		slog.String("mode", string(mode)),
		slog.Bool("rebuild", rebuild),
		slog.String("path", sourcePath),
		slog.Bool("vector", p.vectorEnabled()))
	p.deps.Optimizer.LogMemoryUsage("start")

	if rebuild {
		if err := p.clear(ctx, logger); err != nil {
			result.Err = err
			return result
		}
	} else if mode == buildFull {
		count, err := p.deps.Lexical.Count()
		if err != nil {
			result.Err = kberrors.New(kberrors.ErrCodeStorageUnreachable, "failed to read lexical index", err)
			return result
		}
		if count > 0 {
			logger.Info("index_up_to_date",
				slog.Int("documents", count),
				slog.String("hint", "use rebuild to reindex everything"))
			result.TotalDocuments = count
			return result
		}
	}

	scanStarted := time.Now()
	p.emit(Progress{Stage: StageScanning})
	files, err := p.deps.Scanner.Scan(ctx, scanner.Options{
		RootDir:         sourcePath,
		ExcludePatterns: p.cfg.ExcludePatterns,
		SkipDirs:        []string{p.cfg.StorageDir},
		Supports:        p.deps.Parser.Supports,
	})
	if err != nil {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
		} else {
			result.Err = kberrors.New(kberrors.ErrCodeInvalidPath, "failed to scan source directory", err).
				WithDetail("path", sourcePath)
		}
		return result
	}
	scanDuration := time.Since(scanStarted)

	if mode == buildIncremental {
		result.RemovedCount = p.removeVanished(ctx, files, logger)
		files = p.changed(files)
	}

	st := &runState{logger: logger, total: len(files)}
	result.TotalFiles = len(files)

	processStarted := time.Now()
	parallel := p.cfg.Parallel && len(files) > p.cfg.ParallelThreshold
	if parallel {
		p.processParallel(ctx, files, st)
	} else {
		p.processSerial(ctx, files, st)
	}
	processDuration := time.Since(processStarted)

	result.SuccessCount = int(st.success.Load())
	result.FailedCount = int(st.failed.Load())
	result.SkippedCount = int(st.skipped.Load())

	if err := p.finish(context.WithoutCancel(ctx), logger); err != nil {
		result.Err = err
	} else if ctx.Err() != nil {
		result.Err = interrupted(ctx.Err(), st)
	}

	if count, err := p.deps.Lexical.Count(); err == nil {
		result.TotalDocuments = count
	}
	p.emit(Progress{Stage: StageComplete, Current: int(st.processed.Load()), Total: st.total})

	duration := time.Since(started)
	logger.Info("index_complete",
		slog.String("mode", string(mode)),
		slog.Bool("parallel", parallel),
		slog.Int("files", result.TotalFiles),
		slog.Int("success", result.SuccessCount),
		slog.Int("failed", result.FailedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("removed", result.RemovedCount),
		slog.Int("documents", result.TotalDocuments),
		slog.String("duration_total", duration.String()),
		slog.Int64("duration_total_ms", duration.Milliseconds()),
		slog.Int64("duration_scan_ms", scanDuration.Milliseconds()),
		slog.Int64("duration_process_ms", processDuration.Milliseconds()),
		slog.Int64("peak_memory_mb", p.deps.Optimizer.PeakMemoryMB()),
		slog.Int64("gc_count", p.deps.Optimizer.GCCount()),
		slog.String("path", sourcePath))

	return result
}

// interrupted reports a cancelled run. Files that were never processed
// stay untracked, so the next incremental build picks them up.
func interrupted(cause error, st *runState) error {
	msg := fmt.Sprintf("indexing interrupted after %d of %d files", st.processed.Load(), st.total)
	if st.abandoned.Load() {
		msg += "; workers did not stop within the shutdown timeout"
	}
	return kberrors.New(kberrors.ErrCodeIndexFailed, msg, cause)
}

// clear drops both indexes and all tracking records.
func (p *Pipeline) clear(ctx context.Context, logger *slog.Logger) error {
	if err := p.deps.Lexical.DeleteAll(ctx); err != nil {
		return kberrors.New(kberrors.ErrCodeStorageUnreachable, "failed to clear lexical index", err)
	}
	if p.deps.Vector != nil {
		if err := p.deps.Vector.DeleteAll(ctx); err != nil {
			return kberrors.New(kberrors.ErrCodeStorageUnreachable, "failed to clear vector index", err)
		}
	}
	if err := p.deps.Detector.ClearAll(); err != nil {
		logger.Warn("tracking_clear_failed", slog.String("error", err.Error()))
	}
	logger.Info("index_cleared")
	return nil
}

// changed keeps the files whose tracking record is missing or stale.
func (p *Pipeline) changed(files []*scanner.FileInfo) []*scanner.FileInfo {
	out := files[:0:0]
	for _, f := range files {
		if p.deps.Detector.NeedsUpdate(f.AbsPath, f.ModTime, f.Size) {
			out = append(out, f)
		}
	}
	return out
}

// removeVanished deletes the documents of tracked files missing from the scan.
func (p *Pipeline) removeVanished(ctx context.Context, files []*scanner.FileInfo, logger *slog.Logger) int {
	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.AbsPath] = struct{}{}
	}

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	removed := 0
	for _, path := range p.deps.Detector.Paths() {
		if _, ok := present[path]; ok {
			continue
		}
		rec, _ := p.deps.Detector.Record(path)
		if err := p.deleteDocuments(ctx, rec.DocumentIDs); err != nil {
			logger.Warn("file_remove_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		p.deps.Detector.Remove(path)
		removed++
		logger.Info("file_removed",
			slog.String("path", path),
			slog.Int("documents", len(rec.DocumentIDs)))
	}
	return removed
}

func (p *Pipeline) deleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := p.deps.Lexical.Delete(ctx, ids); err != nil {
		return err
	}
	if p.deps.Vector != nil {
		if err := p.deps.Vector.Delete(ctx, ids); err != nil {
			return err
		}
	}
	return nil
}

// finish commits what is pending and persists the vector index and the
// tracking records. Only the lexical commit can fail the run.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger) error {
	p.emit(Progress{Stage: StageCommitting})

	p.commitMu.Lock()
	err := p.deps.Lexical.Commit(ctx)
	p.commitMu.Unlock()
	if err != nil {
		return kberrors.New(kberrors.ErrCodeIndexFailed, "final commit failed", err)
	}

	var saveErrs []error
	if p.deps.Vector != nil {
		if err := p.deps.Vector.Save(); err != nil {
			saveErrs = append(saveErrs, fmt.Errorf("vector index: %w", err))
		}
	}
	if err := p.deps.Detector.Save(); err != nil {
		saveErrs = append(saveErrs, err)
	}
	if err := errors.Join(saveErrs...); err != nil {
		logger.Warn("index_save_failed", slog.String("error", err.Error()))
	}

	p.deps.Optimizer.LogMemoryUsage("complete")
	return nil
}

func (p *Pipeline) emit(ev Progress) {
	if p.progress == nil {
		return
	}
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	p.progress(ev)
}
