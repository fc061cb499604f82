package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/chunk"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/embed"
	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/optimizer"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/parser"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/runtimecfg"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/scanner"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/search"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/store"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/tracking"
	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/ui"
)

// Storage layout under the storage directory.
const (
	lexicalDirName = "lexical"
	vectorFileName = "vectors.hnsw"
)

// project is a resolved project root and its configuration.
type project struct {
	root string
	cfg  *config.Config
}

// loadProject finds the project containing path and loads its config.
// A non-empty source overrides the configured document directory.
func loadProject(path, source string) (*project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	if source != "" {
		absSource, err := filepath.Abs(source)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source: %w", err)
		}
		cfg.Paths.Source = absSource
	}

	return &project{root: root, cfg: cfg}, nil
}

func (p *project) storageDir() string { return p.cfg.StoragePath(p.root) }
func (p *project) sourceDir() string  { return p.cfg.SourcePath(p.root) }

// openOptions adjusts how the engine opens its stores.
type openOptions struct {
	// offline forces the static embedder.
	offline bool
	// resetVectors discards a stored vector index of another dimension
	// instead of disabling vector search.
	resetVectors bool
	// write takes the storage lock before any store is opened and holds
	// it until Close.
	write bool
}

// engine is the opened index stack of one project.
type engine struct {
	project  *project
	logger   *slog.Logger
	lock     *store.StorageLock
	lexical  *store.BleveIndex
	vector   *store.HNSWIndex
	embedder embed.Embedder
	tracker  tracking.Store
	detector *tracking.Detector
	settings *runtimecfg.Settings
	scorer   *search.Scorer
}

// openEngine opens the lexical and vector indexes, the embedder and the
// change detector of p. The vector side is left nil when embeddings are
// disabled, the embedder cannot start, or the stored vectors do not match
// the embedder.
func openEngine(ctx context.Context, p *project, opts openOptions, logger *slog.Logger) (e *engine, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	storage := p.storageDir()
	if err := os.MkdirAll(storage, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	e = &engine{project: p, logger: logger}
	defer func() {
		if err != nil {
			_ = e.Close()
			e = nil
		}
	}()

	if opts.write {
		lock := store.NewStorageLock(storage)
		if err := lock.Acquire(); err != nil {
			return e, err
		}
		e.lock = lock
	}

	embCfg := p.cfg.Embeddings
	if opts.offline {
		embCfg.Provider = string(embed.ProviderStatic)
	}
	e.embedder, err = embed.NewEmbedder(ctx, embCfg, logger)
	if err != nil {
		logger.Warn("vector_search_disabled",
			slog.String("code", kberrors.ErrCodeVectorEngineUnavailable),
			slog.String("reason", "embedder unavailable"),
			slog.String("error", err.Error()))
		e.embedder = nil
	}

	e.lexical, err = store.NewBleveIndex(filepath.Join(storage, lexicalDirName), logger)
	if err != nil {
		return e, err
	}

	if e.embedder != nil {
		if err := e.openVectors(storage, opts.resetVectors); err != nil {
			return e, err
		}
	}

	e.tracker, err = tracking.OpenStore(p.cfg.Tracking.Backend, storage)
	if err != nil {
		return e, err
	}
	e.detector = tracking.NewDetector(e.tracker, tracking.WithLogger(logger))
	if err := e.detector.Load(); err != nil {
		logger.Warn("tracking_load_failed", slog.String("error", err.Error()))
	}

	e.settings = runtimecfg.New(p.cfg.Search, logger)
	e.scorer = search.NewScorer(e.lexical, e.vectorIndex(), e.embedder, e.settings, search.WithLogger(logger))
	return e, nil
}

func (e *engine) openVectors(storage string, reset bool) error {
	path := filepath.Join(storage, vectorFileName)
	dims := e.embedder.Dimensions()

	vec, err := store.NewHNSWIndex(path, dims)
	var mismatch store.ErrDimensionMismatch
	switch {
	case err == nil:
		e.vector = vec
		return nil
	case !errors.As(err, &mismatch):
		return err
	case !reset:
		e.logger.Warn("vector_search_disabled",
			slog.String("reason", mismatch.Error()))
		return nil
	}

	e.logger.Info("vector_index_reset",
		slog.Int("stored_dimensions", mismatch.Expected),
		slog.Int("dimensions", dims))
	for _, f := range []string{path, path + ".meta"} {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale vector index: %w", err)
		}
	}
	e.vector, err = store.NewHNSWIndex(path, dims)
	return err
}

// vectorIndex returns the vector index as an interface, nil when absent.
func (e *engine) vectorIndex() store.VectorIndex {
	if e.vector == nil {
		return nil
	}
	return e.vector
}

// vectorEmbedder returns the embedder only when a vector index is open.
func (e *engine) vectorEmbedder() embed.Embedder {
	if e.vector == nil {
		return nil
	}
	return e.embedder
}

// embedderInfo describes the vector side for status output.
func (e *engine) embedderInfo() ui.EmbedderInfo {
	if e.embedder == nil || e.vector == nil {
		return ui.EmbedderInfo{Backend: string(embed.ProviderNone)}
	}
	backend := string(embed.ProviderOllama)
	if e.embedder.ModelName() == embed.StaticModelName {
		backend = string(embed.ProviderStatic)
	}
	return ui.EmbedderInfo{
		Backend:    backend,
		Model:      e.embedder.ModelName(),
		Dimensions: e.embedder.Dimensions(),
	}
}

// pipeline builds an ingestion pipeline over the engine's stores.
func (e *engine) pipeline(progress func(index.Progress)) (*index.Pipeline, error) {
	cfg := e.project.cfg
	opts := []index.Option{index.WithLogger(e.logger)}
	if progress != nil {
		opts = append(opts, index.WithProgress(progress))
	}

	chunker := chunk.NewChunker(chunk.Options{
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
		MaxChunks:    cfg.Document.MaxChunks,
	}, e.logger)

	return index.NewPipeline(index.Dependencies{
		Parser:    parser.NewTextParser(),
		Scanner:   scanner.New(e.logger),
		Lexical:   e.lexical,
		Vector:    e.vectorIndex(),
		Embedder:  e.vectorEmbedder(),
		Detector:  e.detector,
		Optimizer: optimizer.New(optimizer.ConfigFrom(cfg.Document), optimizer.WithLogger(e.logger)),
		Chunker:   chunker,
		Lock:      e.runLock(),
	}, index.ConfigFrom(cfg, e.project.root), opts...)
}

// runLock is the lock a pipeline takes per run, nil when the engine
// already holds the storage lock for its lifetime.
func (e *engine) runLock() *store.StorageLock {
	if e.lock != nil {
		return nil
	}
	return store.NewStorageLock(e.project.storageDir())
}

// status collects the index state shown by status and index_status.
func (e *engine) status() (ui.StatusInfo, error) {
	docs, err := e.lexical.Count()
	if err != nil {
		return ui.StatusInfo{}, err
	}

	stats := e.detector.Stats()
	info := ui.StatusInfo{
		SourceDir:       e.project.sourceDir(),
		StoragePath:     e.project.storageDir(),
		TrackingBackend: trackingBackend(e.project.cfg),
		TrackedFiles:    stats.TrackedFiles,
		TrackedBytes:    stats.TotalBytes,
		Documents:       docs,
		Embedder:        e.embedderInfo(),
	}
	if e.vector != nil {
		info.Vectors = e.vector.Count()
	}

	var last int64
	for _, path := range e.detector.Paths() {
		if rec, ok := e.detector.Record(path); ok {
			last = max(last, rec.IndexedAt)
		}
	}
	if last > 0 {
		info.LastIndexed = timeFromMillis(last)
	}
	return info, nil
}

// Close saves tracking state and closes every open store.
func (e *engine) Close() error {
	var errs []error
	if e.detector != nil {
		errs = append(errs, e.detector.Close())
	} else if e.tracker != nil {
		errs = append(errs, e.tracker.Close())
	}
	if e.vector != nil {
		errs = append(errs, e.vector.Close())
	}
	if e.lexical != nil {
		errs = append(errs, e.lexical.Close())
	}
	if e.embedder != nil {
		errs = append(errs, e.embedder.Close())
	}
	if e.lock != nil {
		errs = append(errs, e.lock.Release())
	}
	return errors.Join(errs...)
}

func trackingBackend(cfg *config.Config) string {
	if cfg.Tracking.Backend == "" {
		return "json"
	}
	return cfg.Tracking.Backend
}

// ignoreFunc returns the watcher filter matching what the scanner skips.
func ignoreFunc(p *project) func(rel string, isDir bool) bool {
	storage := p.storageDir()
	source := p.sourceDir()
	patterns := slices.Clone(p.cfg.Paths.Exclude)
	textFiles := parser.NewTextParser()

	return func(rel string, isDir bool) bool {
		if rel == "." {
			return false
		}
		abs := filepath.Join(source, rel)
		if abs == storage || strings.HasPrefix(abs, storage+string(filepath.Separator)) {
			return true
		}
		if scanner.Excluded(rel, isDir, patterns) {
			return true
		}
		return !isDir && !textFiles.Supports(rel)
	}
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
