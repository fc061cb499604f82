package index

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/scanner"
)

// processSerial handles files one at a time, committing when the estimated
// batch memory crosses the optimizer threshold or every serialCommitEvery files.
func (p *Pipeline) processSerial(ctx context.Context, files []*scanner.FileInfo, st *runState) {
	opt := p.deps.Optimizer
	opt.ResetBatchMemory()

	var pending []*prepared
	flush := func() {
		if len(pending) == 0 {
			return
		}
		p.commitMu.Lock()
		p.commit(context.WithoutCancel(ctx), pending, st)
		p.commitMu.Unlock()
		pending = pending[:0]
		opt.ResetBatchMemory()
		opt.CheckAndTriggerGC()
	}

	for i, f := range files {
		if ctx.Err() != nil {
			break
		}
		p.emit(Progress{Stage: StageIndexing, Current: i, Total: st.total, File: f.Path})

		p.processOne(ctx, f, st, &pending)
		st.processed.Add(1)

		if opt.ShouldBatch(0) || (i+1)%serialCommitEvery == 0 {
			flush()
		}
		if (i+1)%serialMemoryLogEvery == 0 || i == len(files)-1 {
			opt.LogMemoryUsage("serial")
		}
	}
	flush()
}

// processOne prepares and applies f, appending it to pending on success.
func (p *Pipeline) processOne(ctx context.Context, f *scanner.FileInfo, st *runState, pending *[]*prepared) {
	pf, err := p.prepare(ctx, f, st.logger)
	if err != nil {
		p.fileFailed(st, f, err)
		return
	}
	if pf == nil {
		st.skipped.Add(1)
		return
	}

	p.commitMu.Lock()
	err = p.apply(context.WithoutCancel(ctx), pf, st.logger)
	p.commitMu.Unlock()
	if err != nil {
		p.fileFailed(st, f, err)
		return
	}

	*pending = append(*pending, pf)
	p.deps.Optimizer.AddBatchMemory(p.deps.Optimizer.EstimateMemoryUsage(pf.chars))
}

// processParallel splits files into batches handled by a bounded worker
// pool. Each batch is prepared without locks and written under commitMu.
// The run waits for every batch. Only when ctx is cancelled does the wait
// become bounded: workers stop at their next file and get ShutdownTimeout
// to commit what they prepared.
func (p *Pipeline) processParallel(ctx context.Context, files []*scanner.FileInfo, st *runState) {
	batches := partition(files, p.cfg.BatchSize)
	st.logger.Info("parallel_processing_started",
		slog.Int("files", len(files)),
		slog.Int("batches", len(batches)),
		slog.Int("workers", p.cfg.Workers),
		slog.Int("batch_size", p.cfg.BatchSize))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, batch := range batches {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				p.processBatch(ctx, batch, st)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.awaitShutdown(done, st)
	}

	p.deps.Optimizer.LogMemoryUsage("parallel")
}

// awaitShutdown waits at most ShutdownTimeout for cancelled workers.
func (p *Pipeline) awaitShutdown(done <-chan struct{}, st *runState) {
	timer := time.NewTimer(p.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		st.abandoned.Store(true)
		st.logger.Warn("pool_shutdown_forced",
			slog.Duration("timeout", p.cfg.ShutdownTimeout),
			slog.Int64("processed", st.processed.Load()),
			slog.Int("total", st.total))
	}
}

// processBatch prepares every file of batch, then applies and commits the
// prepared ones in one critical section. A cancelled batch stops preparing
// but still commits the files it already prepared.
func (p *Pipeline) processBatch(ctx context.Context, batch []*scanner.FileInfo, st *runState) {
	ready := make([]*prepared, 0, len(batch))
	for _, f := range batch {
		if ctx.Err() != nil {
			break
		}
		pf, err := p.prepare(ctx, f, st.logger)
		switch {
		case err != nil:
			p.fileFailed(st, f, err)
		case pf == nil:
			st.skipped.Add(1)
		default:
			ready = append(ready, pf)
		}

		n := st.processed.Add(1)
		p.emit(Progress{Stage: StageIndexing, Current: int(n), Total: st.total, File: f.Path})
		if n%parallelProgressEvery == 0 || int(n) == st.total {
			st.logger.Info("parallel_progress",
				slog.Int64("processed", n),
				slog.Int("total", st.total),
				slog.Int64("success", st.success.Load()),
				slog.Int64("failed", st.failed.Load()))
			p.deps.Optimizer.LogMemoryUsage("parallel")
		}
		if n%int64(p.cfg.BatchSize*3) == 0 {
			p.deps.Optimizer.CheckAndTriggerGC()
		}
	}
	if len(ready) == 0 {
		return
	}

	writeCtx := context.WithoutCancel(ctx)

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	applied := ready[:0]
	for _, pf := range ready {
		if err := p.apply(writeCtx, pf, st.logger); err != nil {
			p.fileFailed(st, pf.file, err)
			continue
		}
		applied = append(applied, pf)
	}
	if len(applied) > 0 {
		p.commit(writeCtx, applied, st)
	}
}

func partition(files []*scanner.FileInfo, size int) [][]*scanner.FileInfo {
	batches := make([][]*scanner.FileInfo, 0, (len(files)+size-1)/size)
	for start := 0; start < len(files); start += size {
		end := min(start+size, len(files))
		batches = append(batches, files[start:end])
	}
	return batches
}
