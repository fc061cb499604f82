// Package optimizer decides file admission, chunking and batch commits from
// size limits and observed heap pressure.
package optimizer

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/config"
)

const (
	// DefaultGCThresholdPercent triggers a GC hint above this heap utilization.
	DefaultGCThresholdPercent = 80.0
	criticalPercent           = 90.0
	gcSettleDelay             = 100 * time.Millisecond
)

// Config holds the optimizer limits in bytes.
type Config struct {
	MaxFileSize          int64
	MaxContentSize       int64
	AutoChunkThreshold   int64
	BatchMemoryThreshold int64
	GCThresholdPercent   float64
}

// ConfigFrom converts the megabyte-based document config.
func ConfigFrom(d config.DocumentConfig) Config {
	return Config{
		MaxFileSize:          d.MaxFileSizeMB * mb,
		MaxContentSize:       d.MaxContentSizeMB * mb,
		AutoChunkThreshold:   d.AutoChunkThresholdMB * mb,
		BatchMemoryThreshold: d.BatchMemoryMB * mb,
		GCThresholdPercent:   DefaultGCThresholdPercent,
	}
}

// DefaultConfig returns the limits for the default document config.
func DefaultConfig() Config {
	return ConfigFrom(config.NewConfig().Document)
}

// Optimizer is safe for concurrent use; counters are atomic.
type Optimizer struct {
	cfg    Config
	memory MemoryReader
	gc     GCHinter
	logger *slog.Logger
	sleep  func(time.Duration)

	batchMemory atomic.Int64
	peakBytes   atomic.Uint64
	gcCount     atomic.Int64
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithMemoryReader replaces the runtime heap reader.
func WithMemoryReader(r MemoryReader) Option {
	return func(o *Optimizer) { o.memory = r }
}

// WithGCHinter replaces the runtime GC hint.
func WithGCHinter(g GCHinter) Option {
	return func(o *Optimizer) { o.gc = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// WithSleep replaces the wait after a GC hint.
func WithSleep(fn func(time.Duration)) Option {
	return func(o *Optimizer) { o.sleep = fn }
}

// New creates an Optimizer reading the Go runtime by default.
func New(cfg Config, opts ...Option) *Optimizer {
	if cfg.GCThresholdPercent <= 0 {
		cfg.GCThresholdPercent = DefaultGCThresholdPercent
	}
	o := &Optimizer{
		cfg:    cfg,
		memory: RuntimeMemory{},
		gc:     RuntimeMemory{},
		logger: slog.Default(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.observe(o.memory.Read())
	return o
}

// CheckFileSize reports whether a file of size bytes may be processed.
func (o *Optimizer) CheckFileSize(size int64) bool {
	return size <= o.cfg.MaxFileSize
}

// NeedsForceChunking reports whether content is too large to index whole.
func (o *Optimizer) NeedsForceChunking(contentLen int) bool {
	return int64(contentLen) > o.cfg.MaxContentSize
}

// ShouldAutoChunk reports whether content is large enough to chunk anyway.
func (o *Optimizer) ShouldAutoChunk(contentLen int) bool {
	return int64(contentLen) > o.cfg.AutoChunkThreshold
}

// EstimateMemoryUsage estimates the in-memory cost of content (2 bytes per char).
func (o *Optimizer) EstimateMemoryUsage(contentLen int) int64 {
	return int64(contentLen) * 2
}

// AddBatchMemory adds n bytes to the pending batch counter.
func (o *Optimizer) AddBatchMemory(n int64) {
	o.batchMemory.Add(n)
}

// BatchMemory returns the pending batch counter.
func (o *Optimizer) BatchMemory() int64 {
	return o.batchMemory.Load()
}

// ShouldBatch reports whether adding next bytes would exceed the batch threshold.
func (o *Optimizer) ShouldBatch(next int64) bool {
	return o.batchMemory.Load()+next > o.cfg.BatchMemoryThreshold
}

// ResetBatchMemory zeroes the pending batch counter after a commit.
func (o *Optimizer) ResetBatchMemory() {
	o.batchMemory.Store(0)
}

// CheckAndTriggerGC hints a collection when heap utilization is above the
// threshold, then waits briefly and logs the effect. It reports whether a
// hint was issued.
func (o *Optimizer) CheckAndTriggerGC() bool {
	before := o.memory.Read()
	o.observe(before)
	if before.Percent() <= o.cfg.GCThresholdPercent {
		return false
	}

	o.logger.Info("gc_triggered",
		slog.Float64("usage_percent", before.Percent()),
		slog.Int64("used_mb", before.UsedMB()))

	o.gc.Collect()
	o.gcCount.Add(1)
	o.sleep(gcSettleDelay)

	after := o.memory.Read()
	o.observe(after)
	o.logger.Info("gc_completed",
		slog.Float64("usage_percent", after.Percent()),
		slog.Int64("freed_mb", before.UsedMB()-after.UsedMB()))
	return true
}

// LogMemoryUsage logs heap utilization for phase, escalating to warn above
// 80% and error above 90%.
func (o *Optimizer) LogMemoryUsage(phase string) MemoryStats {
	s := o.memory.Read()
	o.observe(s)

	attrs := []any{
		slog.String("phase", phase),
		slog.Int64("used_mb", s.UsedMB()),
		slog.Int64("limit_mb", s.LimitMB()),
		slog.Float64("usage_percent", s.Percent()),
	}

	switch p := s.Percent(); {
	case p > criticalPercent:
		o.logger.Error("memory_critical", attrs...)
	case p > DefaultGCThresholdPercent:
		o.logger.Warn("memory_high", attrs...)
	default:
		o.logger.Info("memory_usage", attrs...)
	}
	return s
}

// PeakMemoryMB returns the largest heap observed since construction.
func (o *Optimizer) PeakMemoryMB() int64 {
	return int64(o.peakBytes.Load() / mb)
}

// GCCount returns how many GC hints were issued.
func (o *Optimizer) GCCount() int64 {
	return o.gcCount.Load()
}

func (o *Optimizer) observe(s MemoryStats) {
	for {
		cur := o.peakBytes.Load()
		if s.UsedBytes <= cur || o.peakBytes.CompareAndSwap(cur, s.UsedBytes) {
			return
		}
	}
}
