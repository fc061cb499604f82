package tracking

import (
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	kberrors "github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/errors"
)

// Detector decides whether a file needs reindexing. One Detector is owned
// by one pipeline run; all methods are safe for concurrent use.
type Detector struct {
	mu      sync.RWMutex
	records map[string]Record

	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithClock overrides the clock used for IndexedAt.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector returns an empty detector persisting through store.
// Call Load to read existing records.
func NewDetector(store Store, opts ...Option) *Detector {
	d := &Detector{
		records: make(map[string]Record),
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NeedsUpdate reports whether path must be (re)indexed: no record exists,
// or the stored mtime or size differ. Unresolvable paths always need an update.
func (d *Detector) NeedsUpdate(path string, mtime time.Time, size int64) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}

	d.mu.RLock()
	rec, ok := d.records[abs]
	d.mu.RUnlock()

	if !ok {
		return true
	}
	return rec.LastModified != mtime.UnixMilli() || rec.FileSize != size
}

// MarkIndexed upserts the record for path. docIDs are the documents
// produced from the file, used to delete them when the file changes.
func (d *Detector) MarkIndexed(path string, mtime time.Time, size int64, docIDs ...string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		d.logger.Warn("tracking_mark_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	rec := Record{
		FilePath:     abs,
		FileName:     filepath.Base(abs),
		LastModified: mtime.UnixMilli(),
		FileSize:     size,
		IndexedAt:    d.now().UnixMilli(),
		DocumentIDs:  append([]string(nil), docIDs...),
	}

	d.mu.Lock()
	d.records[abs] = rec
	d.mu.Unlock()
}

// Record returns the record for path, if any.
func (d *Detector) Record(path string) (Record, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Record{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[abs]
	return rec, ok
}

// Remove drops the record for path.
func (d *Detector) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	d.mu.Lock()
	delete(d.records, abs)
	d.mu.Unlock()
}

// Paths returns all tracked absolute paths, sorted.
func (d *Detector) Paths() []string {
	d.mu.RLock()
	paths := make([]string, 0, len(d.records))
	for p := range d.records {
		paths = append(paths, p)
	}
	d.mu.RUnlock()
	sort.Strings(paths)
	return paths
}

// Stats returns the tracked file count and total size.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := Stats{TrackedFiles: len(d.records)}
	for _, r := range d.records {
		s.TotalBytes += r.FileSize
	}
	return s
}

// Load replaces the in-memory records with the persisted ones.
// On failure the detector is left empty, so the next build reindexes
// everything, and the error is returned for the caller to log.
func (d *Detector) Load() error {
	records, err := d.store.Load()
	if err != nil {
		d.mu.Lock()
		d.records = make(map[string]Record)
		d.mu.Unlock()
		d.logger.Warn("tracking_load_failed", slog.String("error", err.Error()))
		return kberrors.TrackingIO("failed to load file tracking", err)
	}
	if records == nil {
		records = make(map[string]Record)
	}

	d.mu.Lock()
	d.records = records
	d.mu.Unlock()

	d.logger.Debug("tracking_loaded", slog.Int("files", len(records)))
	return nil
}

// Save persists a snapshot of the records.
func (d *Detector) Save() error {
	d.mu.RLock()
	snapshot := make(map[string]Record, len(d.records))
	for k, v := range d.records {
		snapshot[k] = v
	}
	d.mu.RUnlock()

	if err := d.store.Save(snapshot); err != nil {
		return kberrors.TrackingIO("failed to save file tracking", err)
	}
	d.logger.Debug("tracking_saved", slog.Int("files", len(snapshot)))
	return nil
}

// ClearAll forgets every record, in memory and on disk.
func (d *Detector) ClearAll() error {
	d.mu.Lock()
	d.records = make(map[string]Record)
	d.mu.Unlock()

	if err := d.store.Clear(); err != nil {
		return kberrors.TrackingIO("failed to clear file tracking", err)
	}
	return nil
}

// Close closes the underlying store.
func (d *Detector) Close() error {
	return d.store.Close()
}
