// Package watcher reports debounced batches of file changes under a source
// directory, using fsnotify and falling back to polling where fsnotify is
// unavailable.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is a file system change.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change, relative to the watched root.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted. Default: 500ms
	Debounce time.Duration

	// PollInterval is used when fsnotify cannot start. Default: 5s
	PollInterval time.Duration

	// Ignore filters paths relative to the root. Nil ignores nothing.
	Ignore func(relPath string, isDir bool) bool

	// ForcePolling skips fsnotify.
	ForcePolling bool

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.Ignore == nil {
		o.Ignore = func(string, bool) bool { return false }
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	opts      Options
	root      string
	debouncer *Debouncer
	fsw       *fsnotify.Watcher
	errors    chan error

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher for root. It does not start watching.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root is not a directory: %s", abs)
	}

	opts = opts.withDefaults()
	w := &Watcher{
		opts:      opts,
		root:      abs,
		debouncer: NewDebouncer(opts.Debounce, opts.Logger),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			opts.Logger.Warn("fsnotify_unavailable",
				slog.String("error", err.Error()),
				slog.String("fallback", "polling"))
		} else {
			w.fsw = fsw
		}
	}
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Events returns debounced batches. Closed after Run returns.
func (w *Watcher) Events() <-chan []FileEvent { return w.debouncer.Output() }

// Errors returns non-fatal watch errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Run watches until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Stop()

	if w.fsw != nil {
		if err := w.addRecursive(w.root); err != nil {
			return fmt.Errorf("watch directories: %w", err)
		}
		w.opts.Logger.Info("watch_started", slog.String("root", w.root), slog.String("mode", w.Mode()))
		return w.runFsnotify(ctx)
	}
	w.opts.Logger.Info("watch_started", slog.String("root", w.root), slog.String("mode", w.Mode()))
	return w.runPolling(ctx)
}

// Stop ends Run and closes Events. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			_ = w.fsw.Close()
		}
		w.debouncer.Stop()
	})
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if w.opts.Ignore(rel, isDir) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			if err := w.addRecursive(ev.Name); err != nil {
				w.emitError(err)
			}
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addRecursive watches dir and every non-ignored directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		if rel != "." && w.opts.Ignore(rel, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.opts.Logger.Warn("watch_error", slog.String("error", err.Error()))
	}
}
