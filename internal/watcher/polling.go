package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

func (w *Watcher) runPolling(ctx context.Context) error {
	state := w.snapshot()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			current := w.snapshot()
			for _, ev := range diff(state, current) {
				w.debouncer.Add(ev)
			}
			state = current
		}
	}
}

// snapshot records every non-ignored entry under the root.
func (w *Watcher) snapshot() map[string]fileSnapshot {
	state := make(map[string]fileSnapshot)
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil || rel == "." {
			return nil
		}
		if w.opts.Ignore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		state[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return state
}

// diff returns the events turning prev into current.
func diff(prev, current map[string]fileSnapshot) []FileEvent {
	now := time.Now()
	var events []FileEvent
	for path, cur := range current {
		old, ok := prev[path]
		switch {
		case !ok:
			events = append(events, FileEvent{Path: path, Operation: OpCreate, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (!old.modTime.Equal(cur.modTime) || old.size != cur.size):
			events = append(events, FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path, old := range prev {
		if _, ok := current[path]; !ok {
			events = append(events, FileEvent{Path: path, Operation: OpDelete, IsDir: old.isDir, Timestamp: now})
		}
	}
	return events
}
