package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces bursts of file events into batches. A batch is
// emitted once no event has arrived for the window. Events for the same
// path are merged:
//   - CREATE then MODIFY is CREATE
//   - CREATE then DELETE cancels out
//   - MODIFY then DELETE is DELETE
//   - DELETE then CREATE is MODIFY
type Debouncer struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	stopped bool
	output  chan []FileEvent
}

// NewDebouncer creates a debouncer emitting after window of quiet.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		op, keep := merge(prev.Operation, event.Operation)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			event.Operation = op
			d.pending[event.Path] = event
		}
	} else {
		d.pending[event.Path] = event
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// merge combines two operations on one path. keep is false when they
// cancel out.
func merge(first, next Operation) (op Operation, keep bool) {
	switch {
	case first == OpCreate && next == OpModify:
		return OpCreate, true
	case first == OpCreate && next == OpDelete:
		return 0, false
	case first == OpDelete && next == OpCreate:
		return OpModify, true
	default:
		return next, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]FileEvent)

	select {
	case d.output <- batch:
	default:
		d.logger.Warn("watch_batch_dropped", slog.Int("events", len(batch)))
	}
}

// Output returns the channel of batches, sorted by path.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
