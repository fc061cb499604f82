// Package async runs index builds in the background while the index is
// already being served.
package async

import (
	"sync"
	"time"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/index"
)

// Status is the overall state of a background build.
type Status string

const (
	// StatusIdle means no build has been started.
	StatusIdle Status = "idle"
	// StatusIndexing means a build is running. Search answers from the
	// documents committed so far.
	StatusIndexing Status = "indexing"
	// StatusReady means the last build finished.
	StatusReady Status = "ready"
	// StatusError means the last build failed.
	StatusError Status = "error"
)

// Snapshot is an immutable copy of a Progress.
type Snapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	Documents      int     `json:"documents"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress is a thread-safe record of one background build.
type Progress struct {
	mu sync.RWMutex

	status         Status
	stage          string
	filesTotal     int
	filesProcessed int
	documents      int
	startTime      time.Time
	errorMessage   string
	now            func() time.Time
}

// NewProgress returns an idle progress record.
func NewProgress() *Progress {
	return &Progress{status: StatusIdle, now: time.Now}
}

func (p *Progress) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.stage = ""
	p.filesTotal = 0
	p.filesProcessed = 0
	p.documents = 0
	p.errorMessage = ""
	p.startTime = p.now()
}

// Observe records a pipeline progress report.
func (p *Progress) Observe(ev index.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stageName(ev.Stage)
	p.filesTotal = ev.Total
	p.filesProcessed = ev.Current
}

// Finish records the outcome of a build.
func (p *Progress) Finish(result index.BuildResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.documents = result.TotalDocuments
	if result.Err != nil {
		p.status = StatusError
		p.errorMessage = result.Err.Error()
		return
	}
	p.status = StatusReady
	p.stage = stageName(index.StageComplete)
}

func (p *Progress) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = err.Error()
}

// IsIndexing reports whether a build is running.
func (p *Progress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}
	var elapsed int
	if !p.startTime.IsZero() {
		elapsed = int(p.now().Sub(p.startTime).Seconds())
	}

	return Snapshot{
		Status:         string(p.status),
		Stage:          p.stage,
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		Documents:      p.documents,
		ProgressPct:    pct,
		ElapsedSeconds: elapsed,
		ErrorMessage:   p.errorMessage,
	}
}

func stageName(s index.Stage) string {
	switch s {
	case index.StageScanning:
		return "scanning"
	case index.StageIndexing:
		return "indexing"
	case index.StageCommitting:
		return "committing"
	case index.StageComplete:
		return "complete"
	default:
		return ""
	}
}
