package ui

import (
	"sync"
	"time"
)

// etaSmoothing weights a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// ProgressTracker holds the progress state the TUI draws from.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time
	lastETA     time.Duration
	errors      int
	warnings    int
	now         func() time.Time
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0.0 to 1.0
	Rate        float64 // files per second in the current stage
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
}

// NewProgressTracker creates a tracker at the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{stage: StageScanning, stageStart: time.Now(), now: time.Now}
}

// SetStage moves to stage with a new total and resets the counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = p.now()
	p.lastETA = 0
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot. The ETA is smoothed across calls.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		CurrentFile: p.currentFile,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
	}
	if p.total > 0 {
		s.Progress = min(float64(p.current)/float64(p.total), 1.0)
	}

	elapsed := p.now().Sub(p.stageStart)
	if elapsed > 0 && p.current > 0 {
		s.Rate = float64(p.current) / elapsed.Seconds()
	}
	s.ETA = p.eta(elapsed, s.Progress)
	return s
}

func (p *ProgressTracker) eta(elapsed time.Duration, progress float64) time.Duration {
	if progress <= 0 || progress >= 1 {
		return 0
	}
	raw := time.Duration(float64(elapsed)/progress) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}
