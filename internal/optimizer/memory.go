package optimizer

import (
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
)

const mb = 1024 * 1024

// MemoryStats is a point-in-time heap reading.
type MemoryStats struct {
	UsedBytes  uint64
	LimitBytes uint64
}

// Percent returns used/limit as a percentage. A zero limit reads as 0%.
func (s MemoryStats) Percent() float64 {
	if s.LimitBytes == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.LimitBytes) * 100
}

// UsedMB returns the used heap in whole megabytes.
func (s MemoryStats) UsedMB() int64 { return int64(s.UsedBytes / mb) }

// LimitMB returns the limit in whole megabytes.
func (s MemoryStats) LimitMB() int64 { return int64(s.LimitBytes / mb) }

// String implements fmt.Stringer.
func (s MemoryStats) String() string {
	return fmt.Sprintf("used=%s limit=%s (%.1f%%)", FormatBytes(s.UsedBytes), FormatBytes(s.LimitBytes), s.Percent())
}

// MemoryReader observes heap utilization.
type MemoryReader interface {
	Read() MemoryStats
}

// GCHinter asks the runtime to collect garbage.
type GCHinter interface {
	Collect()
}

// RuntimeMemory reads the Go runtime. The limit is the soft memory limit
// (GOMEMLIMIT) when one is set, otherwise the memory obtained from the OS.
type RuntimeMemory struct{}

// Read implements MemoryReader.
func (RuntimeMemory) Read() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	limit := m.Sys
	if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
		limit = uint64(l)
	}
	return MemoryStats{UsedBytes: m.HeapAlloc, LimitBytes: limit}
}

// Collect implements GCHinter.
func (RuntimeMemory) Collect() { runtime.GC() }

// NoopGC disables GC hints.
type NoopGC struct{}

// Collect implements GCHinter.
func (NoopGC) Collect() {}

// FormatBytes formats bytes into human-readable form.
func FormatBytes(bytes uint64) string {
	const (
		kb = 1024
		gb = mb * 1024
	)

	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
