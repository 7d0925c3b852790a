package xmodem

import (
	"sync"
	"time"
)

// Progress is a snapshot of one file's transfer.
type Progress struct {
	Filename    string
	Transferred int64 // payload bytes, clamped to Total when it is known
	Total       int64 // 0 if unknown
	Blocks      int
	Retries     int
	Rate        float64 // bytes per second over the whole transfer
	Elapsed     time.Duration
}

// ProgressTracker turns machine Stats into rate-limited progress
// callbacks. Batch machines report counters summed over all files, so
// each file is measured against the Stats seen when it started.
type ProgressTracker struct {
	mu sync.Mutex

	filename   string
	total      int64
	base       Stats
	last       Stats
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64

	callback       func(string, int64, int64, float64)
	updateInterval time.Duration
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback func(string, int64, int64, float64), interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &ProgressTracker{
		callback:       callback,
		updateInterval: interval,
	}
}

// Start begins tracking a new file. base is the machine's Stats at the
// moment the file starts.
func (pt *ProgressTracker) Start(filename string, total int64, base Stats) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.filename = filename
	pt.total = total
	pt.base = base
	pt.last = base
	pt.startTime = time.Now()
	pt.lastUpdate = pt.startTime
	pt.lastBytes = 0
}

// Observe records the machine's current Stats and invokes the callback
// if the update interval has passed.
func (pt *ProgressTracker) Observe(st Stats) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.last = st
	now := time.Now()
	if now.Sub(pt.lastUpdate) < pt.updateInterval {
		return
	}

	transferred := pt.transferred()
	var rate float64
	if elapsed := now.Sub(pt.lastUpdate).Seconds(); elapsed > 0 {
		rate = float64(transferred-pt.lastBytes) / elapsed
	}
	if pt.callback != nil {
		pt.callback(pt.filename, transferred, pt.total, rate)
	}

	pt.lastUpdate = now
	pt.lastBytes = transferred
}

// Complete reports the final count through the callback and returns
// the file's final snapshot.
func (pt *ProgressTracker) Complete() Progress {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p := pt.snapshot()
	if pt.callback != nil {
		pt.callback(p.Filename, p.Transferred, p.Total, 0)
	}
	return p
}

// Snapshot returns the current progress.
func (pt *ProgressTracker) Snapshot() Progress {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.snapshot()
}

func (pt *ProgressTracker) snapshot() Progress {
	p := Progress{
		Filename:    pt.filename,
		Transferred: pt.transferred(),
		Total:       pt.total,
		Blocks:      pt.last.Blocks - pt.base.Blocks,
		Retries:     pt.last.Retries - pt.base.Retries,
		Elapsed:     time.Since(pt.startTime),
	}
	if s := p.Elapsed.Seconds(); s > 0 {
		p.Rate = float64(p.Transferred) / s
	}
	return p
}

// transferred excludes padding once the total is known.
func (pt *ProgressTracker) transferred() int64 {
	n := pt.last.Bytes - pt.base.Bytes
	if pt.total > 0 && n > pt.total {
		n = pt.total
	}
	return n
}
