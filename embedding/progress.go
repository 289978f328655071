package embedding

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressFunc is invoked after every batch with the number of chunks
// attempted so far and the total number of chunks.
type ProgressFunc func(processed, total int)

// ProgressTracker writes a single, rewritten progress line to a writer.
// It is safe for concurrent use, so one tracker can aggregate several tasks.
type ProgressTracker struct {
	mu             sync.Mutex
	writer         io.Writer
	label          string
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
}

// NewProgressTracker creates a tracker that reports every reportInterval units.
func NewProgressTracker(writer io.Writer, label string, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		label:          label,
		total:          total,
		reportInterval: max(1, reportInterval),
	}
}

// Start resets the tracker and begins timing.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.lastReported = 0
}

// AddTotal grows the expected total, for work discovered after Start.
func (p *ProgressTracker) AddTotal(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += delta
}

// Increment advances the tracker by delta.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = min(p.current+delta, p.total)
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Func returns a ProgressFunc for one chunk sequence that feeds the tracker
// with the chunks attempted since its previous call.
func (p *ProgressTracker) Func() ProgressFunc {
	var seen int
	return func(processed, _ int) {
		delta := processed - seen
		seen = processed
		if delta > 0 {
			p.Increment(delta)
		}
	}
}

// Finish reports the final state and terminates the line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// Current returns the units completed so far.
func (p *ProgressTracker) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\r%s: %d/%d (%.1f%%) - %.1f/s",
		p.label, p.current, p.total, percentage, rate)
}
