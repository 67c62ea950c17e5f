// Package metrics keeps latency samples and outcome counters for the
// optimizers' reporting surface.
package metrics

import (
	"sync"
	"time"
)

// Outcome classifies how an operation was served
type Outcome string

const (
	OutcomeCached   Outcome = "cached"
	OutcomeExecuted Outcome = "executed"
	OutcomeError    Outcome = "error"
)

// DefaultWindow is the sample ring size used when none is configured
const DefaultWindow = 1000

// Sample is one timed operation
type Sample struct {
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Outcome   Outcome       `json:"outcome"`
	Subject   string        `json:"subject"`
}

// Summary is a point-in-time view of a Recorder
type Summary struct {
	Total         int64   `json:"total"`
	Cached        int64   `json:"cached"`
	Executed      int64   `json:"executed"`
	Errors        int64   `json:"errors"`
	Slow          int64   `json:"slow"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	AverageMS     float64 `json:"average_ms"`
	MaxMS         float64 `json:"max_ms"`
	SamplesWindow int     `json:"samples_window"`
}

// Recorder keeps the most recent samples in a bounded ring plus lifetime
// counters. When the ring overflows the older half is dropped.
type Recorder struct {
	mu      sync.RWMutex
	samples []Sample
	window  int

	total    int64
	cached   int64
	executed int64
	errors   int64
	slow     int64
}

// NewRecorder creates a recorder holding at most window samples
func NewRecorder(window int) *Recorder {
	if window <= 1 {
		window = DefaultWindow
	}
	return &Recorder{
		samples: make([]Sample, 0, window),
		window:  window,
	}
}

// Record appends a sample and updates the outcome counters
func (r *Recorder) Record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	switch s.Outcome {
	case OutcomeCached:
		r.cached++
	case OutcomeExecuted:
		r.executed++
	case OutcomeError:
		r.errors++
	}

	r.samples = append(r.samples, s)
	if len(r.samples) > r.window {
		keep := len(r.samples) / 2
		trimmed := make([]Sample, keep, r.window)
		copy(trimmed, r.samples[len(r.samples)-keep:])
		r.samples = trimmed
	}
}

// MarkSlow increments the slow-operation counter
func (r *Recorder) MarkSlow() {
	r.mu.Lock()
	r.slow++
	r.mu.Unlock()
}

// Prune drops samples recorded before cutoff and returns how many were dropped
func (r *Recorder) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.samples[:0]
	for _, s := range r.samples {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	dropped := len(r.samples) - len(kept)
	r.samples = kept

	return dropped
}

// Samples returns a copy of the samples currently in the ring
func (r *Recorder) Samples() []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Summary computes counters and the running average over the ring
func (r *Recorder) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := Summary{
		Total:         r.total,
		Cached:        r.cached,
		Executed:      r.executed,
		Errors:        r.errors,
		Slow:          r.slow,
		SamplesWindow: len(r.samples),
	}

	if served := r.cached + r.executed; served > 0 {
		summary.CacheHitRate = float64(r.cached) / float64(served)
	}

	if len(r.samples) > 0 {
		var total, max time.Duration
		for _, s := range r.samples {
			total += s.Duration
			if s.Duration > max {
				max = s.Duration
			}
		}
		summary.AverageMS = toMillis(total) / float64(len(r.samples))
		summary.MaxMS = toMillis(max)
	}

	return summary
}

// Reset clears samples and counters
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = make([]Sample, 0, r.window)
	r.total, r.cached, r.executed, r.errors, r.slow = 0, 0, 0, 0, 0
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
