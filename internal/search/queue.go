package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fabienpiette/wanderlust/internal/clock"
)

const (
	// DefaultMaxConcurrentRequests bounds in-flight backend calls
	DefaultMaxConcurrentRequests = 5
	// DefaultRequestTimeout bounds a single admitted backend call
	DefaultRequestTimeout = 5 * time.Second
)

// QueuedRequest describes a search waiting for or holding a queue slot
type QueuedRequest struct {
	Query      string
	Options    Options
	EnqueuedAt time.Time
}

// QueueStats reports request queue activity
type QueueStats struct {
	MaxConcurrent int   `json:"max_concurrent"`
	Active        int   `json:"active"`
	Waiting       int   `json:"waiting"`
	PeakActive    int   `json:"peak_active"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	TimedOut      int64 `json:"timed_out"`
	Abandoned     int64 `json:"abandoned"`
}

type callResult struct {
	records []Record
	err     error
}

// RequestQueue admits at most maxConcurrent calls at once. Waiters are served
// in arrival order. Each admitted call gets its own timeout, and a call that
// times out releases its slot straight away.
type RequestQueue struct {
	sem           *semaphore.Weighted
	maxConcurrent int
	timeout       time.Duration
	clock         clock.Clock

	mu    sync.Mutex
	stats QueueStats
}

// NewRequestQueue creates a request queue
func NewRequestQueue(maxConcurrent int, timeout time.Duration, clk clock.Clock) *RequestQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRequests
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &RequestQueue{
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: maxConcurrent,
		timeout:       timeout,
		clock:         clk,
		stats:         QueueStats{MaxConcurrent: maxConcurrent},
	}
}

// Enqueue builds a QueuedRequest stamped with the current time
func (q *RequestQueue) Enqueue(query string, opts Options) QueuedRequest {
	return QueuedRequest{Query: query, Options: opts, EnqueuedAt: q.clock.Now()}
}

// Do waits for a slot and then runs call, racing it against the timeout. If
// ctx ends while waiting, ctx.Err() is returned and call never runs.
func (q *RequestQueue) Do(ctx context.Context, req QueuedRequest, call func(context.Context, QueuedRequest) ([]Record, error)) ([]Record, error) {
	q.mu.Lock()
	q.stats.Waiting++
	q.mu.Unlock()

	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.mu.Lock()
		q.stats.Waiting--
		q.stats.Abandoned++
		q.mu.Unlock()
		return nil, err
	}

	q.mu.Lock()
	q.stats.Waiting--
	q.stats.Active++
	if q.stats.Active > q.stats.PeakActive {
		q.stats.PeakActive = q.stats.Active
	}
	q.mu.Unlock()

	records, err := q.run(ctx, req, call)

	q.mu.Lock()
	q.stats.Active--
	switch {
	case errors.Is(err, ErrSearchTimeout):
		q.stats.TimedOut++
	case err != nil:
		q.stats.Failed++
	default:
		q.stats.Completed++
	}
	q.mu.Unlock()

	q.sem.Release(1)

	return records, err
}

func (q *RequestQueue) run(ctx context.Context, req QueuedRequest, call func(context.Context, QueuedRequest) ([]Record, error)) ([]Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		records, err := call(callCtx, req)
		done <- callResult{records: records, err: err}
	}()

	select {
	case res := <-done:
		return res.records, res.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrSearchTimeout
	}
}

// Stats returns a snapshot of queue counters
func (q *RequestQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
