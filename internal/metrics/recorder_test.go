package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func sample(i int, outcome Outcome, d time.Duration) Sample {
	return Sample{
		Timestamp: base.Add(time.Duration(i) * time.Second),
		Duration:  d,
		Outcome:   outcome,
		Subject:   "listings",
	}
}

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder(10)

	r.Record(sample(0, OutcomeExecuted, 10*time.Millisecond))
	r.Record(sample(1, OutcomeCached, 0))
	r.Record(sample(2, OutcomeCached, 0))
	r.Record(sample(3, OutcomeError, 30*time.Millisecond))
	r.MarkSlow()

	s := r.Summary()
	assert.Equal(t, int64(4), s.Total)
	assert.Equal(t, int64(2), s.Cached)
	assert.Equal(t, int64(1), s.Executed)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.Slow)
	assert.InDelta(t, 2.0/3.0, s.CacheHitRate, 0.0001)
	assert.InDelta(t, 10.0, s.AverageMS, 0.0001)
	assert.InDelta(t, 30.0, s.MaxMS, 0.0001)
}

func TestRecorder_RingDropsOlderHalf(t *testing.T) {
	r := NewRecorder(10)

	for i := 0; i < 11; i++ {
		r.Record(sample(i, OutcomeExecuted, time.Duration(i)*time.Millisecond))
	}

	samples := r.Samples()
	assert.Len(t, samples, 5)
	assert.Equal(t, base.Add(6*time.Second), samples[0].Timestamp)
	assert.Equal(t, base.Add(10*time.Second), samples[4].Timestamp)
	assert.Equal(t, int64(11), r.Summary().Total)
}

func TestRecorder_NeverExceedsWindow(t *testing.T) {
	r := NewRecorder(8)
	for i := 0; i < 100; i++ {
		r.Record(sample(i, OutcomeExecuted, time.Millisecond))
		assert.LessOrEqual(t, len(r.Samples()), 8)
	}
}

func TestRecorder_Prune(t *testing.T) {
	r := NewRecorder(10)
	for i := 0; i < 5; i++ {
		r.Record(sample(i, OutcomeExecuted, time.Millisecond))
	}

	dropped := r.Prune(base.Add(3 * time.Second))

	assert.Equal(t, 3, dropped)
	assert.Len(t, r.Samples(), 2)
	assert.Equal(t, 0, r.Prune(base))
}

func TestRecorder_EmptySummary(t *testing.T) {
	s := NewRecorder(0).Summary()
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AverageMS)
	assert.Zero(t, s.CacheHitRate)
}

func TestRecorder_Reset(t *testing.T) {
	r := NewRecorder(10)
	r.Record(sample(0, OutcomeExecuted, time.Millisecond))
	r.MarkSlow()

	r.Reset()

	assert.Equal(t, Summary{}, r.Summary())
}
