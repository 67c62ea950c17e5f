package search_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fabienpiette/wanderlust/internal/search"
	"github.com/fabienpiette/wanderlust/internal/testutil"
)

func newMockedOptimizer(t *testing.T, backend search.Backend, maxConcurrent int) *search.Optimizer {
	t.Helper()
	cfg := search.DefaultConfig()
	cfg.MaxConcurrentRequests = maxConcurrent
	return search.NewOptimizer(cfg, backend, nil, testutil.SetupTestLogger(t))
}

func TestOptimizer_BackendCalledOncePerCachedQuery(t *testing.T) {
	backend := &testutil.MockBackend{}
	backend.On("Search", mock.Anything, "paris", mock.AnythingOfType("search.Options")).
		Return(testutil.TestRecords(), nil).Once()

	opt := newMockedOptimizer(t, backend, 2)
	ctx := context.Background()

	first, err := opt.ExecuteSearch(ctx, "  Paris ", search.Options{SessionID: "a"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Len(t, first.Results, 2)

	// the session is not part of the cache key
	second, err := opt.ExecuteSearch(ctx, "paris", search.Options{SessionID: "b"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Results, second.Results)

	backend.AssertExpectations(t)
}

func TestOptimizer_BackendErrorsAreNotCached(t *testing.T) {
	backendErr := errors.New("listing store unavailable")

	backend := &testutil.MockBackend{}
	backend.On("Search", mock.Anything, "rome", mock.Anything).Return(nil, backendErr).Twice()

	opt := newMockedOptimizer(t, backend, 2)

	for i := 0; i < 2; i++ {
		_, err := opt.ExecuteSearch(context.Background(), "rome", search.Options{})
		assert.ErrorIs(t, err, backendErr)
	}

	backend.AssertNumberOfCalls(t, "Search", 2)
	stats := opt.Stats()
	assert.Equal(t, int64(2), stats.Errors)
	assert.Equal(t, int64(2), stats.Queue.Failed)
}

func TestOptimizer_ConcurrentLoadRespectsQueueBound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}

	backend := search.BackendFunc(func(ctx context.Context, q string, opts search.Options) ([]search.Record, error) {
		time.Sleep(2 * time.Millisecond)
		return testutil.TestRecords(), nil
	})
	opt := newMockedOptimizer(t, backend, 2)

	terms := testutil.GenerateSearchTerms(42, 64)
	var next int64

	runner := testutil.NewLoadTestRunner(&testutil.LoadTestConfig{
		Duration:    200 * time.Millisecond,
		Concurrency: 8,
	})
	results := runner.RunLoadTest(context.Background(), func(ctx context.Context) error {
		n := atomic.AddInt64(&next, 1)
		_, err := opt.ExecuteSearch(ctx, terms[int(n)%len(terms)], search.Options{SkipCache: true})
		return err
	})

	assert.Positive(t, results.SuccessCount)

	queue := opt.Stats().Queue
	assert.LessOrEqual(t, queue.PeakActive, 2)
	assert.Zero(t, queue.Active)
	assert.Positive(t, queue.Completed)
}

func BenchmarkExecuteSearch_Cached(b *testing.B) {
	backend := search.BackendFunc(func(ctx context.Context, q string, opts search.Options) ([]search.Record, error) {
		return testutil.TestRecords(), nil
	})
	opt := search.NewOptimizer(search.DefaultConfig(), backend, nil, testutil.QuietLogger())
	terms := testutil.GenerateSearchTerms(7, 32)
	ctx := context.Background()

	// warm the cache
	for _, term := range terms {
		_, _ = opt.ExecuteSearch(ctx, term, search.Options{})
	}

	b.ResetTimer()
	allocated, _ := testutil.MeasureMemoryUsage(func() {
		for i := 0; i < b.N; i++ {
			_, _ = opt.ExecuteSearch(ctx, terms[i%len(terms)], search.Options{})
		}
	})
	b.ReportMetric(float64(allocated)/float64(b.N), "alloc-bytes/search")
}
