package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var benchmarkCities = []string{"paris", "rome", "tokyo", "kyoto", "lisbon", "sydney", "banff", "oia", "zermatt", "marrakech"}

var benchmarkModifiers = []string{"", "loft", "villa", "beach", "studio", "cabin", "hotels"}

// GenerateSearchTerms returns count queries drawn from a fixed vocabulary.
// The same seed always yields the same terms.
func GenerateSearchTerms(seed int64, count int) []string {
	rng := rand.New(rand.NewSource(seed))

	terms := make([]string, count)
	for i := range terms {
		city := benchmarkCities[rng.Intn(len(benchmarkCities))]
		modifier := benchmarkModifiers[rng.Intn(len(benchmarkModifiers))]
		if modifier == "" {
			terms[i] = city
		} else {
			terms[i] = fmt.Sprintf("%s %s", city, modifier)
		}
	}
	return terms
}

// MeasureMemoryUsage measures memory allocated during fn
func MeasureMemoryUsage(fn func()) (allocatedBytes int64, gcCycles uint32) {
	var memBefore, memAfter runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&memBefore)

	fn()

	runtime.ReadMemStats(&memAfter)

	return int64(memAfter.TotalAlloc - memBefore.TotalAlloc), memAfter.NumGC - memBefore.NumGC
}

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	Duration    time.Duration
	Concurrency int
	// RequestRate caps requests per second across all workers; zero is unlimited.
	RequestRate int
}

// LoadTestRunner runs load tests
type LoadTestRunner struct {
	config *LoadTestConfig
}

// NewLoadTestRunner creates a new load test runner
func NewLoadTestRunner(config *LoadTestConfig) *LoadTestRunner {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &LoadTestRunner{config: config}
}

// RequestResult holds the result of a single request
type RequestResult struct {
	Latency time.Duration
	Error   error
}

// LoadTestResults holds the results of a load test
type LoadTestResults struct {
	StartTime      time.Time
	EndTime        time.Time
	Concurrency    int
	TotalRequests  int64
	SuccessCount   int64
	ErrorCount     int64
	Latencies      []time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	AvgLatency     time.Duration
	P95Latency     time.Duration
	P99Latency     time.Duration
	RequestsPerSec float64
	ErrorRate      float64
}

// RunLoadTest runs testFunc from every worker until the duration elapses
// or ctx is cancelled
func (ltr *LoadTestRunner) RunLoadTest(ctx context.Context, testFunc func(context.Context) error) *LoadTestResults {
	results := &LoadTestResults{
		StartTime:   time.Now(),
		Concurrency: ltr.config.Concurrency,
	}

	var limiter *rate.Limiter
	if ltr.config.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(ltr.config.RequestRate), 1)
	}

	testCtx, cancel := context.WithTimeout(ctx, ltr.config.Duration)
	defer cancel()

	resultsChan := make(chan RequestResult, ltr.config.Concurrency*16)

	var wg sync.WaitGroup
	for i := 0; i < ltr.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ltr.worker(testCtx, limiter, testFunc, resultsChan)
		}()
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for result := range resultsChan {
		results.TotalRequests++
		results.Latencies = append(results.Latencies, result.Latency)
		if result.Error != nil {
			results.ErrorCount++
		} else {
			results.SuccessCount++
		}
	}

	results.EndTime = time.Now()
	results.calculateStatistics()

	return results
}

func (ltr *LoadTestRunner) worker(ctx context.Context, limiter *rate.Limiter, testFunc func(context.Context) error, results chan<- RequestResult) {
	for ctx.Err() == nil {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		start := time.Now()
		err := testFunc(ctx)
		results <- RequestResult{Latency: time.Since(start), Error: err}
	}
}

func (results *LoadTestResults) calculateStatistics() {
	if len(results.Latencies) == 0 {
		return
	}

	latencies := make([]time.Duration, len(results.Latencies))
	copy(latencies, results.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	results.MinLatency = latencies[0]
	results.MaxLatency = latencies[len(latencies)-1]

	var total time.Duration
	for _, latency := range latencies {
		total += latency
	}
	results.AvgLatency = total / time.Duration(len(latencies))

	results.P95Latency = latencies[int(float64(len(latencies)-1)*0.95)]
	results.P99Latency = latencies[int(float64(len(latencies)-1)*0.99)]

	if elapsed := results.EndTime.Sub(results.StartTime).Seconds(); elapsed > 0 {
		results.RequestsPerSec = float64(results.TotalRequests) / elapsed
	}
	results.ErrorRate = float64(results.ErrorCount) / float64(results.TotalRequests) * 100
}
