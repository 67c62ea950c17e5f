// Package query wraps a document collection with result caching, pipeline
// rewriting, index suggestions and slow-query analysis.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/cache"
	"github.com/fabienpiette/wanderlust/internal/clock"
	"github.com/fabienpiette/wanderlust/internal/fingerprint"
	"github.com/fabienpiette/wanderlust/internal/metrics"
	"github.com/fabienpiette/wanderlust/internal/scheduler"
)

const maxLogEntries = 100

// Config holds query optimizer settings
type Config struct {
	CacheCapacity       int           `json:"cache_capacity"`
	CacheTTL            time.Duration `json:"cache_ttl"`
	SlowQueryThreshold  time.Duration `json:"slow_query_threshold"`
	SafetyLimit         int           `json:"safety_limit"`
	MetricsWindow       int           `json:"metrics_window"`
	MetricsRetention    time.Duration `json:"metrics_retention"`
	SuggestionRetention time.Duration `json:"suggestion_retention"`
	MaintenanceInterval time.Duration `json:"maintenance_interval"`
	StatsInterval       time.Duration `json:"stats_interval"`
}

// DefaultConfig returns the stock optimizer settings
func DefaultConfig() Config {
	return Config{
		CacheCapacity:       1000,
		CacheTTL:            5 * time.Minute,
		SlowQueryThreshold:  100 * time.Millisecond,
		SafetyLimit:         DefaultSafetyLimit,
		MetricsWindow:       metrics.DefaultWindow,
		MetricsRetention:    time.Hour,
		SuggestionRetention: 24 * time.Hour,
		MaintenanceInterval: time.Minute,
		StatsInterval:       5 * time.Minute,
	}
}

// SlowQuery is a query that exceeded the slow threshold
type SlowQuery struct {
	Timestamp   time.Time `json:"timestamp"`
	Collection  string    `json:"collection"`
	Query       string    `json:"query"`
	DurationMS  int64     `json:"duration_ms"`
	Suggestions []string  `json:"suggestions"`
}

// ErrorRecord is a failed backend call
type ErrorRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Collection string    `json:"collection"`
	Query      string    `json:"query"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error"`
}

// Stats is the query optimizer's reporting snapshot
type Stats struct {
	metrics.Summary
	Cache            cache.Stats `json:"cache"`
	IndexSuggestions int         `json:"index_suggestions"`
	SlowQueryLog     int         `json:"slow_query_log"`
}

// Report is the exported performance report
type Report struct {
	GeneratedAt      time.Time         `json:"generated_at"`
	Stats            Stats             `json:"stats"`
	IndexSuggestions []IndexSuggestion `json:"index_suggestions"`
	SlowQueries      []SlowQuery       `json:"slow_queries"`
	RecentErrors     []ErrorRecord     `json:"recent_errors"`
}

// Optimizer serves queries from cache when possible and otherwise runs them
// against the collection after rewriting the pipeline.
type Optimizer struct {
	config    Config
	cache     *cache.TTLCache[[]Document]
	advisor   *IndexAdvisor
	recorder  *metrics.Recorder
	clock     clock.Clock
	logger    *logrus.Logger
	scheduler *scheduler.Scheduler

	mu          sync.RWMutex
	slowQueries []SlowQuery
	errorLog    []ErrorRecord
}

// NewOptimizer creates a query optimizer. Background maintenance only runs
// after Start.
func NewOptimizer(config Config, clk clock.Clock, logger *logrus.Logger) *Optimizer {
	defaults := DefaultConfig()
	if config.SlowQueryThreshold <= 0 {
		config.SlowQueryThreshold = defaults.SlowQueryThreshold
	}
	if config.SafetyLimit <= 0 {
		config.SafetyLimit = defaults.SafetyLimit
	}
	if config.MetricsRetention <= 0 {
		config.MetricsRetention = defaults.MetricsRetention
	}
	if config.SuggestionRetention <= 0 {
		config.SuggestionRetention = defaults.SuggestionRetention
	}
	if config.MaintenanceInterval <= 0 {
		config.MaintenanceInterval = defaults.MaintenanceInterval
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = defaults.StatsInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Optimizer{
		config:   config,
		cache:    cache.New[[]Document](config.CacheCapacity, config.CacheTTL, clk),
		advisor:  NewIndexAdvisor(),
		recorder: metrics.NewRecorder(config.MetricsWindow),
		clock:    clk,
		logger:   logger,
	}
}

// ExecuteQuery runs req against coll. Backend errors are returned unchanged
// after being recorded.
func (o *Optimizer) ExecuteQuery(ctx context.Context, coll Collection, req Request, opts Options) ([]Document, error) {
	start := o.clock.Now()
	name := coll.Name()
	key := o.cacheKey(name, req, opts)

	if !opts.SkipCache {
		if docs, ok := o.cache.Get(key); ok {
			o.recorder.Record(metrics.Sample{
				Timestamp: start,
				Duration:  o.clock.Now().Sub(start),
				Outcome:   metrics.OutcomeCached,
				Subject:   name,
			})
			return docs, nil
		}
	}

	var (
		docs      []Document
		err       error
		described string
		notes     []string
		execStart time.Time
	)

	if len(req.Pipeline) > 0 {
		optimized := Optimize(req.Pipeline, o.config.SafetyLimit)
		o.logNewSuggestions(o.advisor.ObservePipeline(name, optimized, start))
		described = string(fingerprint.Canonical(optimized))

		execStart = o.clock.Now()
		docs, err = coll.Aggregate(ctx, optimized)
		notes = AnalyzePipeline(req.Pipeline)
	} else {
		findOpts := FindOptions{Sort: opts.Sort, Limit: opts.Limit, Skip: opts.Skip}
		o.logNewSuggestions(o.advisor.ObserveMatch(name, req.Filter, start))
		o.logNewSuggestions(o.advisor.ObserveSort(name, opts.Sort, start))
		described = string(fingerprint.Canonical(map[string]any{"find": req.Filter, "options": findOpts}))

		execStart = o.clock.Now()
		docs, err = coll.Find(ctx, req.Filter, findOpts)
		notes = AnalyzeFind(req.Filter, findOpts)
	}

	end := o.clock.Now()
	duration := end.Sub(execStart)

	if duration > o.config.SlowQueryThreshold {
		o.recordSlow(name, described, duration, notes, end)
	}

	if err != nil {
		o.recordError(name, described, duration, err, end)
		return nil, err
	}

	o.cache.SetWithTTL(key, docs, opts.CacheTTL)
	o.recorder.Record(metrics.Sample{
		Timestamp: end,
		Duration:  end.Sub(start),
		Outcome:   metrics.OutcomeExecuted,
		Subject:   name,
	})

	return docs, nil
}

func (o *Optimizer) cacheKey(name string, req Request, opts Options) string {
	return fingerprint.Key(name, req.Pipeline, req.Filter, opts.Sort, opts.Limit, opts.Skip)
}

func (o *Optimizer) recordSlow(name, described string, duration time.Duration, notes []string, at time.Time) {
	o.recorder.MarkSlow()

	entry := SlowQuery{
		Timestamp:   at,
		Collection:  name,
		Query:       described,
		DurationMS:  duration.Milliseconds(),
		Suggestions: notes,
	}

	o.mu.Lock()
	o.slowQueries = appendBounded(o.slowQueries, entry)
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"collection":  name,
		"duration_ms": duration.Milliseconds(),
		"query":       described,
		"suggestions": notes,
	}).Warn("Slow query detected")
}

func (o *Optimizer) recordError(name, described string, duration time.Duration, err error, at time.Time) {
	o.recorder.Record(metrics.Sample{
		Timestamp: at,
		Duration:  duration,
		Outcome:   metrics.OutcomeError,
		Subject:   name,
	})

	o.mu.Lock()
	o.errorLog = appendBounded(o.errorLog, ErrorRecord{
		Timestamp:  at,
		Collection: name,
		Query:      described,
		DurationMS: duration.Milliseconds(),
		Error:      err.Error(),
	})
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"collection":  name,
		"duration_ms": duration.Milliseconds(),
		"query":       described,
	}).WithError(err).Error("Query execution failed")
}

func (o *Optimizer) logNewSuggestions(added []IndexSuggestion) {
	for _, s := range added {
		o.logger.WithFields(logrus.Fields{
			"collection": s.Collection,
			"fields":     s.Fields,
			"reason":     s.Reason,
		}).Info("New index suggestion")
	}
}

func appendBounded[T any](log []T, entry T) []T {
	log = append(log, entry)
	if len(log) > maxLogEntries {
		log = append(log[:0:0], log[len(log)-maxLogEntries:]...)
	}
	return log
}

// Stats returns the current reporting snapshot
func (o *Optimizer) Stats() Stats {
	o.mu.RLock()
	slow := len(o.slowQueries)
	o.mu.RUnlock()

	return Stats{
		Summary:          o.recorder.Summary(),
		Cache:            o.cache.Stats(),
		IndexSuggestions: o.advisor.Len(),
		SlowQueryLog:     slow,
	}
}

// IndexSuggestions returns every accumulated index suggestion
func (o *Optimizer) IndexSuggestions() []IndexSuggestion {
	return o.advisor.Suggestions()
}

// SlowQueries returns the slow query log, oldest first
func (o *Optimizer) SlowQueries() []SlowQuery {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]SlowQuery, len(o.slowQueries))
	copy(out, o.slowQueries)
	return out
}

// RecentErrors returns the error log, oldest first
func (o *Optimizer) RecentErrors() []ErrorRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]ErrorRecord, len(o.errorLog))
	copy(out, o.errorLog)
	return out
}

// Report assembles the exportable performance report
func (o *Optimizer) Report() Report {
	return Report{
		GeneratedAt:      o.clock.Now(),
		Stats:            o.Stats(),
		IndexSuggestions: o.IndexSuggestions(),
		SlowQueries:      o.SlowQueries(),
		RecentErrors:     o.RecentErrors(),
	}
}

// ClearCache drops every cached result
func (o *Optimizer) ClearCache() {
	o.cache.Clear()
	o.logger.Info("Query cache cleared")
}

// Maintain sweeps expired cache entries and prunes stale samples and
// suggestions.
func (o *Optimizer) Maintain() {
	now := o.clock.Now()

	swept := o.cache.Sweep()
	pruned := o.recorder.Prune(now.Add(-o.config.MetricsRetention))
	dropped := o.advisor.Prune(now.Add(-o.config.SuggestionRetention))

	if swept+pruned+dropped > 0 {
		o.logger.WithFields(logrus.Fields{
			"expired_entries":    swept,
			"pruned_samples":     pruned,
			"pruned_suggestions": dropped,
		}).Debug("Query optimizer maintenance")
	}
}

// LogStats writes the current stats at info level
func (o *Optimizer) LogStats() {
	stats := o.Stats()
	o.logger.WithFields(logrus.Fields{
		"total":             stats.Total,
		"cache_hit_rate":    stats.CacheHitRate,
		"average_ms":        stats.AverageMS,
		"slow_queries":      stats.Slow,
		"errors":            stats.Errors,
		"cache_size":        stats.Cache.Size,
		"index_suggestions": stats.IndexSuggestions,
	}).Info("Query performance stats")
}

// Start schedules maintenance and stats logging
func (o *Optimizer) Start() error {
	if o.scheduler != nil {
		return fmt.Errorf("query optimizer already started")
	}

	s := scheduler.New(o.logger)
	if err := s.Every("query-maintenance", o.config.MaintenanceInterval, o.Maintain); err != nil {
		return err
	}
	if err := s.Every("query-stats", o.config.StatsInterval, o.LogStats); err != nil {
		return err
	}

	s.Start()
	o.scheduler = s
	return nil
}

// Stop halts background jobs
func (o *Optimizer) Stop() {
	if o.scheduler == nil {
		return
	}
	o.scheduler.Stop()
	o.scheduler = nil
}
