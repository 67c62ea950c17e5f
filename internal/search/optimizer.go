// Package search serves normalized, ranked and cached search results with
// suggestions, behind a bounded request queue.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/cache"
	"github.com/fabienpiette/wanderlust/internal/clock"
	"github.com/fabienpiette/wanderlust/internal/fingerprint"
	"github.com/fabienpiette/wanderlust/internal/metrics"
	"github.com/fabienpiette/wanderlust/internal/scheduler"
)

// Config holds search optimizer settings
type Config struct {
	ResultCacheCapacity     int           `json:"result_cache_capacity"`
	ResultTTL               time.Duration `json:"result_ttl"`
	SuggestionCacheCapacity int           `json:"suggestion_cache_capacity"`
	SuggestionTTL           time.Duration `json:"suggestion_ttl"`
	MinQueryLength          int           `json:"min_query_length"`
	MaxQueryLength          int           `json:"max_query_length"`
	MaxSuggestions          int           `json:"max_suggestions"`
	TypoTolerance           bool          `json:"typo_tolerance"`
	FuzzyThreshold          float64       `json:"fuzzy_threshold"`
	MaxConcurrentRequests   int           `json:"max_concurrent_requests"`
	RequestTimeout          time.Duration `json:"request_timeout"`
	MetricsWindow           int           `json:"metrics_window"`
	MetricsRetention        time.Duration `json:"metrics_retention"`
	RefinementWindow        time.Duration `json:"refinement_window"`
	AbandonmentWindow       time.Duration `json:"abandonment_window"`
	SweepInterval           time.Duration `json:"sweep_interval"`
	AbandonmentInterval     time.Duration `json:"abandonment_interval"`
	StatsInterval           time.Duration `json:"stats_interval"`
	PrefetchInterval        time.Duration `json:"prefetch_interval"`
	PrefetchMinCount        int           `json:"prefetch_min_count"`
	PrefetchTop             int           `json:"prefetch_top"`
	MaxTrackedQueries       int           `json:"max_tracked_queries"`
	MaxTrackedResults       int           `json:"max_tracked_results"`
	Vocabulary              []string      `json:"vocabulary,omitempty"`
	Categories              []Category    `json:"categories,omitempty"`
}

// DefaultConfig returns the stock search settings
func DefaultConfig() Config {
	return Config{
		ResultCacheCapacity:     cache.DefaultCapacity,
		ResultTTL:               5 * time.Minute,
		SuggestionCacheCapacity: cache.DefaultCapacity,
		SuggestionTTL:           10 * time.Minute,
		MinQueryLength:          MinQueryLength,
		MaxQueryLength:          MaxQueryLength,
		MaxSuggestions:          MaxSuggestions,
		TypoTolerance:           true,
		FuzzyThreshold:          DefaultFuzzyThreshold,
		MaxConcurrentRequests:   DefaultMaxConcurrentRequests,
		RequestTimeout:          DefaultRequestTimeout,
		MetricsWindow:           metrics.DefaultWindow,
		MetricsRetention:        time.Hour,
		RefinementWindow:        DefaultRefinementWindow,
		AbandonmentWindow:       DefaultAbandonmentWindow,
		SweepInterval:           time.Minute,
		AbandonmentInterval:     30 * time.Second,
		StatsInterval:           5 * time.Minute,
		PrefetchInterval:        10 * time.Minute,
		PrefetchMinCount:        3,
		PrefetchTop:             10,
		MaxTrackedQueries:       DefaultMaxTracked,
		MaxTrackedResults:       DefaultMaxTracked,
	}
}

// Stats is the search optimizer's reporting snapshot
type Stats struct {
	metrics.Summary
	ResultCache     cache.Stats      `json:"result_cache"`
	SuggestionCache cache.Stats      `json:"suggestion_cache"`
	Queue           QueueStats       `json:"queue"`
	Analytics       AnalyticsSummary `json:"analytics"`
}

// Report is the exported search performance report
type Report struct {
	GeneratedAt    time.Time    `json:"generated_at"`
	Stats          Stats        `json:"stats"`
	PopularQueries []QueryCount `json:"popular_queries"`
}

// Optimizer fronts a search backend with caching, ranking, suggestions and a
// bounded request queue
type Optimizer struct {
	config      Config
	backend     Backend
	results     *cache.TTLCache[[]Result]
	suggestions *cache.TTLCache[[]Suggestion]
	suggester   *Suggester
	queue       *RequestQueue
	analytics   *Analytics
	recorder    *metrics.Recorder
	clock       clock.Clock
	logger      *logrus.Logger
	scheduler   *scheduler.Scheduler
}

// NewOptimizer creates a search optimizer. Background jobs only run after
// Start.
func NewOptimizer(config Config, backend Backend, clk clock.Clock, logger *logrus.Logger) *Optimizer {
	defaults := DefaultConfig()
	if config.MinQueryLength <= 0 {
		config.MinQueryLength = defaults.MinQueryLength
	}
	if config.MaxQueryLength <= 0 {
		config.MaxQueryLength = defaults.MaxQueryLength
	}
	if config.MaxSuggestions <= 0 || config.MaxSuggestions > MaxSuggestions {
		config.MaxSuggestions = defaults.MaxSuggestions
	}
	if config.MetricsRetention <= 0 {
		config.MetricsRetention = defaults.MetricsRetention
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.AbandonmentInterval <= 0 {
		config.AbandonmentInterval = defaults.AbandonmentInterval
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = defaults.StatsInterval
	}
	if config.PrefetchInterval <= 0 {
		config.PrefetchInterval = defaults.PrefetchInterval
	}
	if config.PrefetchMinCount <= 0 {
		config.PrefetchMinCount = defaults.PrefetchMinCount
	}
	if config.PrefetchTop <= 0 {
		config.PrefetchTop = defaults.PrefetchTop
	}
	if config.MaxTrackedQueries <= 0 {
		config.MaxTrackedQueries = defaults.MaxTrackedQueries
	}
	if config.MaxTrackedResults <= 0 {
		config.MaxTrackedResults = defaults.MaxTrackedResults
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Optimizer{
		config:      config,
		backend:     backend,
		results:     cache.New[[]Result](config.ResultCacheCapacity, config.ResultTTL, clk),
		suggestions: cache.New[[]Suggestion](config.SuggestionCacheCapacity, config.SuggestionTTL, clk),
		suggester:   NewSuggester(config.Vocabulary, config.Categories, config.FuzzyThreshold, config.TypoTolerance),
		queue:       NewRequestQueue(config.MaxConcurrentRequests, config.RequestTimeout, clk),
		analytics:   NewAnalytics(config.RefinementWindow, config.AbandonmentWindow),
		recorder:    metrics.NewRecorder(config.MetricsWindow),
		clock:       clk,
		logger:      logger,
	}
}

// ExecuteSearch normalizes and validates rawQuery, then serves it from cache
// or the backend. Invalid queries yield an empty response and a nil error.
func (o *Optimizer) ExecuteSearch(ctx context.Context, rawQuery string, opts Options) (*Response, error) {
	start := o.clock.Now()

	query := Normalize(rawQuery)
	if !Valid(query, o.config.MinQueryLength, o.config.MaxQueryLength) {
		return emptyResponse(query), nil
	}

	if o.analytics.RecordSearch(opts.SessionID, query, start) {
		o.logger.WithFields(logrus.Fields{
			"session_id": opts.SessionID,
			"query":      query,
		}).Debug("Search refinement")
	}

	key := resultKey(query, opts)

	if !opts.SkipCache {
		if results, ok := o.results.Get(key); ok {
			resp := &Response{
				Query:       query,
				Results:     results,
				Suggestions: o.suggestionsFor(query, opts.MaxSuggestions),
				Cached:      true,
				TotalFound:  len(results),
			}
			elapsed := o.clock.Now().Sub(start)
			resp.ExecutionTimeMS = toMillis(elapsed)
			o.recorder.Record(metrics.Sample{Timestamp: start, Duration: elapsed, Outcome: metrics.OutcomeCached, Subject: query})
			return resp, nil
		}
	}

	results, err := o.fetch(ctx, query, opts)
	if err != nil {
		elapsed := o.clock.Now().Sub(start)
		o.recorder.Record(metrics.Sample{Timestamp: start, Duration: elapsed, Outcome: metrics.OutcomeError, Subject: query})
		o.logger.WithFields(logrus.Fields{
			"query":       query,
			"duration_ms": elapsed.Milliseconds(),
		}).WithError(err).Error("Search failed")
		return nil, err
	}

	o.results.Set(key, results)

	resp := &Response{
		Query:       query,
		Results:     results,
		Suggestions: o.suggestionsFor(query, opts.MaxSuggestions),
		TotalFound:  len(results),
	}
	elapsed := o.clock.Now().Sub(start)
	resp.ExecutionTimeMS = toMillis(elapsed)
	o.recorder.Record(metrics.Sample{Timestamp: start, Duration: elapsed, Outcome: metrics.OutcomeExecuted, Subject: query})

	return resp, nil
}

// fetch runs the backend call through the request queue and ranks the hits
func (o *Optimizer) fetch(ctx context.Context, query string, opts Options) ([]Result, error) {
	req := o.queue.Enqueue(query, opts)
	records, err := o.queue.Do(ctx, req, func(ctx context.Context, r QueuedRequest) ([]Record, error) {
		return o.backend.Search(ctx, r.Query, r.Options)
	})
	if err != nil {
		return nil, err
	}
	return Rank(query, records, opts.Sort, o.analytics.Clicks), nil
}

// Suggest returns suggestions for rawQuery without searching
func (o *Optimizer) Suggest(rawQuery string, limit int) []Suggestion {
	query := Normalize(rawQuery)
	if !Valid(query, o.config.MinQueryLength, o.config.MaxQueryLength) {
		return []Suggestion{}
	}
	return o.suggestionsFor(query, limit)
}

func (o *Optimizer) suggestionsFor(query string, limit int) []Suggestion {
	if limit <= 0 || limit > o.config.MaxSuggestions {
		limit = o.config.MaxSuggestions
	}

	key := fingerprint.Key("suggestions", query, limit)
	if cached, ok := o.suggestions.Get(key); ok {
		return cached
	}

	generated := o.suggester.Suggest(query, o.analytics.Popularity(), limit)
	if generated == nil {
		generated = []Suggestion{}
	}
	o.suggestions.Set(key, generated)
	return generated
}

func resultKey(query string, opts Options) string {
	return fingerprint.Key("results", query, opts.Category, opts.Sort, opts.Filters)
}

// TrackClick records a click on a search result
func (o *Optimizer) TrackClick(ev ClickEvent) {
	o.analytics.TrackClick(ev)
	o.logger.WithFields(logrus.Fields{
		"query":     ev.Query,
		"result_id": ev.ResultID,
		"rank":      ev.Rank,
	}).Debug("Search result clicked")
}

// DetectAbandonments flags searches left without a click
func (o *Optimizer) DetectAbandonments() int {
	n := o.analytics.DetectAbandonments(o.clock.Now())
	if n > 0 {
		o.logger.WithField("abandoned", n).Debug("Search abandonments detected")
	}
	return n
}

// Popularity returns per-query search counts
func (o *Optimizer) Popularity() map[string]int {
	return o.analytics.Popularity()
}

// LoadPopularity merges persisted search counts
func (o *Optimizer) LoadPopularity(counts map[string]int) {
	o.analytics.LoadPopularity(counts)
}

// PopularQueries returns the most searched queries
func (o *Optimizer) PopularQueries(n int) []QueryCount {
	return o.analytics.PopularQueries(1, n)
}

// Prefetch re-runs popular queries whose results are not cached. Failures
// are dropped.
func (o *Optimizer) Prefetch(ctx context.Context) int {
	fetched := 0
	for _, qc := range o.analytics.PopularQueries(o.config.PrefetchMinCount, o.config.PrefetchTop) {
		key := resultKey(qc.Query, Options{})
		if o.results.Has(key) {
			continue
		}

		results, err := o.fetch(ctx, qc.Query, Options{})
		if err != nil {
			o.logger.WithField("query", qc.Query).WithError(err).Debug("Prefetch failed")
			continue
		}
		o.results.Set(key, results)
		fetched++
	}

	if fetched > 0 {
		o.logger.WithField("queries", fetched).Debug("Prefetched popular searches")
	}
	return fetched
}

// Sweep removes expired cache entries and stale samples, and trims the
// popularity and click counters to their configured size
func (o *Optimizer) Sweep() {
	expired := o.results.Sweep() + o.suggestions.Sweep()
	pruned := o.recorder.Prune(o.clock.Now().Add(-o.config.MetricsRetention))
	trimmed := o.analytics.Trim(o.config.MaxTrackedQueries, o.config.MaxTrackedResults)

	if expired+pruned+trimmed > 0 {
		o.logger.WithFields(logrus.Fields{
			"expired_entries":  expired,
			"pruned_samples":   pruned,
			"trimmed_counters": trimmed,
		}).Debug("Search optimizer sweep")
	}
}

// Stats returns the current reporting snapshot
func (o *Optimizer) Stats() Stats {
	return Stats{
		Summary:         o.recorder.Summary(),
		ResultCache:     o.results.Stats(),
		SuggestionCache: o.suggestions.Stats(),
		Queue:           o.queue.Stats(),
		Analytics:       o.analytics.Summary(),
	}
}

// Report assembles the exportable search report
func (o *Optimizer) Report() Report {
	return Report{
		GeneratedAt:    o.clock.Now(),
		Stats:          o.Stats(),
		PopularQueries: o.analytics.PopularQueries(1, 0),
	}
}

// ClearCaches drops cached results and suggestions
func (o *Optimizer) ClearCaches() {
	o.results.Clear()
	o.suggestions.Clear()
	o.logger.Info("Search caches cleared")
}

// LogStats writes the current stats at info level
func (o *Optimizer) LogStats() {
	stats := o.Stats()
	o.logger.WithFields(logrus.Fields{
		"total":            stats.Total,
		"cache_hit_rate":   stats.CacheHitRate,
		"average_ms":       stats.AverageMS,
		"errors":           stats.Errors,
		"queue_active":     stats.Queue.Active,
		"queue_waiting":    stats.Queue.Waiting,
		"timeouts":         stats.Queue.TimedOut,
		"click_through":    stats.Analytics.ClickThrough,
		"abandonment":      stats.Analytics.AbandonmentRate,
		"result_cache":     stats.ResultCache.Size,
		"suggestion_cache": stats.SuggestionCache.Size,
	}).Info("Search performance stats")
}

// Start schedules sweeps, abandonment detection, stats logging and prefetch
func (o *Optimizer) Start() error {
	if o.scheduler != nil {
		return fmt.Errorf("search optimizer already started")
	}

	s := scheduler.New(o.logger)
	jobs := []struct {
		name     string
		interval time.Duration
		job      scheduler.Job
	}{
		{"search-sweep", o.config.SweepInterval, o.Sweep},
		{"search-abandonment", o.config.AbandonmentInterval, func() { o.DetectAbandonments() }},
		{"search-stats", o.config.StatsInterval, o.LogStats},
		{"search-prefetch", o.config.PrefetchInterval, func() { o.Prefetch(context.Background()) }},
	}
	for _, j := range jobs {
		if err := s.Every(j.name, j.interval, j.job); err != nil {
			return err
		}
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

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
