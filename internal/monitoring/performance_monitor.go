package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/clock"
	"github.com/fabienpiette/wanderlust/internal/query"
	"github.com/fabienpiette/wanderlust/internal/search"
)

// QuerySource reports query optimizer statistics
type QuerySource interface {
	Stats() query.Stats
}

// SearchSource reports search optimizer statistics
type SearchSource interface {
	Stats() search.Stats
}

// Exporter ships snapshots to external storage
type Exporter interface {
	Export(ctx context.Context, snapshot Snapshot) error
}

// ExporterFunc adapts a function to the Exporter interface
type ExporterFunc func(ctx context.Context, snapshot Snapshot) error

// Export calls f
func (f ExporterFunc) Export(ctx context.Context, snapshot Snapshot) error {
	return f(ctx, snapshot)
}

// MonitorConfig holds monitoring configuration
type MonitorConfig struct {
	CollectionInterval time.Duration   `json:"collection_interval"`
	HistorySize        int             `json:"history_size"`
	AlertThresholds    AlertThresholds `json:"alert_thresholds"`
}

// AlertThresholds defines performance alert thresholds. Zero disables a check.
type AlertThresholds struct {
	SlowAverageMS   float64 `json:"slow_average_ms"`
	MinCacheHitRate float64 `json:"min_cache_hit_rate"`
	MaxErrorRate    float64 `json:"max_error_rate"`
	MaxQueueWaiting int     `json:"max_queue_waiting"`
	// MinSamples keeps rate checks quiet until enough traffic was seen.
	MinSamples int64 `json:"min_samples"`
}

// DefaultMonitorConfig returns the monitor defaults
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CollectionInterval: time.Minute,
		HistorySize:        60,
		AlertThresholds: AlertThresholds{
			SlowAverageMS:   250,
			MinCacheHitRate: 0.2,
			MaxErrorRate:    0.05,
			MaxQueueWaiting: 20,
			MinSamples:      20,
		},
	}
}

// RuntimeMetrics tracks Go runtime state
type RuntimeMetrics struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

// PoolMetrics tracks connection pool stats
type PoolMetrics struct {
	MaxConnections  int   `json:"max_connections"`
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// Snapshot represents a point-in-time metrics snapshot
type Snapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Query     query.Stats    `json:"query"`
	Search    search.Stats   `json:"search"`
	Runtime   RuntimeMetrics `json:"runtime"`
	Database  PoolMetrics    `json:"database"`
	Alerts    []Alert        `json:"alerts"`
}

// Severity grades an alert
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert represents a threshold breach
type Alert struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"` // query or search
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertHandler defines alert handling interface
type AlertHandler interface {
	HandleAlert(alert Alert) error
}

// AlertHandlerFunc adapts a function to the AlertHandler interface
type AlertHandlerFunc func(alert Alert) error

// HandleAlert calls f
func (f AlertHandlerFunc) HandleAlert(alert Alert) error {
	return f(alert)
}

// PerformanceMonitor periodically snapshots both optimizers, keeps a bounded
// history and raises alerts when thresholds are crossed
type PerformanceMonitor struct {
	config    MonitorConfig
	query     QuerySource
	search    SearchSource
	poolStats func() sql.DBStats
	clock     clock.Clock
	logger    *logrus.Logger

	mu        sync.RWMutex
	history   []Snapshot
	handlers  []AlertHandler
	exporters []Exporter
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewPerformanceMonitor creates a new performance monitor. poolStats may be
// nil when no database is attached.
func NewPerformanceMonitor(
	config MonitorConfig,
	querySource QuerySource,
	searchSource SearchSource,
	poolStats func() sql.DBStats,
	clk clock.Clock,
	logger *logrus.Logger,
) *PerformanceMonitor {
	defaults := DefaultMonitorConfig()
	if config.CollectionInterval <= 0 {
		config.CollectionInterval = defaults.CollectionInterval
	}
	if config.HistorySize <= 0 {
		config.HistorySize = defaults.HistorySize
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &PerformanceMonitor{
		config:    config,
		query:     querySource,
		search:    searchSource,
		poolStats: poolStats,
		clock:     clk,
		logger:    logger,
	}
}

// AddAlertHandler adds an alert handler
func (pm *PerformanceMonitor) AddAlertHandler(handler AlertHandler) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.handlers = append(pm.handlers, handler)
}

// AddExporter adds a snapshot exporter
func (pm *PerformanceMonitor) AddExporter(exporter Exporter) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.exporters = append(pm.exporters, exporter)
}

// Start begins performance monitoring
func (pm *PerformanceMonitor) Start(ctx context.Context) error {
	pm.mu.Lock()
	if pm.isRunning {
		pm.mu.Unlock()
		return fmt.Errorf("performance monitor is already running")
	}
	pm.isRunning = true
	pm.stopChan = make(chan struct{})
	pm.done = make(chan struct{})
	stop, done := pm.stopChan, pm.done
	pm.mu.Unlock()

	pm.logger.WithField("interval", pm.config.CollectionInterval.String()).Info("Starting performance monitor")

	go pm.collectionLoop(ctx, stop, done)

	return nil
}

// Stop stops performance monitoring and waits for the loop to exit
func (pm *PerformanceMonitor) Stop() error {
	pm.mu.Lock()
	if !pm.isRunning {
		pm.mu.Unlock()
		return fmt.Errorf("performance monitor is not running")
	}
	pm.isRunning = false
	stop, done := pm.stopChan, pm.done
	pm.mu.Unlock()

	pm.logger.Info("Stopping performance monitor")
	close(stop)
	<-done

	return nil
}

func (pm *PerformanceMonitor) collectionLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pm.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			snapshot := pm.Collect()
			pm.export(ctx, snapshot)
		}
	}
}

// Collect takes a snapshot, records it and dispatches any alerts
func (pm *PerformanceMonitor) Collect() Snapshot {
	snapshot := Snapshot{
		Timestamp: pm.clock.Now(),
		Runtime:   collectRuntimeMetrics(),
	}
	if pm.query != nil {
		snapshot.Query = pm.query.Stats()
	}
	if pm.search != nil {
		snapshot.Search = pm.search.Stats()
	}
	if pm.poolStats != nil {
		s := pm.poolStats()
		snapshot.Database = PoolMetrics{
			MaxConnections:  s.MaxOpenConnections,
			OpenConnections: s.OpenConnections,
			InUse:           s.InUse,
			Idle:            s.Idle,
			WaitCount:       s.WaitCount,
		}
	}

	snapshot.Alerts = pm.checkAlerts(snapshot)

	pm.mu.Lock()
	pm.history = append(pm.history, snapshot)
	if len(pm.history) > pm.config.HistorySize {
		pm.history = pm.history[len(pm.history)-pm.config.HistorySize:]
	}
	handlers := make([]AlertHandler, len(pm.handlers))
	copy(handlers, pm.handlers)
	pm.mu.Unlock()

	for _, alert := range snapshot.Alerts {
		pm.logger.WithFields(logrus.Fields{
			"source":    alert.Source,
			"metric":    alert.Metric,
			"value":     alert.Value,
			"threshold": alert.Threshold,
		}).Warn(alert.Message)

		for _, h := range handlers {
			if err := h.HandleAlert(alert); err != nil {
				pm.logger.WithError(err).WithField("alert_id", alert.ID).Error("Alert handler failed")
			}
		}
	}

	return snapshot
}

func (pm *PerformanceMonitor) export(ctx context.Context, snapshot Snapshot) {
	pm.mu.RLock()
	exporters := make([]Exporter, len(pm.exporters))
	copy(exporters, pm.exporters)
	pm.mu.RUnlock()

	for _, e := range exporters {
		if err := e.Export(ctx, snapshot); err != nil {
			pm.logger.WithError(err).Error("Failed to export metrics snapshot")
		}
	}
}

func collectRuntimeMetrics() RuntimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeMetrics{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// checkAlerts compares a snapshot against the thresholds
func (pm *PerformanceMonitor) checkAlerts(s Snapshot) []Alert {
	t := pm.config.AlertThresholds
	alerts := []Alert{}

	add := func(source, metric, message string, severity Severity, value, threshold float64) {
		alerts = append(alerts, Alert{
			ID:        uuid.NewString(),
			Source:    source,
			Severity:  severity,
			Message:   message,
			Metric:    metric,
			Value:     value,
			Threshold: threshold,
			Timestamp: s.Timestamp,
		})
	}

	sources := []struct {
		name    string
		total   int64
		avg     float64
		hitRate float64
		errors  int64
	}{
		{"query", s.Query.Total, s.Query.AverageMS, s.Query.CacheHitRate, s.Query.Errors},
		{"search", s.Search.Total, s.Search.AverageMS, s.Search.CacheHitRate, s.Search.Errors},
	}

	for _, src := range sources {
		if src.total == 0 {
			continue
		}
		if t.SlowAverageMS > 0 && src.avg > t.SlowAverageMS {
			add(src.name, "average_ms", "High average latency detected", SeverityWarning, src.avg, t.SlowAverageMS)
		}
		if src.total < t.MinSamples {
			continue
		}
		if t.MinCacheHitRate > 0 && src.hitRate < t.MinCacheHitRate {
			add(src.name, "cache_hit_rate", "Low cache hit rate detected", SeverityWarning, src.hitRate, t.MinCacheHitRate)
		}
		if rate := float64(src.errors) / float64(src.total); t.MaxErrorRate > 0 && rate > t.MaxErrorRate {
			add(src.name, "error_rate", "High error rate detected", SeverityCritical, rate, t.MaxErrorRate)
		}
	}

	if t.MaxQueueWaiting > 0 && s.Search.Queue.Waiting > t.MaxQueueWaiting {
		add("search", "queue_waiting", "Search queue backlog detected", SeverityWarning,
			float64(s.Search.Queue.Waiting), float64(t.MaxQueueWaiting))
	}

	return alerts
}

// Current returns the latest snapshot
func (pm *PerformanceMonitor) Current() (Snapshot, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if len(pm.history) == 0 {
		return Snapshot{}, false
	}
	return pm.history[len(pm.history)-1], true
}

// History returns the snapshots taken within the last window. A
// non-positive window returns the whole history.
func (pm *PerformanceMonitor) History(window time.Duration) []Snapshot {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	filtered := []Snapshot{}
	cutoff := pm.clock.Now().Add(-window)
	for _, snapshot := range pm.history {
		if window <= 0 || snapshot.Timestamp.After(cutoff) {
			filtered = append(filtered, snapshot)
		}
	}
	return filtered
}
