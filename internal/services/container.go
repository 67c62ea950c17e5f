package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/clock"
	"github.com/fabienpiette/wanderlust/internal/config"
	"github.com/fabienpiette/wanderlust/internal/database"
	"github.com/fabienpiette/wanderlust/internal/models"
	"github.com/fabienpiette/wanderlust/internal/monitoring"
	"github.com/fabienpiette/wanderlust/internal/query"
	"github.com/fabienpiette/wanderlust/internal/redis"
	"github.com/fabienpiette/wanderlust/internal/scheduler"
	"github.com/fabienpiette/wanderlust/internal/search"
	"github.com/fabienpiette/wanderlust/internal/store"
)

const (
	// ReportKindSnapshot is the archive kind for monitor snapshots
	ReportKindSnapshot = "snapshot"

	popularitySyncInterval = time.Minute
	archivePruneInterval   = time.Hour
	popularityLoadLimit    = 1000
	archivedHistoryLimit   = 100
)

// Container holds all the application services and manages their lifecycle
type Container struct {
	// Configuration
	config *config.Config
	logger *logrus.Logger
	clock  clock.Clock

	// Infrastructure
	db          *database.DB
	redisClient *redis.Client

	// Storage
	store         *store.Store
	listingSearch *store.ListingSearch

	// Performance layer
	queryOptimizer  *query.Optimizer
	searchOptimizer *search.Optimizer
	monitor         *monitoring.PerformanceMonitor

	// Lifecycle management
	scheduler *scheduler.Scheduler
	startedAt time.Time
	running   bool
	mu        sync.RWMutex
}

// PerformanceReport combines the optimizer reports with the latest monitor
// snapshot
type PerformanceReport struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Uptime      string               `json:"uptime"`
	Query       query.Report         `json:"query"`
	Search      search.Report        `json:"search"`
	Monitor     *monitoring.Snapshot `json:"monitor,omitempty"`
}

// NewContainer creates a new service container. redisClient may be nil when
// Redis is disabled.
func NewContainer(db *database.DB, redisClient *redis.Client, cfg *config.Config, logger *logrus.Logger) *Container {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	container := &Container{
		config:      cfg,
		logger:      logger,
		clock:       clock.Real{},
		db:          db,
		redisClient: redisClient,
	}

	container.initializeStorage()
	container.initializeOptimizers()
	container.initializeMonitor()

	return container
}

// QueryOptimizerConfig maps the query section of the configuration
func QueryOptimizerConfig(cfg config.QueryConfig) query.Config {
	c := query.DefaultConfig()
	c.CacheCapacity = cfg.CacheCapacity
	c.CacheTTL = cfg.CacheTTL()
	c.SlowQueryThreshold = cfg.SlowQueryThreshold()
	c.SafetyLimit = cfg.SafetyLimit
	if cfg.MetricsWindow > 0 {
		c.MetricsWindow = cfg.MetricsWindow
	}
	return c
}

// SearchOptimizerConfig maps the search section of the configuration
func SearchOptimizerConfig(cfg config.SearchConfig) search.Config {
	c := search.DefaultConfig()
	c.ResultCacheCapacity = cfg.ResultCacheCapacity
	c.ResultTTL = cfg.ResultCacheTTL()
	c.SuggestionCacheCapacity = cfg.SuggestionCacheCapacity
	c.SuggestionTTL = cfg.SuggestionTTL()
	c.MinQueryLength = cfg.MinQueryLength
	c.MaxQueryLength = cfg.MaxQueryLength
	c.MaxSuggestions = cfg.MaxSuggestions
	c.TypoTolerance = cfg.TypoTolerance
	c.FuzzyThreshold = cfg.FuzzyThreshold
	c.MaxConcurrentRequests = cfg.MaxConcurrent
	c.RequestTimeout = cfg.Timeout()
	if cfg.MaxTrackedQueries > 0 {
		c.MaxTrackedQueries = cfg.MaxTrackedQueries
		c.MaxTrackedResults = cfg.MaxTrackedQueries
	}
	return c
}

// MonitorConfig maps the monitor section of the configuration
func MonitorConfig(cfg config.MonitorConfig) monitoring.MonitorConfig {
	c := monitoring.DefaultMonitorConfig()
	if interval := cfg.Interval(); interval > 0 {
		c.CollectionInterval = interval
	}
	if cfg.HistorySize > 0 {
		c.HistorySize = cfg.HistorySize
	}
	if cfg.SlowAverageMS > 0 {
		c.AlertThresholds.SlowAverageMS = cfg.SlowAverageMS
	}
	c.AlertThresholds.MinCacheHitRate = cfg.MinCacheHitRate
	if cfg.MaxErrorRate > 0 {
		c.AlertThresholds.MaxErrorRate = cfg.MaxErrorRate
	}
	return c
}

// initializeStorage creates the document store and the search backend
func (c *Container) initializeStorage() {
	c.store = store.New(c.db.DB, c.logger)
	c.listingSearch = store.NewListingSearch(c.store, c.config.Search.MaxResults)

	c.logger.Info("Storage initialized")
}

// initializeOptimizers creates the query and search optimizers
func (c *Container) initializeOptimizers() {
	c.queryOptimizer = query.NewOptimizer(QueryOptimizerConfig(c.config.Query), c.clock, c.logger)
	c.searchOptimizer = search.NewOptimizer(SearchOptimizerConfig(c.config.Search), c.listingSearch, c.clock, c.logger)

	c.logger.Info("Optimizers initialized")
}

// initializeMonitor creates the performance monitor and its outputs
func (c *Container) initializeMonitor() {
	c.monitor = monitoring.NewPerformanceMonitor(
		MonitorConfig(c.config.Monitor),
		c.queryOptimizer,
		c.searchOptimizer,
		c.db.Stats,
		c.clock,
		c.logger,
	)

	c.monitor.AddAlertHandler(monitoring.AlertHandlerFunc(c.logAlert))

	if c.redisClient != nil && c.config.Monitor.ArchiveReports {
		retention := c.config.Monitor.ArchiveRetention()
		c.monitor.AddExporter(monitoring.ExporterFunc(func(ctx context.Context, s monitoring.Snapshot) error {
			return c.redisClient.ArchiveReport(ctx, ReportKindSnapshot, s, s.Timestamp, retention)
		}))
	}
}

func (c *Container) logAlert(alert monitoring.Alert) error {
	entry := c.logger.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"source":    alert.Source,
		"metric":    alert.Metric,
		"value":     alert.Value,
		"threshold": alert.Threshold,
	})
	if alert.Severity == monitoring.SeverityCritical {
		entry.Error(alert.Message)
	} else {
		entry.Warn(alert.Message)
	}
	return nil
}

// Start starts all background services
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("service container already started")
	}

	c.logger.Info("Starting service container")

	if c.redisClient != nil {
		c.restorePopularity(ctx)
	}

	if err := c.queryOptimizer.Start(); err != nil {
		return fmt.Errorf("failed to start query optimizer: %w", err)
	}
	if err := c.searchOptimizer.Start(); err != nil {
		c.queryOptimizer.Stop()
		return fmt.Errorf("failed to start search optimizer: %w", err)
	}

	s := scheduler.New(c.logger)
	if c.redisClient != nil {
		if err := s.Every("popularity-sync", popularitySyncInterval, func() { c.syncPopularity(context.Background()) }); err != nil {
			c.stopOptimizers()
			return err
		}
		if c.config.Monitor.ArchiveReports {
			if err := s.Every("archive-prune", archivePruneInterval, func() { c.pruneArchive(context.Background()) }); err != nil {
				c.stopOptimizers()
				return err
			}
		}
	}
	s.Start()
	c.scheduler = s

	if c.config.Monitor.Enabled {
		if err := c.monitor.Start(ctx); err != nil {
			c.scheduler.Stop()
			c.stopOptimizers()
			return fmt.Errorf("failed to start performance monitor: %w", err)
		}
	}

	c.startedAt = c.clock.Now()
	c.running = true

	c.logger.Info("Service container started successfully")
	return nil
}

// Stop gracefully stops all services
func (c *Container) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.logger.Info("Stopping service container")

	if c.config.Monitor.Enabled {
		if err := c.monitor.Stop(); err != nil {
			c.logger.WithError(err).Warn("Performance monitor stop failed")
		}
	}

	if c.scheduler != nil {
		c.scheduler.Stop()
		c.scheduler = nil
	}

	// persist the final counts before going away
	if c.redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c.syncPopularity(ctx)
		cancel()
	}

	c.stopOptimizers()
	c.running = false

	c.logger.Info("Service container stopped")
}

func (c *Container) stopOptimizers() {
	c.searchOptimizer.Stop()
	c.queryOptimizer.Stop()
}

func (c *Container) restorePopularity(ctx context.Context) {
	counts, err := c.redisClient.LoadPopularity(ctx, popularityLoadLimit)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to restore search popularity")
		return
	}
	c.searchOptimizer.LoadPopularity(counts)
	c.logger.WithField("queries", len(counts)).Info("Search popularity restored")
}

func (c *Container) syncPopularity(ctx context.Context) {
	counts := c.searchOptimizer.Popularity()
	if len(counts) == 0 {
		return
	}
	if err := c.redisClient.StorePopularity(ctx, counts); err != nil {
		c.logger.WithError(err).Warn("Failed to persist search popularity")
	}
}

func (c *Container) pruneArchive(ctx context.Context) {
	cutoff := c.clock.Now().Add(-c.config.Monitor.ArchiveRetention())
	removed, err := c.redisClient.PruneReports(ctx, ReportKindSnapshot, cutoff)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to prune archived snapshots")
		return
	}
	if removed > 0 {
		c.logger.WithField("removed", removed).Debug("Pruned archived snapshots")
	}
}

// GetLogger returns the logger instance
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetDB returns the database connection
func (c *Container) GetDB() *database.DB {
	return c.db
}

// GetStore returns the document store
func (c *Container) GetStore() *store.Store {
	return c.store
}

// GetQueryOptimizer returns the query optimizer
func (c *Container) GetQueryOptimizer() *query.Optimizer {
	return c.queryOptimizer
}

// GetSearchOptimizer returns the search optimizer
func (c *Container) GetSearchOptimizer() *search.Optimizer {
	return c.searchOptimizer
}

// GetMonitor returns the performance monitor
func (c *Container) GetMonitor() *monitoring.PerformanceMonitor {
	return c.monitor
}

// RedisEnabled reports whether a Redis client is wired in
func (c *Container) RedisEnabled() bool {
	return c.redisClient != nil
}

// ArchivedSnapshots returns the most recent snapshots from the Redis archive
func (c *Container) ArchivedSnapshots(ctx context.Context, n int) ([]json.RawMessage, error) {
	if c.redisClient == nil {
		return nil, fmt.Errorf("%w: report archive requires redis", models.ErrServiceUnavailable)
	}
	if n <= 0 || n > archivedHistoryLimit {
		n = archivedHistoryLimit
	}
	return c.redisClient.RecentReports(ctx, ReportKindSnapshot, n)
}

// Report assembles the combined performance report
func (c *Container) Report() PerformanceReport {
	report := PerformanceReport{
		GeneratedAt: c.clock.Now(),
		Uptime:      c.uptime().String(),
		Query:       c.queryOptimizer.Report(),
		Search:      c.searchOptimizer.Report(),
	}
	if snapshot, ok := c.monitor.Current(); ok {
		report.Monitor = &snapshot
	}
	return report
}

func (c *Container) uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.running {
		return 0
	}
	return c.clock.Now().Sub(c.startedAt).Truncate(time.Second)
}

// HealthCheck performs a health check on all services
func (c *Container) HealthCheck(ctx context.Context) map[string]interface{} {
	services := map[string]interface{}{}
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": c.clock.Now().UTC().Format(time.RFC3339),
		"uptime":    c.uptime().String(),
		"services":  services,
	}

	// Check database
	if err := c.store.Health(ctx); err != nil {
		services["database"] = map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		}
		health["status"] = "degraded"
	} else {
		services["database"] = map[string]interface{}{
			"status": "healthy",
		}
	}

	// Check Redis
	if c.redisClient != nil {
		if err := c.redisClient.Health(ctx); err != nil {
			services["redis"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			health["status"] = "degraded"
		} else {
			services["redis"] = map[string]interface{}{
				"status": "healthy",
			}
		}
	}

	queryStats := c.queryOptimizer.Stats()
	services["query_optimizer"] = map[string]interface{}{
		"status":         "healthy",
		"cache_size":     queryStats.Cache.Size,
		"cache_hit_rate": queryStats.CacheHitRate,
	}

	searchStats := c.searchOptimizer.Stats()
	services["search_optimizer"] = map[string]interface{}{
		"status":        "healthy",
		"queue_active":  searchStats.Queue.Active,
		"queue_waiting": searchStats.Queue.Waiting,
	}

	return health
}
