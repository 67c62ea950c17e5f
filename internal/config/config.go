package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Log         LogConfig       `mapstructure:"log"`
	Query       QueryConfig     `mapstructure:"query"`
	Search      SearchConfig    `mapstructure:"search"`
	Monitor     MonitorConfig   `mapstructure:"monitor"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port                int    `mapstructure:"port"`
	Host                string `mapstructure:"host"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `mapstructure:"idle_timeout_seconds"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// QueryConfig tunes the query optimizer
type QueryConfig struct {
	CacheCapacity        int `mapstructure:"cache_capacity"`
	CacheTTLSeconds      int `mapstructure:"cache_ttl_seconds"`
	SlowQueryThresholdMS int `mapstructure:"slow_query_threshold_ms"`
	SafetyLimit          int `mapstructure:"safety_limit"`
	MetricsWindow        int `mapstructure:"metrics_window"`
}

// SearchConfig tunes the search optimizer
type SearchConfig struct {
	ResultCacheCapacity     int     `mapstructure:"result_cache_capacity"`
	ResultCacheTTLSeconds   int     `mapstructure:"result_cache_ttl_seconds"`
	SuggestionCacheCapacity int     `mapstructure:"suggestion_cache_capacity"`
	SuggestionTTLSeconds    int     `mapstructure:"suggestion_ttl_seconds"`
	MinQueryLength          int     `mapstructure:"min_query_length"`
	MaxQueryLength          int     `mapstructure:"max_query_length"`
	MaxSuggestions          int     `mapstructure:"max_suggestions"`
	TypoTolerance           bool    `mapstructure:"typo_tolerance"`
	FuzzyThreshold          float64 `mapstructure:"fuzzy_threshold"`
	MaxConcurrent           int     `mapstructure:"max_concurrent"`
	TimeoutSeconds          int     `mapstructure:"timeout_seconds"`
	MaxResults              int     `mapstructure:"max_results"`
	MaxTrackedQueries       int     `mapstructure:"max_tracked_queries"`
}

// MonitorConfig controls the performance monitor
type MonitorConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	IntervalSeconds      int     `mapstructure:"interval_seconds"`
	HistorySize          int     `mapstructure:"history_size"`
	SlowAverageMS        float64 `mapstructure:"slow_average_ms"`
	MinCacheHitRate      float64 `mapstructure:"min_cache_hit_rate"`
	MaxErrorRate         float64 `mapstructure:"max_error_rate"`
	ArchiveReports       bool    `mapstructure:"archive_reports"`
	ArchiveRetentionDays int     `mapstructure:"archive_retention_days"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	viper.SetDefault("environment", "development")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout_seconds", 30)
	viper.SetDefault("server.write_timeout_seconds", 30)
	viper.SetDefault("server.idle_timeout_seconds", 120)

	viper.SetDefault("database.path", "./data/wanderlust.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	viper.SetDefault("query.cache_capacity", 1000)
	viper.SetDefault("query.cache_ttl_seconds", 300)
	viper.SetDefault("query.slow_query_threshold_ms", 100)
	viper.SetDefault("query.safety_limit", 1000)
	viper.SetDefault("query.metrics_window", 1000)

	viper.SetDefault("search.result_cache_capacity", 1000)
	viper.SetDefault("search.result_cache_ttl_seconds", 300)
	viper.SetDefault("search.suggestion_cache_capacity", 500)
	viper.SetDefault("search.suggestion_ttl_seconds", 600)
	viper.SetDefault("search.min_query_length", 2)
	viper.SetDefault("search.max_query_length", 100)
	viper.SetDefault("search.max_suggestions", 8)
	viper.SetDefault("search.typo_tolerance", true)
	viper.SetDefault("search.fuzzy_threshold", 0.8)
	viper.SetDefault("search.max_concurrent", 5)
	viper.SetDefault("search.timeout_seconds", 5)
	viper.SetDefault("search.max_results", 100)
	viper.SetDefault("search.max_tracked_queries", 10000)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval_seconds", 60)
	viper.SetDefault("monitor.history_size", 60)
	viper.SetDefault("monitor.slow_average_ms", 250)
	viper.SetDefault("monitor.min_cache_hit_rate", 0.2)
	viper.SetDefault("monitor.max_error_rate", 0.05)
	viper.SetDefault("monitor.archive_reports", false)
	viper.SetDefault("monitor.archive_retention_days", 7)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_second", 20)
	viper.SetDefault("rate_limit.burst", 40)

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/wanderlust")

	viper.SetEnvPrefix("WANDERLUST")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read configuration file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate rejects values the services cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	case c.Search.MinQueryLength > c.Search.MaxQueryLength:
		return fmt.Errorf("%w: search.min_query_length exceeds max_query_length", ErrInvalidConfig)
	case c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1:
		return fmt.Errorf("%w: search.fuzzy_threshold must be within [0, 1]", ErrInvalidConfig)
	case c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: rate_limit.requests_per_second must be positive", ErrInvalidConfig)
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// CacheTTL returns the query cache default TTL
func (q QueryConfig) CacheTTL() time.Duration {
	return seconds(q.CacheTTLSeconds)
}

// SlowQueryThreshold returns the slow query cutoff
func (q QueryConfig) SlowQueryThreshold() time.Duration {
	return time.Duration(q.SlowQueryThresholdMS) * time.Millisecond
}

// ResultCacheTTL returns the search result TTL
func (s SearchConfig) ResultCacheTTL() time.Duration {
	return seconds(s.ResultCacheTTLSeconds)
}

// SuggestionTTL returns the suggestion cache TTL
func (s SearchConfig) SuggestionTTL() time.Duration {
	return seconds(s.SuggestionTTLSeconds)
}

// Timeout returns the per-request search timeout
func (s SearchConfig) Timeout() time.Duration {
	return seconds(s.TimeoutSeconds)
}

// Interval returns the snapshot interval
func (m MonitorConfig) Interval() time.Duration {
	return seconds(m.IntervalSeconds)
}

// ArchiveRetention returns how long archived reports are kept
func (m MonitorConfig) ArchiveRetention() time.Duration {
	return time.Duration(m.ArchiveRetentionDays) * 24 * time.Hour
}
