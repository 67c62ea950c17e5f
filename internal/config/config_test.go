package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, 30, cfg.Server.WriteTimeoutSeconds)
	assert.Equal(t, 120, cfg.Server.IdleTimeoutSeconds)

	assert.Equal(t, "./data/wanderlust.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Database.AutoMigrate)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 10, cfg.Redis.PoolSize)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, 1000, cfg.Query.CacheCapacity)
	assert.Equal(t, 5*time.Minute, cfg.Query.CacheTTL())
	assert.Equal(t, 100*time.Millisecond, cfg.Query.SlowQueryThreshold())
	assert.Equal(t, 1000, cfg.Query.SafetyLimit)

	assert.Equal(t, 5*time.Minute, cfg.Search.ResultCacheTTL())
	assert.Equal(t, 10*time.Minute, cfg.Search.SuggestionTTL())
	assert.Equal(t, 2, cfg.Search.MinQueryLength)
	assert.Equal(t, 100, cfg.Search.MaxQueryLength)
	assert.Equal(t, 8, cfg.Search.MaxSuggestions)
	assert.True(t, cfg.Search.TypoTolerance)
	assert.Equal(t, 0.8, cfg.Search.FuzzyThreshold)
	assert.Equal(t, 5, cfg.Search.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Search.Timeout())

	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval())
	assert.Equal(t, 7*24*time.Hour, cfg.Monitor.ArchiveRetention())

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 20.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
}

func TestConfigFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
environment: "test"
server:
  port: 9090
  host: "127.0.0.1"

database:
  path: "/tmp/test.db"
  auto_migrate: false

redis:
  enabled: true
  host: "redis-server"
  port: 6380
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "text"

query:
  cache_capacity: 50
  slow_query_threshold_ms: 250

search:
  max_suggestions: 4
  typo_tolerance: false
  timeout_seconds: 2

monitor:
  archive_reports: true

rate_limit:
  requests_per_second: 5
  burst: 10
`

	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	viper.Reset()
	viper.AddConfigPath(tempDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis-server", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Query.CacheCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Query.SlowQueryThreshold())
	assert.Equal(t, 4, cfg.Search.MaxSuggestions)
	assert.False(t, cfg.Search.TypoTolerance)
	assert.Equal(t, 2*time.Second, cfg.Search.Timeout())
	assert.True(t, cfg.Monitor.ArchiveReports)
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)

	// untouched keys keep their defaults
	assert.Equal(t, 1000, cfg.Query.SafetyLimit)
}

func TestConfigFromEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"WANDERLUST_ENVIRONMENT":                   "production",
		"WANDERLUST_SERVER_PORT":                   "8090",
		"WANDERLUST_DATABASE_PATH":                 "/data/prod.db",
		"WANDERLUST_REDIS_ENABLED":                 "true",
		"WANDERLUST_REDIS_HOST":                    "redis.example.com",
		"WANDERLUST_REDIS_DB":                      "2",
		"WANDERLUST_LOG_LEVEL":                     "warn",
		"WANDERLUST_QUERY_CACHE_TTL_SECONDS":       "30",
		"WANDERLUST_SEARCH_MAX_CONCURRENT":         "2",
		"WANDERLUST_SEARCH_FUZZY_THRESHOLD":        "0.6",
		"WANDERLUST_MONITOR_INTERVAL_SECONDS":      "15",
		"WANDERLUST_RATE_LIMIT_ENABLED":            "false",
		"WANDERLUST_SEARCH_SUGGESTION_TTL_SECONDS": "90",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "/data/prod.db", cfg.Database.Path)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com", cfg.Redis.Host)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Query.CacheTTL())
	assert.Equal(t, 2, cfg.Search.MaxConcurrent)
	assert.Equal(t, 0.6, cfg.Search.FuzzyThreshold)
	assert.Equal(t, 15*time.Second, cfg.Monitor.Interval())
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Search.SuggestionTTL())
}

func TestConfigFileNotFound(t *testing.T) {
	viper.Reset()
	viper.AddConfigPath("/non/existent/path")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestConfigInvalidYaml(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	invalidYaml := `
server:
  port: 8080
  invalid yaml here [[[
database:
  path: /tmp/test.db
`
	require.NoError(t, os.WriteFile(configFile, []byte(invalidYaml), 0644))

	viper.Reset()
	viper.AddConfigPath(tempDir)

	_, err := Load()
	require.Error(t, err)
}

func TestConfigMixedSources(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "config.yaml")

	configContent := `
server:
  port: 8080
  host: "localhost"
database:
  path: "/tmp/file.db"
redis:
  host: "localhost"
  port: 6379
`
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	t.Setenv("WANDERLUST_SERVER_PORT", "9090")
	t.Setenv("WANDERLUST_REDIS_HOST", "redis-server")

	viper.Reset()
	viper.AddConfigPath(tempDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)             // env
	assert.Equal(t, "localhost", cfg.Server.Host)      // file
	assert.Equal(t, "/tmp/file.db", cfg.Database.Path) // file
	assert.Equal(t, "redis-server", cfg.Redis.Host)    // env
	assert.Equal(t, 6379, cfg.Redis.Port)              // file
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func()
		wantErr bool
	}{
		{
			name:    "valid config",
			setup:   func() {},
			wantErr: false,
		},
		{
			name:    "negative port",
			setup:   func() { viper.Set("server.port", -1) },
			wantErr: true,
		},
		{
			name:    "empty database path",
			setup:   func() { viper.Set("database.path", "") },
			wantErr: true,
		},
		{
			name: "inverted query lengths",
			setup: func() {
				viper.Set("search.min_query_length", 10)
				viper.Set("search.max_query_length", 5)
			},
			wantErr: true,
		},
		{
			name:    "fuzzy threshold above one",
			setup:   func() { viper.Set("search.fuzzy_threshold", 1.5) },
			wantErr: true,
		},
		{
			name:    "zero rate when limiting",
			setup:   func() { viper.Set("rate_limit.requests_per_second", 0) },
			wantErr: true,
		},
		{
			name: "zero rate when not limiting",
			setup: func() {
				viper.Set("rate_limit.enabled", false)
				viper.Set("rate_limit.requests_per_second", 0)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			tt.setup()

			cfg, err := Load()

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, cfg)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, cfg)
			}
		})
	}
}

func BenchmarkConfigLoad(b *testing.B) {
	for i := 0; i < b.N; i++ {
		viper.Reset()
		if _, err := Load(); err != nil {
			b.Fatal(err)
		}
	}
}
