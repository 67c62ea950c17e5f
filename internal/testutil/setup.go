package testutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fabienpiette/wanderlust/internal/config"
	"github.com/fabienpiette/wanderlust/internal/database"
)

// SetupTestDB creates a migrated and seeded SQLite database in a temp dir
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := database.Initialize(database.Config{Path: dbPath, AutoMigrate: true}, QuietLogger())
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupTestRedis starts a Redis container for testing. The test is skipped
// when -short is set or no container runtime is reachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis container in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := startContainer(ctx, req)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	mappedPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", host, mappedPort.Port()),
	})
	require.NoError(t, redisClient.Ping(ctx).Err())

	t.Cleanup(func() {
		redisClient.Close()
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	return redisClient
}

// startContainer turns a panicking provider lookup into an error, which
// some testcontainers versions do when Docker is missing
func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container provider: %v", r)
		}
	}()

	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
}

// GetTestConfig returns a configuration for testing
func GetTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Port:                8080,
			Host:                "localhost",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
			IdleTimeoutSeconds:  120,
		},
		Database: config.DatabaseConfig{
			Path:        filepath.Join(t.TempDir(), "test.db"),
			AutoMigrate: true,
		},
		Redis: config.RedisConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    6379,
			DB:      1,
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "text",
		},
		Query: config.QueryConfig{
			CacheCapacity:        100,
			CacheTTLSeconds:      60,
			SlowQueryThresholdMS: 100,
			SafetyLimit:          1000,
			MetricsWindow:        100,
		},
		Search: config.SearchConfig{
			ResultCacheCapacity:     100,
			ResultCacheTTLSeconds:   60,
			SuggestionCacheCapacity: 100,
			SuggestionTTLSeconds:    60,
			MinQueryLength:          2,
			MaxQueryLength:          100,
			MaxSuggestions:          8,
			TypoTolerance:           true,
			FuzzyThreshold:          0.8,
			MaxConcurrent:           3,
			TimeoutSeconds:          5,
			MaxResults:              50,
		},
		Monitor: config.MonitorConfig{
			Enabled:              false,
			IntervalSeconds:      60,
			HistorySize:          10,
			SlowAverageMS:        250,
			MinCacheHitRate:      0.2,
			MaxErrorRate:         0.05,
			ArchiveRetentionDays: 1,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			Burst:             100,
		},
	}
}

// QuietLogger discards everything
func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// SetupTestLogger creates a logger for testing with appropriate level
func SetupTestLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		TimestampFormat: time.RFC3339,
	})

	if testing.Verbose() {
		logger.SetOutput(os.Stdout)
	} else {
		logger.SetOutput(io.Discard)
	}

	return logger
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		if condition() {
			return
		}
		select {
		case <-ticker.C:
		case <-timeoutCh:
			t.Fatalf("Timeout waiting for condition: %s", message)
		}
	}
}
