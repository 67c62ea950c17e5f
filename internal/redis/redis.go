package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/config"
)

// ErrCacheMiss is returned by GetJSON for absent keys
var ErrCacheMiss = errors.New("cache miss")

// Cache keys constants
const (
	KeyPopularQueries = "wanderlust:search:popular"
	KeyReportIndex    = "wanderlust:reports:%s"
	KeyReport         = "wanderlust:report:%s:%d"
)

// Client wraps the Redis client with additional functionality
type Client struct {
	*redis.Client
	logger *logrus.Logger
}

// Initialize creates and configures the Redis client
func Initialize(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	client := New(rdb, logger)
	client.logger.WithField("addr", rdb.Options().Addr).Info("Redis client initialized successfully")
	return client, nil
}

// New wraps an existing connection
func New(rdb *redis.Client, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{Client: rdb, logger: logger}
}

// SetJSON stores a JSON-encoded value with expiration
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, expiration).Err()
}

// GetJSON retrieves and JSON-decodes a value
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// DeleteKeys deletes multiple keys
func (c *Client) DeleteKeys(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.Del(ctx, keys...).Err()
}

// StorePopularity writes the per-query search counts into the popular-query
// sorted set
func (c *Client) StorePopularity(ctx context.Context, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	members := make([]*redis.Z, 0, len(counts))
	for q, n := range counts {
		members = append(members, &redis.Z{Score: float64(n), Member: q})
	}
	if err := c.ZAdd(ctx, KeyPopularQueries, members...).Err(); err != nil {
		return fmt.Errorf("failed to store popularity: %w", err)
	}
	return nil
}

// LoadPopularity reads the top n queries of the popular-query set. n <= 0
// reads the whole set.
func (c *Client) LoadPopularity(ctx context.Context, n int) (map[string]int, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}

	entries, err := c.ZRevRangeWithScores(ctx, KeyPopularQueries, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load popularity: %w", err)
	}

	counts := make(map[string]int, len(entries))
	for _, z := range entries {
		if q, ok := z.Member.(string); ok {
			counts[q] = int(z.Score)
		}
	}
	return counts, nil
}

// ArchiveReport stores a JSON report under kind, indexed by its timestamp
func (c *Client) ArchiveReport(ctx context.Context, kind string, report interface{}, at time.Time, retention time.Duration) error {
	key := fmt.Sprintf(KeyReport, kind, at.UnixNano())
	if err := c.SetJSON(ctx, key, report, retention); err != nil {
		return err
	}

	index := fmt.Sprintf(KeyReportIndex, kind)
	if err := c.ZAdd(ctx, index, &redis.Z{Score: float64(at.UnixMilli()), Member: key}).Err(); err != nil {
		return fmt.Errorf("failed to index report: %w", err)
	}
	return nil
}

// RecentReports returns up to n archived reports of kind, newest first.
// Reports whose payload already expired are skipped.
func (c *Client) RecentReports(ctx context.Context, kind string, n int) ([]json.RawMessage, error) {
	if n <= 0 {
		return []json.RawMessage{}, nil
	}

	keys, err := c.ZRevRange(ctx, fmt.Sprintf(KeyReportIndex, kind), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]json.RawMessage, 0, len(keys))
	for _, key := range keys {
		var raw json.RawMessage
		err := c.GetJSON(ctx, key, &raw)
		if errors.Is(err, ErrCacheMiss) {
			continue
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, raw)
	}
	return reports, nil
}

// PruneReports drops index entries of kind older than before
func (c *Client) PruneReports(ctx context.Context, kind string, before time.Time) (int64, error) {
	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	return c.ZRemRangeByScore(ctx, fmt.Sprintf(KeyReportIndex, kind), "-inf", upper).Result()
}

// Health checks the Redis connection health
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.Client.Close()
}
