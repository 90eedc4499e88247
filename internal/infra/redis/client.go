// Package redis wraps Redis operations for the delayed retry queue and the
// cache statistics read by health probes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enrichops/overseer/internal/core/domain"
)

const retryQueueKey = "overseer:retry_queue"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps Redis operations.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing go-redis client, for tests.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// EnqueueRetry schedules a retry entry to fire after the delay. Re-enqueueing
// an identical entry is a no-op (ZAddNX); the first-computed fire time sticks
// even when supervision passes come around faster than the delay.
func (c *Client) EnqueueRetry(ctx context.Context, entry domain.RetryEntry, delay time.Duration) error {
	member, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode retry entry: %w", err)
	}

	fireAt := time.Now().Add(delay).Unix()
	if err := c.rdb.ZAddNX(ctx, retryQueueKey, redis.Z{
		Score:  float64(fireAt),
		Member: string(member),
	}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// PopDueRetry pops the next due retry entry, if any.
func (c *Client) PopDueRetry(ctx context.Context) (*domain.RetryEntry, bool, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	results, err := c.rdb.ZRangeByScore(ctx, retryQueueKey, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 1,
	}).Result()
	if err != nil {
		return nil, false, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(results) == 0 {
		return nil, false, nil
	}

	member := results[0]
	// Remove before firing so a crash loses the entry rather than firing twice.
	removed, err := c.rdb.ZRem(ctx, retryQueueKey, member).Result()
	if err != nil {
		return nil, false, fmt.Errorf("zrem failed: %w", err)
	}
	if removed == 0 {
		// Another worker claimed it
		return nil, false, nil
	}

	var entry domain.RetryEntry
	if err := json.Unmarshal([]byte(member), &entry); err != nil {
		return nil, false, fmt.Errorf("invalid retry entry: %w", err)
	}
	return &entry, true, nil
}

// RetryQueueDepth returns the number of pending retry entries.
func (c *Client) RetryQueueDepth(ctx context.Context) (int64, error) {
	depth, err := c.rdb.ZCard(ctx, retryQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return depth, nil
}

// CacheStats holds keyspace hit/miss counters from the shared cache.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// HitRate returns the cache hit rate in [0,1], or 1 when nothing was read yet.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 1
	}
	return float64(s.Hits) / float64(total)
}

// CacheStats reads keyspace hit/miss counters via INFO stats.
func (c *Client) CacheStats(ctx context.Context) (CacheStats, error) {
	info, err := c.rdb.Info(ctx, "stats").Result()
	if err != nil {
		return CacheStats{}, fmt.Errorf("info stats failed: %w", err)
	}

	var stats CacheStats
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, "keyspace_hits:"); ok {
			stats.Hits, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
		if v, ok := strings.CutPrefix(line, "keyspace_misses:"); ok {
			stats.Misses, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		}
	}
	return stats, nil
}

// Health checks if redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
