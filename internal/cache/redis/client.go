package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aixiv/backend/internal/metrics"
	"github.com/aixiv/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetLeaderboard caches one leaderboard query result keyed by its
// filter combination.
func (c *Client) SetLeaderboard(ctx context.Context, filterKey string, entries interface{}, ttl time.Duration) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal leaderboard: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("leaderboard:%s", filterKey), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set leaderboard cache: %w", err)
	}

	logger.Debug("Leaderboard cached", zap.String("filter", filterKey), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetLeaderboard(ctx context.Context, filterKey string, entries interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("leaderboard:%s", filterKey)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("leaderboard").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get leaderboard cache: %w", err)
	}

	err = json.Unmarshal(data, entries)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal leaderboard: %w", err)
	}

	metrics.CacheHits.WithLabelValues("leaderboard").Inc()
	logger.Debug("Leaderboard cache hit", zap.String("filter", filterKey))
	return true, nil
}

// SetStats caches an aggregate stats payload under a named key.
func (c *Client) SetStats(ctx context.Context, name string, stats interface{}, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("stats:%s", name), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set stats cache: %w", err)
	}

	logger.Debug("Stats cached", zap.String("name", name))
	return nil
}

func (c *Client) GetStats(ctx context.Context, name string, stats interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("stats:%s", name)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("stats").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get stats cache: %w", err)
	}

	err = json.Unmarshal(data, stats)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal stats: %w", err)
	}

	metrics.CacheHits.WithLabelValues("stats").Inc()
	logger.Debug("Stats cache hit", zap.String("name", name))
	return true, nil
}

// InvalidateArena drops every cached leaderboard and stats payload.
// Called after each promotion so stale rankings never outlive a write.
func (c *Client) InvalidateArena() {
	ctx := context.Background()
	for _, pattern := range []string{"leaderboard:*", "stats:*"} {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			logger.Warn("Failed to iterate cache keys", zap.String("pattern", pattern), zap.Error(err))
		}
	}

	logger.Info("Arena cache invalidated")
}
