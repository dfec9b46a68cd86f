package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

const scoreboardKeyPrefix = "scoreboard:"

// redisScoreboardCache implements domain.ScoreboardCache on Redis
type redisScoreboardCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisScoreboardCache creates a scoreboard cache whose entries expire after ttl
func NewRedisScoreboardCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) domain.ScoreboardCache {
	return &redisScoreboardCache{client: client, ttl: ttl, logger: logger}
}

func scoreboardKey(limit int) string {
	return fmt.Sprintf("%stop:%d", scoreboardKeyPrefix, limit)
}

// Get returns the cached scoreboard for limit; ok is false on a miss
func (c *redisScoreboardCache) Get(ctx context.Context, limit int) ([]domain.ScoreboardEntry, bool, error) {
	data, err := c.client.Get(ctx, scoreboardKey(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entries []domain.ScoreboardEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("Discarding undecodable scoreboard cache entry",
			zap.Int("limit", limit),
			zap.Error(err),
		)
		return nil, false, nil
	}
	return entries, true, nil
}

// Set stores a computed scoreboard
func (c *redisScoreboardCache) Set(ctx context.Context, limit int, entries []domain.ScoreboardEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode scoreboard: %w", err)
	}
	return c.client.Set(ctx, scoreboardKey(limit), data, c.ttl).Err()
}

// Invalidate deletes every cached scoreboard
func (c *redisScoreboardCache) Invalidate(ctx context.Context) error {
	var keys []string
	iter := c.client.Scan(ctx, 0, scoreboardKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan scoreboard keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear scoreboard cache: %w", err)
	}
	c.logger.Debug("Scoreboard cache cleared", zap.Int("keys_deleted", len(keys)))
	return nil
}

// noopScoreboardCache is used when Redis is disabled; every read misses
type noopScoreboardCache struct{}

// NewNoopScoreboardCache creates a cache that stores nothing
func NewNoopScoreboardCache() domain.ScoreboardCache {
	return noopScoreboardCache{}
}

func (noopScoreboardCache) Get(context.Context, int) ([]domain.ScoreboardEntry, bool, error) {
	return nil, false, nil
}

func (noopScoreboardCache) Set(context.Context, int, []domain.ScoreboardEntry) error {
	return nil
}

func (noopScoreboardCache) Invalidate(context.Context) error {
	return nil
}
