package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

func TestScoreboardKey(t *testing.T) {
	assert.Equal(t, "scoreboard:top:50", scoreboardKey(50))
}

func TestNoopScoreboardCache(t *testing.T) {
	cache := NewNoopScoreboardCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 10, []domain.ScoreboardEntry{{Rank: 1}}))
	entries, ok, err := cache.Get(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entries)
	assert.NoError(t, cache.Invalidate(ctx))
}

func TestRedisScoreboardCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisScoreboardCache(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, 10)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, cache.Set(ctx, 10, nil))
	assert.Error(t, cache.Invalidate(ctx))
}
