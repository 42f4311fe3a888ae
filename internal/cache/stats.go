// Package cache holds the redis-backed snapshot cache for the stats
// dashboard. The dashboard tolerates slightly stale numbers, so a short TTL
// keeps repeated refreshes off the primary store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"shelfmark/internal/ledger"
)

const statsKey = "shelfmark:stats"

// Connect builds a redis client from either a redis:// URL or a bare
// host:port address.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// StatsCache stores one JSON-encoded stats snapshot under a fixed key.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot; ok is false on a miss.
func (c *StatsCache) Get(ctx context.Context) (ledger.Stats, bool, error) {
	raw, err := c.client.Get(ctx, statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ledger.Stats{}, false, nil
		}
		return ledger.Stats{}, false, fmt.Errorf("cache get: %w", err)
	}

	var stats ledger.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return ledger.Stats{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return stats, true, nil
}

// Set stores the snapshot with the cache TTL.
func (c *StatsCache) Set(ctx context.Context, stats ledger.Stats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, statsKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
