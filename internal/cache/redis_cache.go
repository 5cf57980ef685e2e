package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"medimitra/backend/internal/domain"
)

// KeyDashboardStats holds the JSON-encoded dashboard snapshot.
const KeyDashboardStats = "medimitra:dashboard:stats"

type RedisDashboardCache struct {
	client *redis.Client
}

func NewRedisDashboardCache(addr string, password string, db int) *RedisDashboardCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	return &RedisDashboardCache{client: client}
}

func (c *RedisDashboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDashboardCache) Close() error {
	return c.client.Close()
}

func (c *RedisDashboardCache) GetStats(ctx context.Context) (*domain.DashboardStats, bool, error) {
	val, err := c.client.Get(ctx, KeyDashboardStats).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats domain.DashboardStats
	if err := json.Unmarshal(val, &stats); err != nil {
		return nil, false, fmt.Errorf("decode cached dashboard: %w", err)
	}
	return &stats, true, nil
}

func (c *RedisDashboardCache) SetStats(ctx context.Context, stats *domain.DashboardStats, ttl time.Duration) error {
	if stats == nil {
		return nil
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, KeyDashboardStats, payload, ttl).Err()
}

func (c *RedisDashboardCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, KeyDashboardStats).Err()
}
