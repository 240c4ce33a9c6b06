// Package cache wraps redis for the pieces of the pipeline that memoize:
// oracle similarity scores and the cycle-run lock.
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a thin typed layer over a redis client.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// GetMultiFloat loads several float scores at once. Missing keys are absent
// from the result, so callers can batch the misses to the oracle.
func (c *RedisCache) GetMultiFloat(ctx context.Context, keys []string) (map[string]float64, error) {
	if len(keys) == 0 {
		return map[string]float64{}, nil
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	result := make(map[string]float64, len(keys))
	for i, key := range keys {
		if values[i] == nil {
			continue
		}
		s, ok := values[i].(string)
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			continue // stale junk behaves like a miss
		}
		result[key] = f
	}
	return result, nil
}

// SetMultiFloat stores several float scores in one pipeline round trip.
func (c *RedisCache) SetMultiFloat(ctx context.Context, items map[string]float64, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for key, value := range items {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, data, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// AcquireLock takes a best-effort distributed lock (SET NX). Returns whether
// the lock was acquired.
func (c *RedisCache) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock drops a lock if the owner still holds it.
func (c *RedisCache) ReleaseLock(ctx context.Context, key, owner string) error {
	current, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current != owner {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
