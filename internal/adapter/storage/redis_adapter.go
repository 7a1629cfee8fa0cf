package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	guardKeyPrefix  = "splitmarket:"
	defaultGuardTTL = 24 * time.Hour
)

// RedisGuard claims callback keys with SETNX so that replicas sharing one
// Redis reject the same redelivery.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (r *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, guardKeyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisGuard) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, guardKeyPrefix+key).Err()
}
