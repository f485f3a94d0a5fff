package token

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"enrolld/internal/platform/redis"
	"enrolld/pkg/platform/sentinel"
)

// RedisCache backs the token cache with Redis so multiple instances share
// fetched tokens. TTL enforcement is delegated to Redis key expiry.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *RedisCache) Put(ctx context.Context, key, token string, ttl time.Duration) error {
	return c.client.Set(ctx, key, token, ttl).Err()
}
