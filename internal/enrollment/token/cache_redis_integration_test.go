//go:build integration

package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrolld/internal/platform/config"
	platformredis "enrolld/internal/platform/redis"
	"enrolld/pkg/platform/sentinel"
	"enrolld/pkg/testutil/containers"
)

func newRedisCache(t *testing.T) *RedisCache {
	t.Helper()

	rc := containers.NewRedisContainer(t)
	client, err := platformredis.New(config.RedisConfig{
		URL:          rc.URL,
		PoolSize:     2,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client)
}

func TestRedisCache_Integration(t *testing.T) {
	ctx := context.Background()
	cache := newRedisCache(t)

	t.Run("miss returns not found", func(t *testing.T) {
		_, err := cache.Get(ctx, "enrolld:token:missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("put then get round-trips", func(t *testing.T) {
		key := CacheKey("alice@example.com", []string{"a"})
		require.NoError(t, cache.Put(ctx, key, "tok123", time.Minute))

		tok, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "tok123", tok)
	})

	t.Run("expired key disappears", func(t *testing.T) {
		key := CacheKey("bob@example.com", []string{"a"})
		require.NoError(t, cache.Put(ctx, key, "tok456", 100*time.Millisecond))

		require.Eventually(t, func() bool {
			_, err := cache.Get(ctx, key)
			return err != nil
		}, 5*time.Second, 200*time.Millisecond)
	})
}
