package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"enrolld/pkg/platform/sentinel"
)

// Cache stores scoped access tokens between enrollment attempts so repeated
// attempts for the same account do not hammer the token endpoint.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, token string, ttl time.Duration) error
}

// CacheKey derives a stable cache key from the account and scope set. The
// token itself never appears in the key.
func CacheKey(username string, scopes []string) string {
	h := sha256.Sum256([]byte(username + "|" + strings.Join(scopes, " ")))
	return "enrolld:token:" + hex.EncodeToString(h[:])
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryCache is the in-process Cache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", sentinel.ErrNotFound
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", sentinel.ErrExpired
	}
	return entry.token, nil
}

func (c *MemoryCache) Put(_ context.Context, key, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{token: token, expiresAt: c.now().Add(ttl)}
	return nil
}

// cachedTokenTTL is deliberately shorter than typical access-token lifetimes;
// the fetch contract does not surface expiry, so the cache stays conservative.
const cachedTokenTTL = 5 * time.Minute

// CachedStrategy consults a Cache before delegating to the inner strategy and
// stores fresh tokens on the way out. Cache failures degrade to a plain fetch.
type CachedStrategy struct {
	inner  Strategy
	cache  Cache
	key    string
	logger *slog.Logger
}

func NewCachedStrategy(inner Strategy, cache Cache, key string, logger *slog.Logger) *CachedStrategy {
	return &CachedStrategy{inner: inner, cache: cache, key: key, logger: logger}
}

func (s *CachedStrategy) Name() string { return s.inner.Name() }

func (s *CachedStrategy) FetchAccessToken(ctx context.Context) (string, error) {
	if cached, err := s.cache.Get(ctx, s.key); err == nil && cached != "" {
		s.logger.DebugContext(ctx, "access token served from cache",
			slog.String("strategy", s.Name()))
		return cached, nil
	}

	tok, err := s.inner.FetchAccessToken(ctx)
	if err != nil || tok == "" {
		return tok, err
	}

	if err := s.cache.Put(ctx, s.key, tok, cachedTokenTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to cache access token",
			slog.String("error", err.Error()))
	}
	return tok, nil
}
