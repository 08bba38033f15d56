package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/trendlens/trendlens-go/internal/models"
)

// ArtifactCacheStats tracks cache performance metrics
type ArtifactCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisArtifactCache keeps the latest published artifact in Redis so the
// presentation layer can render without touching Postgres on every
// request. The store remains authoritative; a miss falls through to it.
type RedisArtifactCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *ArtifactCacheStats
	prefix string
}

// NewRedisArtifactCache creates a Redis-backed artifact cache.
func NewRedisArtifactCache(redisClient *redis.Client, ttl time.Duration) *RedisArtifactCache {
	return &RedisArtifactCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &ArtifactCacheStats{},
		prefix: "artifact_cache:",
	}
}

// GetLatest retrieves the cached latest artifact, if present.
func (c *RedisArtifactCache) GetLatest(ctx context.Context) (*models.AnalysisArtifact, bool) {
	data, err := c.redis.Get(ctx, c.prefix+"latest").Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		logrus.WithError(err).Warn("Redis error reading cached artifact")
		c.miss()
		return nil, false
	}

	var artifact models.AnalysisArtifact
	if err := json.Unmarshal([]byte(data), &artifact); err != nil {
		logrus.WithError(err).Warn("Corrupt cached artifact, dropping")
		_ = c.redis.Del(ctx, c.prefix+"latest").Err()
		c.miss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return &artifact, true
}

// SetLatest caches a freshly published artifact.
func (c *RedisArtifactCache) SetLatest(ctx context.Context, artifact *models.AnalysisArtifact) {
	data, err := json.Marshal(artifact)
	if err != nil {
		logrus.WithError(err).Warn("Failed to encode artifact for cache")
		return
	}
	if err := c.redis.Set(ctx, c.prefix+"latest", data, c.ttl).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to cache artifact")
		return
	}
	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
}

// Invalidate drops the cached artifact.
func (c *RedisArtifactCache) Invalidate(ctx context.Context) {
	_ = c.redis.Del(ctx, c.prefix+"latest").Err()
}

// Stats returns a snapshot of hit/miss counters.
func (c *RedisArtifactCache) Stats() (hits, misses, sets int64) {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return c.stats.Hits, c.stats.Misses, c.stats.Sets
}

func (c *RedisArtifactCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
