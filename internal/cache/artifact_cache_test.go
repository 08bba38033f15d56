package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/trendlens-go/internal/models"
)

func newTestCache(t *testing.T) (*RedisArtifactCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisArtifactCache(client, time.Hour), mr
}

func sampleArtifact() *models.AnalysisArtifact {
	return &models.AnalysisArtifact{
		Sequence:    4,
		RunID:       "run-4",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Fingerprint: "fp-4",
		Parameters:  models.AnalysisParameters{ForecastHorizon: 24},
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.GetLatest(ctx)
	assert.False(t, ok, "empty cache should miss")

	cache.SetLatest(ctx, sampleArtifact())

	got, ok := cache.GetLatest(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(4), got.Sequence)
	assert.Equal(t, "fp-4", got.Fingerprint)
	assert.Equal(t, 24, got.Parameters.ForecastHorizon)

	hits, misses, sets := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, int64(1), sets)
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.SetLatest(ctx, sampleArtifact())
	cache.Invalidate(ctx)

	_, ok := cache.GetLatest(ctx)
	assert.False(t, ok)
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("artifact_cache:latest", "{not json"))

	_, ok := cache.GetLatest(ctx)
	assert.False(t, ok)
	assert.False(t, mr.Exists("artifact_cache:latest"), "corrupt entry should be deleted")
}

func TestCacheEntryExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.SetLatest(ctx, sampleArtifact())
	mr.FastForward(2 * time.Hour)

	_, ok := cache.GetLatest(ctx)
	assert.False(t, ok)
}
