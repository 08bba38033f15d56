package services

import (
	"context"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/trendlens-go/internal/artifacts"
	"github.com/trendlens/trendlens-go/internal/config"
	"github.com/trendlens/trendlens-go/internal/models"
	"github.com/trendlens/trendlens-go/internal/timeseries"
)

func serviceLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// syntheticReader serves deterministic hourly series so repeated runs over
// the same window fingerprint identically.
type syntheticReader struct {
	empty bool
}

func (r *syntheticReader) ReadSeries(_ context.Context, name string, start, end time.Time) (models.Series, error) {
	series := models.Series{Name: name}
	if r.empty {
		return series, nil
	}

	phase := float64(len(name))
	for t, i := start, 0; !t.After(end); t, i = t.Add(time.Hour), i+1 {
		series.Points = append(series.Points, models.Observation{
			Timestamp: t,
			Value:     math.Sin(float64(i)/3+phase) + 0.1*math.Cos(float64(i)/7),
		})
	}
	return series, nil
}

// memoryArtifactStore implements artifacts.ArtifactStore for service tests.
type memoryArtifactStore struct {
	mu        sync.Mutex
	artifacts []*models.AnalysisArtifact
}

func (s *memoryArtifactStore) WriteArtifact(_ context.Context, artifact *models.AnalysisArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *artifact
	s.artifacts = append([]*models.AnalysisArtifact{&clone}, s.artifacts...)
	return nil
}

func (s *memoryArtifactStore) ReadLatestArtifact(_ context.Context) (*models.AnalysisArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.artifacts) == 0 {
		return nil, nil
	}
	return s.artifacts[0], nil
}

func (s *memoryArtifactStore) ReadArtifactHistory(_ context.Context, limit int) ([]*models.AnalysisArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.artifacts) {
		limit = len(s.artifacts)
	}
	return s.artifacts[:limit], nil
}

func serviceConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Analysis: config.AnalysisConfig{
			Entities:              []string{"aapl_close", "msft_close"},
			FeatureSeries:         []string{"treasury_10y"},
			LookbackWindow:        "240h",
			SamplingInterval:      "1h",
			MaxStaleness:          "2h",
			CorrelationMinSamples: 10,
			HistoryRetention:      5,
			DeriveFeatures:        false,
		},
		Causality: config.CausalityConfig{MaxLag: 2, Alpha: 0.05, MaxDiffAttempts: 2},
		Forecast: config.ForecastConfig{
			Horizon:        4,
			SeasonalPeriod: 24,
			OrderPolicy:    "grid",
			MaxAR:          2,
			MaxDiff:        1,
			MaxSeasonal:    0,
			Coverage:       0.95,
			FitTimeout:     "30s",
			MaxConcurrency: 2,
		},
	}
}

func newTestService(reader SeriesReader) *AnalysisService {
	logger := serviceLogger()
	versioner := artifacts.NewVersioner(&memoryArtifactStore{}, 5, logger)
	return NewAnalysisService(serviceConfig(), reader, versioner, nil, logger)
}

func TestRunAnalysisPublishesCompleteArtifact(t *testing.T) {
	service := newTestService(&syntheticReader{})

	artifact, ran, err := service.RunAnalysis(context.Background(), false)
	require.NoError(t, err)
	require.True(t, ran)
	require.NotNil(t, artifact)

	assert.Equal(t, int64(1), artifact.Sequence)
	assert.NotEmpty(t, artifact.RunID)
	assert.NotEmpty(t, artifact.Fingerprint)

	require.NotNil(t, artifact.Correlations)
	assert.Equal(t, []string{"aapl_close", "msft_close", "treasury_10y"}, artifact.Correlations.Names)

	// Three series give six ordered pairs.
	assert.Len(t, artifact.Causality, 6)

	require.Len(t, artifact.Forecasts, 2)
	assert.Equal(t, "aapl_close", artifact.Forecasts[0].Entity)
	assert.Equal(t, "msft_close", artifact.Forecasts[1].Entity)
	for _, f := range artifact.Forecasts {
		assert.Equal(t, models.ForecastOK, f.Status, f.Error)
		assert.Len(t, f.Points, 4)
	}

	assert.Equal(t, "1h", artifact.Parameters.Interval)
	assert.Equal(t, 4, artifact.Parameters.ForecastHorizon)
}

func TestRunAnalysisSkipsUnchangedInput(t *testing.T) {
	service := newTestService(&syntheticReader{})
	ctx := context.Background()

	first, ran, err := service.RunAnalysis(ctx, false)
	require.NoError(t, err)
	require.True(t, ran)

	second, ran, err := service.RunAnalysis(ctx, false)
	require.NoError(t, err)
	assert.False(t, ran, "identical input should skip recomputation")
	assert.Equal(t, first.Sequence, second.Sequence)

	forced, ran, err := service.RunAnalysis(ctx, true)
	require.NoError(t, err)
	assert.True(t, ran, "force bypasses the skip check")
	assert.Equal(t, first.Sequence+1, forced.Sequence)
}

func TestRunAnalysisInsufficientWindow(t *testing.T) {
	service := newTestService(&syntheticReader{empty: true})

	_, _, err := service.RunAnalysis(context.Background(), false)
	require.Error(t, err)
	assert.True(t, timeseries.IsInsufficientWindow(err))
}

func TestLatestArtifactAndHistory(t *testing.T) {
	service := newTestService(&syntheticReader{})
	ctx := context.Background()

	latest, err := service.LatestArtifact(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "nothing published yet")

	_, _, err = service.RunAnalysis(ctx, false)
	require.NoError(t, err)
	_, _, err = service.RunAnalysis(ctx, true)
	require.NoError(t, err)

	latest, err = service.LatestArtifact(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.Sequence)

	history, err := service.ArtifactHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].Sequence)
	assert.Equal(t, int64(1), history[1].Sequence)
}
