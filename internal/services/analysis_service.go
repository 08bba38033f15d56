package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/trendlens/trendlens-go/internal/analytics"
	"github.com/trendlens/trendlens-go/internal/artifacts"
	"github.com/trendlens/trendlens-go/internal/cache"
	"github.com/trendlens/trendlens-go/internal/config"
	"github.com/trendlens/trendlens-go/internal/forecast"
	"github.com/trendlens/trendlens-go/internal/models"
	"github.com/trendlens/trendlens-go/internal/timeseries"
)

// SeriesReader is the read side of the series store adapter.
type SeriesReader interface {
	ReadSeries(ctx context.Context, name string, start, end time.Time) (models.Series, error)
}

// AnalysisService orchestrates one analysis run: read series, align,
// fan the three engines out over the read-only frame, and publish the
// complete artifact through the versioner.
type AnalysisService struct {
	config      *config.Config
	reader      SeriesReader
	aligner     *timeseries.Aligner
	features    *timeseries.FeatureBuilder
	correlation *analytics.CorrelationEngine
	causality   *analytics.CausalityEngine
	forecaster  *forecast.Engine
	versioner   *artifacts.Versioner
	cache       *cache.RedisArtifactCache
	tracer      trace.Tracer
	logger      *logrus.Logger
	runMu       sync.Mutex
}

// NewAnalysisService wires the engines from configuration.
func NewAnalysisService(cfg *config.Config, reader SeriesReader, versioner *artifacts.Versioner, artifactCache *cache.RedisArtifactCache, logger *logrus.Logger) *AnalysisService {
	return &AnalysisService{
		config: cfg,
		reader: reader,
		aligner: timeseries.NewAligner(timeseries.AlignerConfig{
			Interval:     cfg.Analysis.IntervalDuration(),
			MaxStaleness: cfg.Analysis.StalenessDuration(),
		}, logger),
		features: timeseries.NewFeatureBuilder(timeseries.FeatureConfig{
			IndicatorPeriod: cfg.Analysis.IndicatorPeriod,
		}, logger),
		correlation: analytics.NewCorrelationEngine(cfg.Analysis.CorrelationMinSamples, logger),
		causality: analytics.NewCausalityEngine(analytics.CausalityConfig{
			MaxLag:          cfg.Causality.MaxLag,
			Alpha:           cfg.Causality.Alpha,
			MaxDiffAttempts: cfg.Causality.MaxDiffAttempts,
			Targets:         cfg.Causality.Targets,
		}, logger),
		forecaster: forecast.NewEngine(forecast.EngineConfig{
			Horizon:        cfg.Forecast.Horizon,
			SeasonalPeriod: cfg.Forecast.SeasonalPeriod,
			OrderPolicy:    cfg.Forecast.OrderPolicy,
			FixedOrder: models.ModelOrder{
				AR:         cfg.Forecast.FixedAR,
				Diff:       cfg.Forecast.FixedDiff,
				SeasonalAR: cfg.Forecast.FixedSeasonal,
			},
			MaxAR:          cfg.Forecast.MaxAR,
			MaxDiff:        cfg.Forecast.MaxDiff,
			MaxSeasonal:    cfg.Forecast.MaxSeasonal,
			Coverage:       cfg.Forecast.Coverage,
			FitTimeout:     cfg.Forecast.FitTimeoutDuration(),
			Exogenous:      cfg.Forecast.Exogenous,
			MaxConcurrency: cfg.Forecast.MaxConcurrency,
		}, logger),
		versioner: versioner,
		cache:     artifactCache,
		tracer:    otel.Tracer("analysis"),
		logger:    logger,
	}
}

// RunAnalysis executes one run. ran is false when the skip-if-unchanged
// check decided no recomputation was needed; the returned artifact is
// then the still-authoritative previous one. A cancelled run publishes
// nothing and leaves the previous artifact untouched.
func (s *AnalysisService) RunAnalysis(ctx context.Context, force bool) (artifact *models.AnalysisArtifact, ran bool, err error) {
	if !s.runMu.TryLock() {
		return nil, false, fmt.Errorf("an analysis run is already in progress")
	}
	defer s.runMu.Unlock()

	ctx, span := s.tracer.Start(ctx, "analysis.run", trace.WithAttributes(attribute.Bool("force", force)))
	defer span.End()

	start := time.Now()
	s.logger.WithField("force", force).Info("Starting analysis run")

	frame, err := s.buildFrame(ctx)
	if err != nil {
		return nil, false, err
	}

	fingerprint := artifacts.Fingerprint(frame)
	span.SetAttributes(attribute.String("fingerprint", fingerprint))

	run, err := s.versioner.ShouldRun(ctx, fingerprint, force)
	if err != nil {
		return nil, false, err
	}
	if !run {
		latest, err := s.versioner.Latest(ctx)
		if err != nil {
			return nil, false, err
		}
		return latest, false, nil
	}

	draft := &models.AnalysisArtifact{
		Fingerprint: fingerprint,
		Parameters: models.AnalysisParameters{
			WindowStart:        frame.Start,
			WindowEnd:          frame.End,
			Interval:           s.config.Analysis.SamplingInterval,
			MaxStaleness:       s.config.Analysis.MaxStaleness,
			CorrelationMinSamp: s.config.Analysis.CorrelationMinSamples,
			CausalityMaxLag:    s.config.Causality.MaxLag,
			CausalityAlpha:     s.config.Causality.Alpha,
			ForecastHorizon:    s.config.Forecast.Horizon,
			SeasonalPeriod:     s.config.Forecast.SeasonalPeriod,
			Coverage:           s.config.Forecast.Coverage,
		},
	}

	// The three engines are read-only over the frame and independent of
	// each other; they run in parallel and the versioner waits for all of
	// them, including every entity's forecast attempt.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, span := s.tracer.Start(gctx, "analysis.correlation")
		defer span.End()
		draft.Correlations = s.correlation.Compute(frame)
		return nil
	})
	g.Go(func() error {
		cctx, span := s.tracer.Start(gctx, "analysis.causality")
		defer span.End()
		draft.Causality = s.causality.Compute(cctx, frame)
		return nil
	})
	g.Go(func() error {
		fctx, span := s.tracer.Start(gctx, "analysis.forecast")
		defer span.End()
		draft.Forecasts = s.forecaster.Compute(fctx, frame, s.config.Analysis.Entities)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	published, err := s.versioner.Publish(ctx, draft)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		s.cache.SetLatest(ctx, published)
	}

	s.logger.WithFields(logrus.Fields{
		"sequence": published.Sequence,
		"duration": time.Since(start).String(),
	}).Info("Analysis run complete")

	return published, true, nil
}

// buildFrame reads every configured series for the lookback window and
// aligns them, deriving indicator features when enabled.
func (s *AnalysisService) buildFrame(ctx context.Context) (*models.AlignedFrame, error) {
	_, span := s.tracer.Start(ctx, "analysis.align")
	defer span.End()

	interval := s.config.Analysis.IntervalDuration()
	end := time.Now().UTC().Truncate(interval)
	start := end.Add(-s.config.Analysis.LookbackDuration())

	names := make([]string, 0, len(s.config.Analysis.Entities)+len(s.config.Analysis.FeatureSeries))
	names = append(names, s.config.Analysis.Entities...)
	names = append(names, s.config.Analysis.FeatureSeries...)

	series := make([]models.Series, 0, len(names))
	for _, name := range names {
		one, err := s.reader.ReadSeries(ctx, name, start, end)
		if err != nil {
			return nil, fmt.Errorf("reading series %s: %w", name, err)
		}
		series = append(series, one)
	}

	frame, err := s.aligner.Align(series, start, end)
	if err != nil {
		return nil, err
	}

	if s.config.Analysis.DeriveFeatures {
		if err := s.features.Derive(frame, s.config.Analysis.Entities); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// LatestArtifact serves the presentation layer, preferring the cache and
// falling back to the store.
func (s *AnalysisService) LatestArtifact(ctx context.Context) (*models.AnalysisArtifact, error) {
	if s.cache != nil {
		if artifact, ok := s.cache.GetLatest(ctx); ok {
			return artifact, nil
		}
	}
	artifact, err := s.versioner.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if artifact != nil && s.cache != nil {
		s.cache.SetLatest(ctx, artifact)
	}
	return artifact, nil
}

// ArtifactHistory returns up to limit past artifacts, newest first.
func (s *AnalysisService) ArtifactHistory(ctx context.Context, limit int) ([]*models.AnalysisArtifact, error) {
	return s.versioner.History(ctx, limit)
}
