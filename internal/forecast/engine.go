package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/trendlens/trendlens-go/internal/models"
)

// Order selection policies.
const (
	PolicyFixed = "fixed"
	PolicyGrid  = "grid"
)

// EngineConfig holds the forecast policy for one run. Horizon and
// coverage are fixed per run and identical across entities.
type EngineConfig struct {
	Horizon        int
	SeasonalPeriod int
	OrderPolicy    string
	FixedOrder     models.ModelOrder
	MaxAR          int
	MaxDiff        int
	MaxSeasonal    int
	Coverage       float64
	FitTimeout     time.Duration
	Exogenous      []string
	MaxConcurrency int
}

// Engine fits one seasonal autoregressive model per tracked entity and
// emits point-and-interval forecasts. Entity fits are independent and run
// in parallel; a failed or timed-out fit is recorded on that entity's
// result and never blocks the others.
type Engine struct {
	config EngineConfig
	logger *logrus.Logger
}

// NewEngine creates a forecast engine.
func NewEngine(config EngineConfig, logger *logrus.Logger) *Engine {
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = 4
	}
	return &Engine{config: config, logger: logger}
}

// Compute forecasts every entity column of the frame. The returned slice
// has one result per entity, in the given order, with per-entity status.
func (e *Engine) Compute(ctx context.Context, frame *models.AlignedFrame, entities []string) []models.ForecastResult {
	// Results land in an arena indexed by entity position, so workers
	// never share a mutable map.
	results := make([]models.ForecastResult, len(entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.MaxConcurrency)
	for i, entity := range entities {
		g.Go(func() error {
			results[i] = e.forecastEntity(gctx, frame, entity)
			return nil
		})
	}
	// Workers only report per-entity status, never errors.
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Status == models.ForecastFailed {
			failed++
		}
	}
	e.logger.WithFields(logrus.Fields{
		"entities": len(entities),
		"failed":   failed,
		"horizon":  e.config.Horizon,
	}).Debug("Forecasts computed")

	return results
}

// forecastEntity runs one bounded fit. The timeout covers order selection
// and forecasting; a timed-out fit is recorded as a ModelFitError, not
// retried within the run.
func (e *Engine) forecastEntity(ctx context.Context, frame *models.AlignedFrame, entity string) models.ForecastResult {
	result := models.ForecastResult{
		Entity:   entity,
		Coverage: e.config.Coverage,
		FitStart: frame.Start,
		FitEnd:   frame.End,
	}

	fitCtx := ctx
	if e.config.FitTimeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, e.config.FitTimeout)
		defer cancel()
	}

	type fitOutcome struct {
		points []models.ForecastPoint
		order  models.ModelOrder
		err    error
	}
	outcome := make(chan fitOutcome, 1)
	go func() {
		points, order, err := e.fitAndForecast(fitCtx, frame, entity)
		outcome <- fitOutcome{points: points, order: order, err: err}
	}()

	select {
	case o := <-outcome:
		if o.err != nil {
			result.Status = models.ForecastFailed
			result.Error = o.err.Error()
			e.logger.WithFields(logrus.Fields{
				"entity": entity,
				"error":  o.err.Error(),
			}).Warn("Forecast fit failed")
			return result
		}
		result.Status = models.ForecastOK
		result.Points = o.points
		result.Order = o.order
		return result
	case <-fitCtx.Done():
		fitErr := &ModelFitError{Entity: entity, Reason: "fit timed out", Err: fitCtx.Err()}
		result.Status = models.ForecastFailed
		result.Error = fitErr.Error()
		e.logger.WithField("entity", entity).Warn("Forecast fit timed out")
		return result
	}
}

func (e *Engine) fitAndForecast(ctx context.Context, frame *models.AlignedFrame, entity string) ([]models.ForecastPoint, models.ModelOrder, error) {
	col, ok := frame.Column(entity)
	if !ok {
		return nil, models.ModelOrder{}, &ModelFitError{Entity: entity, Reason: "no such column in frame"}
	}

	// The fit window is the rows where the entity has a value; exogenous
	// regressors are read from the same rows, carrying their own last
	// value across residual gaps.
	values := make([]float64, 0, len(col))
	exog := make([][]float64, 0, len(col))
	lastExog := make([]float64, len(e.config.Exogenous))
	for i, cell := range col {
		if !cell.Valid {
			continue
		}
		values = append(values, cell.Float64)
		if len(e.config.Exogenous) == 0 {
			continue
		}
		row := make([]float64, len(e.config.Exogenous))
		for k, name := range e.config.Exogenous {
			if exCol, exists := frame.Columns[name]; exists && exCol[i].Valid {
				lastExog[k] = exCol[i].Float64
			}
			row[k] = lastExog[k]
		}
		exog = append(exog, row)
	}

	model, err := e.selectModel(ctx, entity, values, exog)
	if err != nil {
		return nil, models.ModelOrder{}, err
	}

	return model.forecast(values, exog, e.config.Horizon, e.config.Coverage), model.order, nil
}

// selectModel applies the configured order policy: a single fixed order,
// or a bounded grid search ranked by AIC. The grid is walked from low
// orders to high and only a strictly lower AIC replaces the incumbent, so
// ties go to the lower-order model.
func (e *Engine) selectModel(ctx context.Context, entity string, values []float64, exog [][]float64) (*sarModel, error) {
	if e.config.OrderPolicy == PolicyFixed {
		order := e.config.FixedOrder
		order.Period = e.config.SeasonalPeriod
		return fitSAR(entity, values, exog, order)
	}

	var best *sarModel
	var lastErr error
	for d := 0; d <= e.config.MaxDiff; d++ {
		for P := 0; P <= e.config.MaxSeasonal; P++ {
			for p := 1; p <= e.config.MaxAR; p++ {
				if ctx.Err() != nil {
					return nil, &ModelFitError{Entity: entity, Reason: "order search cancelled", Err: ctx.Err()}
				}
				order := models.ModelOrder{AR: p, Diff: d, SeasonalAR: P, Period: e.config.SeasonalPeriod}
				model, err := fitSAR(entity, values, exog, order)
				if err != nil {
					lastErr = err
					continue
				}
				if best == nil || model.aic < best.aic {
					best = model
				}
			}
		}
	}
	if best == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &ModelFitError{Entity: entity, Reason: fmt.Sprintf("no model in grid (max_ar=%d, max_diff=%d, max_seasonal=%d) could be fit", e.config.MaxAR, e.config.MaxDiff, e.config.MaxSeasonal)}
	}
	return best, nil
}
