package analytics

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/trendlens/trendlens-go/internal/models"
)

// CausalityConfig holds the Granger test policy.
type CausalityConfig struct {
	MaxLag          int
	Alpha           float64
	MaxDiffAttempts int
	// Targets bounds the ordered pairs tested: when non-empty, only
	// pairs whose effect candidate is in the set are evaluated. This is
	// the knob that keeps O(pairs * lags * fit) tractable.
	Targets []string
}

// CausalityEngine runs stationarity checks and directional Granger
// causality tests across ordered pairs of frame columns.
type CausalityEngine struct {
	config CausalityConfig
	logger *logrus.Logger
}

// NewCausalityEngine creates a causality engine.
func NewCausalityEngine(config CausalityConfig, logger *logrus.Logger) *CausalityEngine {
	if config.MaxDiffAttempts <= 0 {
		config.MaxDiffAttempts = 2
	}
	return &CausalityEngine{config: config, logger: logger}
}

// Compute produces one verdict per ordered pair of distinct series. A
// series that cannot be made stationary within the differencing bound
// marks every pair it touches not_testable instead of silently running
// the test on non-stationary data.
func (e *CausalityEngine) Compute(ctx context.Context, frame *models.AlignedFrame) []models.CausalityVerdict {
	targets := make(map[string]bool, len(e.config.Targets))
	for _, t := range e.config.Targets {
		targets[t] = true
	}

	// Stationarity is assessed once per series on its observed values.
	orders := make(map[string]int, len(frame.Names))
	testable := make(map[string]bool, len(frame.Names))
	for _, name := range frame.Names {
		order, ok := stationaryOrder(frame.ValidValues(name), e.config.Alpha, e.config.MaxDiffAttempts)
		orders[name] = order
		testable[name] = ok
	}

	var verdicts []models.CausalityVerdict
	for _, cause := range frame.Names {
		for _, effect := range frame.Names {
			if cause == effect {
				continue
			}
			if len(targets) > 0 && !targets[effect] {
				continue
			}
			if ctx.Err() != nil {
				return verdicts
			}
			verdicts = append(verdicts, e.testPair(frame, cause, effect, orders, testable))
		}
	}

	e.logger.WithFields(logrus.Fields{
		"pairs":   len(verdicts),
		"max_lag": e.config.MaxLag,
		"alpha":   e.config.Alpha,
	}).Debug("Causality verdicts computed")

	return verdicts
}

func (e *CausalityEngine) testPair(frame *models.AlignedFrame, cause, effect string, orders map[string]int, testable map[string]bool) models.CausalityVerdict {
	verdict := models.CausalityVerdict{
		Cause:  cause,
		Effect: effect,
		MaxLag: e.config.MaxLag,
		Alpha:  e.config.Alpha,
	}

	if !testable[cause] || !testable[effect] {
		verdict.Status = models.CausalityNotTestable
		verdict.Adjustment = adjustmentLabel(e.config.MaxDiffAttempts)
		return verdict
	}

	// The pair is differenced to the stricter of the two orders so both
	// sides of the regression are stationary.
	d := orders[cause]
	if orders[effect] > d {
		d = orders[effect]
	}
	verdict.Adjustment = adjustmentLabel(d)

	x, y := frame.PairedValues(cause, effect)
	for i := 0; i < d; i++ {
		x = difference(x)
		y = difference(y)
	}

	// Enough rows for the largest unrestricted regression plus slack.
	if len(y) < 3*e.config.MaxLag+5 {
		verdict.Status = models.CausalityInsufficient
		return verdict
	}

	bestP := math.Inf(1)
	for lag := 1; lag <= e.config.MaxLag; lag++ {
		fStat, pValue, ok := grangerFTest(y, x, lag)
		if !ok {
			continue
		}
		if pValue < bestP {
			bestP = pValue
			verdict.BestLag = lag
			verdict.FStatistic = fStat
			verdict.PValue = pValue
		}
	}

	if math.IsInf(bestP, 1) {
		verdict.Status = models.CausalityNotTestable
		return verdict
	}

	verdict.Status = models.CausalityOK
	verdict.Significant = verdict.PValue < e.config.Alpha
	return verdict
}

// grangerFTest compares the restricted model (effect's own lags) against
// the unrestricted model (own lags plus the cause candidate's lags) with
// an F-test on residual variance.
func grangerFTest(effect, cause []float64, lag int) (fStat, pValue float64, ok bool) {
	n := len(effect) - lag
	kUnrestricted := 1 + 2*lag
	if n <= kUnrestricted+1 {
		return 0, 0, false
	}

	y := mat.NewVecDense(n, nil)
	restricted := mat.NewDense(n, 1+lag, nil)
	unrestricted := mat.NewDense(n, kUnrestricted, nil)
	for t := 0; t < n; t++ {
		y.SetVec(t, effect[t+lag])
		restricted.Set(t, 0, 1.0)
		unrestricted.Set(t, 0, 1.0)
		for j := 1; j <= lag; j++ {
			restricted.Set(t, j, effect[t+lag-j])
			unrestricted.Set(t, j, effect[t+lag-j])
			unrestricted.Set(t, lag+j, cause[t+lag-j])
		}
	}

	rssR, okR := olsRSS(restricted, y)
	rssU, okU := olsRSS(unrestricted, y)
	if !okR || !okU {
		return 0, 0, false
	}

	// Clamp the tiny negative differences floating point can produce.
	num := rssR - rssU
	if num < 0 {
		num = 0
	}

	dof := float64(n - kUnrestricted)
	den := rssU / dof
	if den <= 0 || num == 0 {
		return 0, 1, true
	}

	fStat = (num / float64(lag)) / den
	if math.IsNaN(fStat) || math.IsInf(fStat, 0) {
		return 0, 0, false
	}

	fDist := distuv.F{D1: float64(lag), D2: dof}
	pValue = 1 - fDist.CDF(fStat)
	if pValue < 0 {
		pValue = 0
	}
	if pValue > 1 {
		pValue = 1
	}
	return fStat, pValue, true
}

// olsRSS fits y = X*beta by least squares and returns the residual sum of
// squares.
func olsRSS(X *mat.Dense, y *mat.VecDense) (float64, bool) {
	var beta mat.VecDense
	if err := beta.SolveVec(X, y); err != nil {
		return 0, false
	}
	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	var resid mat.VecDense
	resid.SubVec(y, &fitted)
	rss := mat.Dot(&resid, &resid)
	if math.IsNaN(rss) || math.IsInf(rss, 0) {
		return 0, false
	}
	return rss, true
}

func adjustmentLabel(order int) string {
	switch order {
	case 0:
		return models.AdjustmentNone
	case 1:
		return models.AdjustmentDifferenced
	default:
		return models.AdjustmentDifferencedTwo
	}
}
