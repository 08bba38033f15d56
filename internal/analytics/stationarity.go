package analytics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// adfResult holds the outcome of one augmented Dickey-Fuller regression.
type adfResult struct {
	Statistic  float64
	Critical   float64
	Stationary bool
}

// adfTest runs an augmented Dickey-Fuller unit-root test with a constant
// term:
//
//	dy_t = alpha + rho*y_{t-1} + sum_i gamma_i*dy_{t-i} + e_t
//
// The null hypothesis is a unit root; the series is treated as stationary
// when the t-statistic of rho falls below the MacKinnon large-sample
// critical value for the given significance level.
func adfTest(values []float64, alpha float64) adfResult {
	critical := adfCritical(alpha)

	dy := difference(values)
	if len(dy) < 8 {
		// Too short to regress; report non-stationary so the caller
		// marks the pair rather than trusting a degenerate fit.
		return adfResult{Statistic: 0, Critical: critical, Stationary: false}
	}

	// Schwert-style lag heuristic, kept small.
	lags := int(math.Cbrt(float64(len(values))))
	if lags < 1 {
		lags = 1
	}
	if maxLags := len(dy)/2 - 2; lags > maxLags {
		lags = maxLags
	}
	if lags < 0 {
		lags = 0
	}

	rows := len(dy) - lags
	cols := 2 + lags // constant, y_{t-1}, lagged differences
	if rows <= cols+1 {
		return adfResult{Statistic: 0, Critical: critical, Stationary: false}
	}

	X := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for t := 0; t < rows; t++ {
		// dy index of the response row; values index of its level lag.
		di := t + lags
		y.SetVec(t, dy[di])
		X.Set(t, 0, 1.0)
		X.Set(t, 1, values[di])
		for i := 1; i <= lags; i++ {
			X.Set(t, 2+i-1, dy[di-i])
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(X, y); err != nil {
		return adfResult{Statistic: 0, Critical: critical, Stationary: false}
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	var resid mat.VecDense
	resid.SubVec(y, &fitted)
	rss := mat.Dot(&resid, &resid)

	dof := float64(rows - cols)
	if dof <= 0 {
		return adfResult{Statistic: 0, Critical: critical, Stationary: false}
	}
	sigma2 := rss / dof

	// Standard error of rho needs the (1,1) entry of (X'X)^{-1}.
	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return adfResult{Statistic: 0, Critical: critical, Stationary: false}
	}
	se := math.Sqrt(sigma2 * xtxInv.At(1, 1))
	if se == 0 || math.IsNaN(se) {
		return adfResult{Statistic: 0, Critical: critical, Stationary: false}
	}

	stat := beta.AtVec(1) / se
	return adfResult{Statistic: stat, Critical: critical, Stationary: stat < critical}
}

// adfCritical returns the MacKinnon large-sample critical value for a
// constant-only ADF regression.
func adfCritical(alpha float64) float64 {
	switch {
	case alpha <= 0.01:
		return -3.43
	case alpha <= 0.05:
		return -2.86
	default:
		return -2.57
	}
}

// stationaryOrder finds how many first differences make a series
// stationary, bounded by maxAttempts. ok is false when the bound is
// exhausted without achieving stationarity.
func stationaryOrder(values []float64, alpha float64, maxAttempts int) (order int, ok bool) {
	current := values
	for d := 0; d <= maxAttempts; d++ {
		if adfTest(current, alpha).Stationary {
			return d, true
		}
		if d == maxAttempts {
			break
		}
		current = difference(current)
	}
	return maxAttempts, false
}
