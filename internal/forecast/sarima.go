package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/trendlens/trendlens-go/internal/models"
)

// ModelFitError reports a per-entity fit failure. It is recorded on that
// entity's ForecastResult and never aborts the rest of the run.
type ModelFitError struct {
	Entity string
	Reason string
	Err    error
}

func (e *ModelFitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model fit failed for %s: %s: %v", e.Entity, e.Reason, e.Err)
	}
	return fmt.Sprintf("model fit failed for %s: %s", e.Entity, e.Reason)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}

// sarModel is a fitted seasonal autoregressive model with optional
// differencing and exogenous regressors:
//
//	z_t = c + sum_i phi_i*z_{t-i} + sum_j sphi_j*z_{t-j*m} + sum_k beta_k*x_{k,t} + e_t
//
// where z is the d-times differenced series.
type sarModel struct {
	order     models.ModelOrder
	intercept float64
	arCoef    []float64 // lag 1..p
	seasCoef  []float64 // lag m, 2m, ..., P*m
	exogCoef  []float64
	sigma2    float64
	aic       float64
	nobs      int
}

// maxLag returns the deepest lag the model reaches back to.
func (m *sarModel) maxLag() int {
	lag := len(m.arCoef)
	if s := len(m.seasCoef) * m.order.Period; s > lag {
		lag = s
	}
	return lag
}

// fitSAR estimates the model by ordinary least squares on the lag design
// matrix. values must be gap-filled and equally spaced; exog, when
// present, must have one row per value.
func fitSAR(entity string, values []float64, exog [][]float64, order models.ModelOrder) (*sarModel, error) {
	if order.AR < 1 {
		return nil, &ModelFitError{Entity: entity, Reason: "autoregressive order must be >= 1"}
	}
	if order.SeasonalAR > 0 && order.Period < 2 {
		return nil, &ModelFitError{Entity: entity, Reason: fmt.Sprintf("seasonal terms need period >= 2, got %d", order.Period)}
	}

	z := append([]float64(nil), values...)
	for i := 0; i < order.Diff; i++ {
		z = diff(z)
	}
	exogRows := exog
	if len(exogRows) > 0 {
		exogRows = exogRows[len(exogRows)-len(z):]
	}

	model := &sarModel{order: order}
	maxLag := model.withShape().maxLag()

	nExog := 0
	if len(exogRows) > 0 {
		nExog = len(exogRows[0])
	}
	cols := 1 + order.AR + order.SeasonalAR + nExog
	rows := len(z) - maxLag
	if rows < cols+2 {
		return nil, &ModelFitError{Entity: entity, Reason: fmt.Sprintf("need more than %d observations for order (%d,%d,%d)[%d]", maxLag+cols+2, order.AR, order.Diff, order.SeasonalAR, order.Period)}
	}

	X := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for t := 0; t < rows; t++ {
		ti := t + maxLag
		y.SetVec(t, z[ti])
		col := 0
		X.Set(t, col, 1.0)
		col++
		for i := 1; i <= order.AR; i++ {
			X.Set(t, col, z[ti-i])
			col++
		}
		for j := 1; j <= order.SeasonalAR; j++ {
			X.Set(t, col, z[ti-j*order.Period])
			col++
		}
		for k := 0; k < nExog; k++ {
			X.Set(t, col, exogRows[ti][k])
			col++
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(X, y); err != nil {
		return nil, &ModelFitError{Entity: entity, Reason: "singular design matrix", Err: err}
	}
	for i := 0; i < beta.Len(); i++ {
		if math.IsNaN(beta.AtVec(i)) || math.IsInf(beta.AtVec(i), 0) {
			return nil, &ModelFitError{Entity: entity, Reason: "non-finite coefficients"}
		}
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &beta)
	var resid mat.VecDense
	resid.SubVec(y, &fitted)
	rss := mat.Dot(&resid, &resid)
	if math.IsNaN(rss) || math.IsInf(rss, 0) {
		return nil, &ModelFitError{Entity: entity, Reason: "non-finite residuals"}
	}

	n := float64(rows)
	k := float64(cols)
	model.intercept = beta.AtVec(0)
	model.arCoef = vecSlice(&beta, 1, order.AR)
	model.seasCoef = vecSlice(&beta, 1+order.AR, order.SeasonalAR)
	model.exogCoef = vecSlice(&beta, 1+order.AR+order.SeasonalAR, nExog)
	model.sigma2 = rss / (n - k)
	model.nobs = rows
	if rss <= 0 {
		// A perfect fit; keep AIC finite so grid search can still rank it.
		model.aic = math.Inf(-1)
	} else {
		model.aic = n*math.Log(rss/n) + 2*k
	}
	return model, nil
}

// withShape fills the coefficient slices with zeros so maxLag can be
// computed before estimation.
func (m *sarModel) withShape() *sarModel {
	if m.arCoef == nil {
		m.arCoef = make([]float64, m.order.AR)
	}
	if m.seasCoef == nil {
		m.seasCoef = make([]float64, m.order.SeasonalAR)
	}
	return m
}

// forecast produces point forecasts and interval bounds for the next
// horizon steps, feeding predictions back as lag inputs. Future exogenous
// rows are held at their last observed values. Interval widths are
// non-decreasing in the horizon step because each step adds a
// non-negative psi-weight term to the forecast-error variance.
func (m *sarModel) forecast(values []float64, exog [][]float64, horizon int, coverage float64) []models.ForecastPoint {
	z := append([]float64(nil), values...)
	tails := make([][]float64, 0, m.order.Diff)
	for i := 0; i < m.order.Diff; i++ {
		tails = append(tails, []float64{z[len(z)-1]})
		z = diff(z)
	}

	var lastExog []float64
	if len(exog) > 0 {
		lastExog = exog[len(exog)-1]
	}

	// Iterated point forecasts on the differenced scale.
	zf := make([]float64, 0, horizon)
	work := append([]float64(nil), z...)
	for h := 0; h < horizon; h++ {
		pred := m.intercept
		for i := 1; i <= len(m.arCoef); i++ {
			pred += m.arCoef[i-1] * work[len(work)-i]
		}
		for j := 1; j <= len(m.seasCoef); j++ {
			pred += m.seasCoef[j-1] * work[len(work)-j*m.order.Period]
		}
		for k := 0; k < len(m.exogCoef); k++ {
			pred += m.exogCoef[k] * lastExog[k]
		}
		work = append(work, pred)
		zf = append(zf, pred)
	}

	// Undo differencing by cumulative summation from the recorded tails.
	points := append([]float64(nil), zf...)
	for i := len(tails) - 1; i >= 0; i-- {
		level := tails[i][0]
		for h := range points {
			level += points[h]
			points[h] = level
		}
	}

	psi := m.psiWeights(horizon)
	zScore := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.5 + coverage/2)

	out := make([]models.ForecastPoint, horizon)
	acc := 0.0
	for h := 0; h < horizon; h++ {
		acc += psi[h] * psi[h]
		half := zScore * math.Sqrt(m.sigma2*acc)
		out[h] = models.ForecastPoint{
			Step:  h + 1,
			Value: points[h],
			Lower: points[h] - half,
			Upper: points[h] + half,
		}
	}
	return out
}

// psiWeights computes the moving-average representation weights of the
// fitted model on the original (undifferenced) scale.
func (m *sarModel) psiWeights(horizon int) []float64 {
	maxLag := m.maxLag()
	ar := make([]float64, maxLag+1)
	for i, c := range m.arCoef {
		ar[i+1] += c
	}
	for j, c := range m.seasCoef {
		ar[(j+1)*m.order.Period] += c
	}

	psi := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		if h == 0 {
			psi[0] = 1
			continue
		}
		sum := 0.0
		for i := 1; i <= h && i <= maxLag; i++ {
			sum += ar[i] * psi[h-i]
		}
		psi[h] = sum
	}

	// Each differencing level integrates the weights, which keeps the
	// per-step variance increments non-negative.
	for d := 0; d < m.order.Diff; d++ {
		running := 0.0
		for h := range psi {
			running += psi[h]
			psi[h] = running
		}
	}
	return psi
}

func vecSlice(v *mat.VecDense, start, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(start + i)
	}
	return out
}

func diff(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}
