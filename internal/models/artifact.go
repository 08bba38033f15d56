package models

import (
	"time"
)

// Correlation cell statuses.
const (
	CorrelationOK           = "ok"
	CorrelationInsufficient = "insufficient_data"
)

// CorrelationCell is one entry of the pairwise correlation matrix. Pairs
// with fewer usable rows than the configured minimum report the
// insufficient_data status instead of a coefficient.
type CorrelationCell struct {
	Coefficient float64 `json:"coefficient"`
	SampleCount int     `json:"sample_count"`
	Status      string  `json:"status"`
}

// CorrelationMatrix holds pairwise Pearson correlations across feature
// columns. It is symmetric and its diagonal is 1.0 for every series with
// sufficient samples.
type CorrelationMatrix struct {
	Names      []string                              `json:"names"`
	Cells      map[string]map[string]CorrelationCell `json:"cells"`
	MinSamples int                                   `json:"min_samples"`
}

// Cell returns the entry for an (a, b) pair.
func (m *CorrelationMatrix) Cell(a, b string) (CorrelationCell, bool) {
	row, ok := m.Cells[a]
	if !ok {
		return CorrelationCell{}, false
	}
	cell, ok := row[b]
	return cell, ok
}

// Stationarity adjustments applied before a causality test.
const (
	AdjustmentNone           = "none"
	AdjustmentDifferenced    = "differenced"
	AdjustmentDifferencedTwo = "differenced_twice"
)

// Causality verdict statuses.
const (
	CausalityOK           = "ok"
	CausalityNotTestable  = "not_testable"
	CausalityInsufficient = "insufficient_data"
)

// CausalityVerdict is the outcome of a directional Granger test for one
// ordered (cause, effect) pair. The reverse direction is a separate verdict.
type CausalityVerdict struct {
	Cause       string  `json:"cause"`
	Effect      string  `json:"effect"`
	MaxLag      int     `json:"max_lag"`
	BestLag     int     `json:"best_lag"`
	FStatistic  float64 `json:"f_statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	Alpha       float64 `json:"alpha"`
	Adjustment  string  `json:"adjustment"`
	Status      string  `json:"status"`
}

// Forecast statuses.
const (
	ForecastOK     = "ok"
	ForecastFailed = "fit_failed"
)

// ForecastPoint is a single horizon step with its confidence bounds.
type ForecastPoint struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ModelOrder identifies the fitted seasonal autoregressive model.
type ModelOrder struct {
	AR         int `json:"ar"`
	Diff       int `json:"diff"`
	SeasonalAR int `json:"seasonal_ar"`
	Period     int `json:"period"`
}

// ForecastResult is the per-entity forecast bundle. A failed fit carries
// the fit_failed status and an error message; it never blocks other
// entities in the same run.
type ForecastResult struct {
	Entity   string          `json:"entity"`
	Points   []ForecastPoint `json:"points"`
	Order    ModelOrder      `json:"order"`
	Coverage float64         `json:"coverage"`
	FitStart time.Time       `json:"fit_start"`
	FitEnd   time.Time       `json:"fit_end"`
	Status   string          `json:"status"`
	Error    string          `json:"error,omitempty"`
}

// AnalysisParameters is the configuration snapshot recorded on each
// published artifact so a run can be reproduced from a cold start.
type AnalysisParameters struct {
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	Interval           string    `json:"interval"`
	MaxStaleness       string    `json:"max_staleness"`
	CorrelationMinSamp int       `json:"correlation_min_samples"`
	CausalityMaxLag    int       `json:"causality_max_lag"`
	CausalityAlpha     float64   `json:"causality_alpha"`
	ForecastHorizon    int       `json:"forecast_horizon"`
	SeasonalPeriod     int       `json:"seasonal_period"`
	Coverage           float64   `json:"coverage"`
}

// AnalysisArtifact is the published bundle of one analysis run. It is
// immutable once published and superseded, never mutated, by later runs.
// CreatedAt is also the authoritative "when did the last run happen"
// record consulted before deciding to skip a run.
type AnalysisArtifact struct {
	Sequence     int64              `json:"sequence" db:"seq"`
	RunID        string             `json:"run_id" db:"run_id"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	Fingerprint  string             `json:"fingerprint" db:"fingerprint"`
	Parameters   AnalysisParameters `json:"parameters"`
	Correlations *CorrelationMatrix `json:"correlations"`
	Causality    []CausalityVerdict `json:"causality"`
	Forecasts    []ForecastResult   `json:"forecasts"`
}
