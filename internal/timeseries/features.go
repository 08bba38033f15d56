package timeseries

import (
	"fmt"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/trendlens/trendlens-go/internal/models"
)

// FeatureConfig controls which derived columns are appended.
type FeatureConfig struct {
	IndicatorPeriod int
}

// FeatureBuilder appends derived indicator columns (SMA, EMA, RSI, simple
// returns) for each entity price column so they participate in correlation
// and causality like any other feature.
type FeatureBuilder struct {
	config FeatureConfig
	logger *logrus.Logger
}

// NewFeatureBuilder creates a feature builder.
func NewFeatureBuilder(config FeatureConfig, logger *logrus.Logger) *FeatureBuilder {
	if config.IndicatorPeriod < 2 {
		config.IndicatorPeriod = 14
	}
	return &FeatureBuilder{config: config, logger: logger}
}

// Derive appends indicator columns for the given price columns in place.
// Indicator warm-up rows and rows under a gap are explicit no-value cells.
func (b *FeatureBuilder) Derive(frame *models.AlignedFrame, priceColumns []string) error {
	period := b.config.IndicatorPeriod
	for _, name := range priceColumns {
		col, ok := frame.Column(name)
		if !ok {
			return fmt.Errorf("derive features: no column %q in frame", name)
		}

		// Indicators need a dense input; compute over the valid run and
		// map results back to the source rows.
		prices := make([]float64, 0, len(col))
		rows := make([]int, 0, len(col))
		for i, cell := range col {
			if cell.Valid {
				prices = append(prices, cell.Float64)
				rows = append(rows, i)
			}
		}

		sma := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](period).Compute(helper.SliceToChan(prices)))
		ema := helper.ChanToSlice(trend.NewEmaWithPeriod[float64](period).Compute(helper.SliceToChan(prices)))
		rsi := helper.ChanToSlice(momentum.NewRsiWithPeriod[float64](period).Compute(helper.SliceToChan(prices)))

		frame.Columns[fmt.Sprintf("%s_sma%d", name, period)] = spreadTail(len(col), rows, sma)
		frame.Columns[fmt.Sprintf("%s_ema%d", name, period)] = spreadTail(len(col), rows, ema)
		frame.Columns[fmt.Sprintf("%s_rsi%d", name, period)] = spreadTail(len(col), rows, rsi)
		frame.Columns[name+"_ret"] = spreadTail(len(col), rows, returns(prices))

		b.logger.WithFields(logrus.Fields{
			"column": name,
			"period": period,
			"points": len(prices),
		}).Debug("Derived indicator features")
	}

	names := make([]string, 0, len(frame.Columns))
	for name := range frame.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	frame.Names = names

	return nil
}

// spreadTail places indicator outputs back onto frame rows. Indicator
// streams are shorter than their input by the warm-up length, aligned to
// the tail of the input, so the first len(rows)-len(vals) rows stay missing.
func spreadTail(total int, rows []int, vals []float64) []models.Value {
	col := make([]models.Value, total)
	offset := len(rows) - len(vals)
	if offset < 0 {
		offset = 0
		vals = vals[len(vals)-len(rows):]
	}
	for i, v := range vals {
		col[rows[offset+i]] = models.SomeValue(v)
	}
	return col
}

// returns computes simple one-step percentage returns; one value shorter
// than its input.
func returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prev)/prev)
	}
	return out
}
