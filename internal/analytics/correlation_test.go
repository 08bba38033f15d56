package analytics

import (
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/trendlens-go/internal/models"
)

var nanValue = math.NaN()

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// frameOf builds an hourly frame from dense float columns; NaN marks a
// missing cell.
func frameOf(columns map[string][]float64) *models.AlignedFrame {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := 0
	names := make([]string, 0, len(columns))
	for name, col := range columns {
		names = append(names, name)
		rows = len(col)
	}

	frame := &models.AlignedFrame{
		Start:    start,
		End:      start.Add(time.Duration(rows-1) * time.Hour),
		Interval: time.Hour,
		Columns:  make(map[string][]models.Value, len(columns)),
	}
	for i := 0; i < rows; i++ {
		frame.Index = append(frame.Index, start.Add(time.Duration(i)*time.Hour))
	}
	for name, col := range columns {
		cells := make([]models.Value, rows)
		for i, v := range col {
			if v == v { // not NaN
				cells[i] = models.SomeValue(v)
			}
		}
		frame.Columns[name] = cells
	}

	// Keep the aligner's sorted-names invariant.
	frame.Names = names
	for i := 1; i < len(frame.Names); i++ {
		for j := i; j > 0 && frame.Names[j] < frame.Names[j-1]; j-- {
			frame.Names[j], frame.Names[j-1] = frame.Names[j-1], frame.Names[j]
		}
	}
	return frame
}

func TestCorrelationPerfectPairs(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	double := make([]float64, len(x))
	negated := make([]float64, len(x))
	for i, v := range x {
		double[i] = 2 * v
		negated[i] = -v
	}

	frame := frameOf(map[string][]float64{"x": x, "double": double, "negated": negated})
	matrix := NewCorrelationEngine(10, testLogger()).Compute(frame)

	up, ok := matrix.Cell("x", "double")
	require.True(t, ok)
	assert.Equal(t, models.CorrelationOK, up.Status)
	assert.InDelta(t, 1.0, up.Coefficient, 1e-9)
	assert.Equal(t, 12, up.SampleCount)

	down, ok := matrix.Cell("x", "negated")
	require.True(t, ok)
	assert.InDelta(t, -1.0, down.Coefficient, 1e-9)
}

func TestCorrelationSymmetryAndDiagonal(t *testing.T) {
	frame := frameOf(map[string][]float64{
		"a": {1, 3, 2, 5, 4, 7, 6, 9, 8, 11, 10, 13},
		"b": {2, 1, 4, 3, 6, 5, 8, 7, 10, 9, 12, 11},
	})
	matrix := NewCorrelationEngine(10, testLogger()).Compute(frame)

	ab, _ := matrix.Cell("a", "b")
	ba, _ := matrix.Cell("b", "a")
	assert.Equal(t, ab, ba)

	for _, name := range matrix.Names {
		diag, ok := matrix.Cell(name, name)
		require.True(t, ok)
		assert.Equal(t, models.CorrelationOK, diag.Status)
		assert.Equal(t, 1.0, diag.Coefficient)
	}
}

func TestCorrelationInsufficientData(t *testing.T) {
	nan := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = nanValue
		}
		return out
	}

	dense := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	sparse := nan(12)
	sparse[0], sparse[5], sparse[11] = 1, 2, 3

	frame := frameOf(map[string][]float64{"dense": dense, "sparse": sparse})
	matrix := NewCorrelationEngine(10, testLogger()).Compute(frame)

	// Only 3 overlapping rows: below the threshold, no coefficient.
	cell, ok := matrix.Cell("dense", "sparse")
	require.True(t, ok)
	assert.Equal(t, models.CorrelationInsufficient, cell.Status)
	assert.Equal(t, 3, cell.SampleCount)
	assert.Zero(t, cell.Coefficient)

	// The sparse diagonal is below the threshold too.
	diag, _ := matrix.Cell("sparse", "sparse")
	assert.Equal(t, models.CorrelationInsufficient, diag.Status)

	denseDiag, _ := matrix.Cell("dense", "dense")
	assert.Equal(t, models.CorrelationOK, denseDiag.Status)
}

func TestCorrelationDeterministic(t *testing.T) {
	frame := frameOf(map[string][]float64{
		"a": {5, 1, 4, 2, 3, 6, 9, 7, 8, 10, 12, 11},
		"b": {1, 2, 1, 3, 2, 4, 3, 5, 4, 6, 5, 7},
	})
	engine := NewCorrelationEngine(10, testLogger())

	first := engine.Compute(frame)
	second := engine.Compute(frame)
	assert.Equal(t, first, second)
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, pearson([]float64{1, 2, 3}, []float64{10, 20, 30}), 1e-9)
	assert.InDelta(t, -1.0, pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-9)
	// Zero variance never divides by zero.
	assert.Equal(t, 0.0, pearson([]float64{2, 2, 2}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, pearson(nil, nil))
}
