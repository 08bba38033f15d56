package analytics

import (
	"github.com/sirupsen/logrus"

	"github.com/trendlens/trendlens-go/internal/models"
)

// CorrelationEngine computes pairwise Pearson correlation across the
// columns of an aligned frame. It is a pure function of its inputs: the
// same frame and threshold always produce the same matrix.
type CorrelationEngine struct {
	minSamples int
	logger     *logrus.Logger
}

// NewCorrelationEngine creates a correlation engine with the given
// minimum-sample-count threshold.
func NewCorrelationEngine(minSamples int, logger *logrus.Logger) *CorrelationEngine {
	return &CorrelationEngine{minSamples: minSamples, logger: logger}
}

// Compute builds the correlation matrix. Each pair uses only the rows
// where both columns carry a real value; pairs (and diagonal entries)
// below the threshold report insufficient_data, never a numeric default.
func (e *CorrelationEngine) Compute(frame *models.AlignedFrame) *models.CorrelationMatrix {
	matrix := &models.CorrelationMatrix{
		Names:      append([]string(nil), frame.Names...),
		Cells:      make(map[string]map[string]models.CorrelationCell, len(frame.Names)),
		MinSamples: e.minSamples,
	}
	for _, name := range matrix.Names {
		matrix.Cells[name] = make(map[string]models.CorrelationCell, len(matrix.Names))
	}

	insufficient := 0
	for i, a := range matrix.Names {
		validA := frame.ValidCount(a)
		if validA >= e.minSamples {
			matrix.Cells[a][a] = models.CorrelationCell{Coefficient: 1.0, SampleCount: validA, Status: models.CorrelationOK}
		} else {
			matrix.Cells[a][a] = models.CorrelationCell{SampleCount: validA, Status: models.CorrelationInsufficient}
			insufficient++
		}

		for _, b := range matrix.Names[i+1:] {
			x, y := frame.PairedValues(a, b)
			var cell models.CorrelationCell
			if len(x) < e.minSamples {
				cell = models.CorrelationCell{SampleCount: len(x), Status: models.CorrelationInsufficient}
				insufficient++
			} else {
				cell = models.CorrelationCell{
					Coefficient: pearson(x, y),
					SampleCount: len(x),
					Status:      models.CorrelationOK,
				}
			}
			matrix.Cells[a][b] = cell
			matrix.Cells[b][a] = cell
		}
	}

	e.logger.WithFields(logrus.Fields{
		"series":       len(matrix.Names),
		"min_samples":  e.minSamples,
		"insufficient": insufficient,
	}).Debug("Correlation matrix computed")

	return matrix
}
