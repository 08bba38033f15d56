package timeseries

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/trendlens-go/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func hourlySeries(name string, start time.Time, values ...float64) models.Series {
	s := models.Series{Name: name}
	for i, v := range values {
		s.Points = append(s.Points, models.Observation{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Value:     v,
		})
	}
	return s
}

func TestAlignBuildsInclusiveCalendar(t *testing.T) {
	aligner := NewAligner(AlignerConfig{Interval: time.Hour, MaxStaleness: 2 * time.Hour}, testLogger())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	frame, err := aligner.Align([]models.Series{hourlySeries("a", start, 1, 2, 3, 4, 5)}, start, end)
	require.NoError(t, err)

	assert.Equal(t, 5, frame.Rows())
	assert.Equal(t, start, frame.Index[0])
	assert.Equal(t, end, frame.Index[4])
	assert.Equal(t, []string{"a"}, frame.Names)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, frame.ValidValues("a"))
}

func TestAlignCarryForwardBoundedByStaleness(t *testing.T) {
	aligner := NewAligner(AlignerConfig{Interval: time.Hour, MaxStaleness: 2 * time.Hour}, testLogger())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Hour)

	// Single observation at the window start; carry-forward fills two more
	// ticks, then the staleness bound cuts off.
	single := models.Series{Name: "sparse", Points: []models.Observation{{Timestamp: start, Value: 7}}}
	frame, err := aligner.Align([]models.Series{single}, start, end)
	require.NoError(t, err)

	col, ok := frame.Column("sparse")
	require.True(t, ok)
	for i := 0; i <= 2; i++ {
		assert.True(t, col[i].Valid, "tick %d should carry the value forward", i)
		assert.Equal(t, 7.0, col[i].Float64)
	}
	for i := 3; i <= 5; i++ {
		assert.False(t, col[i].Valid, "tick %d is beyond the staleness bound", i)
	}
}

func TestAlignOffGridObservationsSnapToLastTick(t *testing.T) {
	aligner := NewAligner(AlignerConfig{Interval: time.Hour, MaxStaleness: time.Hour}, testLogger())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	offGrid := models.Series{Name: "a", Points: []models.Observation{
		{Timestamp: start.Add(20 * time.Minute), Value: 1},
		{Timestamp: start.Add(90 * time.Minute), Value: 2},
	}}
	frame, err := aligner.Align([]models.Series{offGrid}, start, end)
	require.NoError(t, err)

	col, _ := frame.Column("a")
	assert.False(t, col[0].Valid)
	assert.Equal(t, models.SomeValue(1), col[1])
	assert.Equal(t, models.SomeValue(2), col[2])
}

func TestAlignEmptySeriesGetsAllMissingColumn(t *testing.T) {
	aligner := NewAligner(AlignerConfig{Interval: time.Hour, MaxStaleness: time.Hour}, testLogger())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	frame, err := aligner.Align([]models.Series{
		hourlySeries("dense", start, 1, 2, 3, 4),
		{Name: "empty"},
	}, start, end)
	require.NoError(t, err)

	assert.Equal(t, []string{"dense", "empty"}, frame.Names)
	assert.Equal(t, 0, frame.ValidCount("empty"))
	assert.Equal(t, 4, frame.ValidCount("dense"))
}

func TestAlignInsufficientWindow(t *testing.T) {
	aligner := NewAligner(AlignerConfig{Interval: time.Hour, MaxStaleness: 2 * time.Hour}, testLogger())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	_, err := aligner.Align([]models.Series{{Name: "a"}, {Name: "b"}}, start, end)
	require.Error(t, err)
	assert.True(t, IsInsufficientWindow(err))

	// Data strictly before the window is carry-forward material, not
	// in-window data; it must not defeat the abort.
	stale := models.Series{Name: "old", Points: []models.Observation{{Timestamp: start.Add(-30 * time.Minute), Value: 5}}}
	_, err = aligner.Align([]models.Series{stale}, start, end)
	require.Error(t, err)
	assert.True(t, IsInsufficientWindow(err))
}

func TestAlignRejectsBadInput(t *testing.T) {
	logger := testLogger()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	aligner := NewAligner(AlignerConfig{Interval: time.Hour, MaxStaleness: time.Hour}, logger)
	_, err := aligner.Align([]models.Series{
		hourlySeries("dup", start, 1),
		hourlySeries("dup", start, 2),
	}, start, start.Add(time.Hour))
	assert.ErrorContains(t, err, "duplicate series name")

	_, err = aligner.Align([]models.Series{hourlySeries("a", start, 1)}, start.Add(time.Hour), start)
	assert.ErrorContains(t, err, "before start")

	zeroInterval := NewAligner(AlignerConfig{Interval: 0, MaxStaleness: time.Hour}, logger)
	_, err = zeroInterval.Align([]models.Series{hourlySeries("a", start, 1)}, start, start.Add(time.Hour))
	assert.ErrorContains(t, err, "interval must be positive")
}

func TestAlignSortsColumnNames(t *testing.T) {
	aligner := NewAligner(AlignerConfig{Interval: time.Hour, MaxStaleness: time.Hour}, testLogger())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	frame, err := aligner.Align([]models.Series{
		hourlySeries("zeta", start, 1, 2),
		hourlySeries("alpha", start, 3, 4),
		hourlySeries("mid", start, 5, 6),
	}, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, frame.Names)
}
