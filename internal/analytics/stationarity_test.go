package analytics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whiteNoise(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func randomWalk(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	level := 0.0
	for i := range out {
		level += rng.NormFloat64()
		out[i] = level
	}
	return out
}

func TestAdfTestWhiteNoiseIsStationary(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	result := adfTest(whiteNoise(rng, 300), 0.05)
	assert.True(t, result.Stationary, "white noise should reject the unit root (stat=%v crit=%v)", result.Statistic, result.Critical)
}

func TestAdfTestRandomWalkIsNotStationary(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	result := adfTest(randomWalk(rng, 300), 0.05)
	assert.False(t, result.Stationary, "random walk should not reject the unit root (stat=%v crit=%v)", result.Statistic, result.Critical)
}

func TestAdfTestShortSeries(t *testing.T) {
	result := adfTest([]float64{1, 2, 3, 4}, 0.05)
	assert.False(t, result.Stationary)
}

func TestAdfCritical(t *testing.T) {
	assert.Equal(t, -3.43, adfCritical(0.01))
	assert.Equal(t, -2.86, adfCritical(0.05))
	assert.Equal(t, -2.57, adfCritical(0.10))
}

func TestStationaryOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	order, ok := stationaryOrder(whiteNoise(rng, 300), 0.05, 2)
	require.True(t, ok)
	assert.Equal(t, 0, order)

	order, ok = stationaryOrder(randomWalk(rng, 300), 0.05, 2)
	require.True(t, ok)
	assert.Equal(t, 1, order)
}

func TestStationaryOrderExhaustsBound(t *testing.T) {
	// A quadratic trend does not become a usable stationary series within
	// two differences: the second difference is constant, which a unit-root
	// regression cannot fit.
	values := make([]float64, 200)
	for i := range values {
		values[i] = float64(i) * float64(i)
	}
	order, ok := stationaryOrder(values, 0.05, 2)
	assert.False(t, ok)
	assert.Equal(t, 2, order)
}

func TestDifference(t *testing.T) {
	assert.Equal(t, []float64{1, 2, 4}, difference([]float64{0, 1, 3, 7}))
	assert.Nil(t, difference([]float64{5}))
}

func TestStatsHelpers(t *testing.T) {
	assert.InDelta(t, 2.0, mean([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 0.0, mean(nil))
	assert.InDelta(t, 1.0, stdDev([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 0.0, stdDev([]float64{5}))
	assert.False(t, math.IsNaN(stdDev([]float64{2, 2, 2})))
}
