package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_TooFewReports(t *testing.T) {
	_, ok := Resolve(nil, DefaultThreshold)
	assert.False(t, ok)

	_, ok = Resolve([]float64{100}, DefaultThreshold)
	assert.False(t, ok)

	_, ok = Resolve([]float64{100, 100.1}, DefaultThreshold)
	assert.False(t, ok)
}

func TestResolve_TightSpread(t *testing.T) {
	mean, ok := Resolve([]float64{100, 100.5, 99.8}, DefaultThreshold)
	assert.True(t, ok)
	assert.InDelta(t, 100.1, mean, 1e-9)
}

func TestResolve_ExactThresholdPasses(t *testing.T) {
	// (101-100)/100 = exactly 1% spread; only a strictly wider spread
	// blocks consensus.
	mean, ok := Resolve([]float64{100, 101, 100.5}, DefaultThreshold)
	assert.True(t, ok)
	assert.InDelta(t, 100.5, mean, 1e-9)
}

func TestResolve_SpreadTooWide(t *testing.T) {
	_, ok := Resolve([]float64{100, 101.1, 100.5}, DefaultThreshold)
	assert.False(t, ok)
}

func TestResolve_NonPositiveMin(t *testing.T) {
	_, ok := Resolve([]float64{0, 0.001, 0.002}, DefaultThreshold)
	assert.False(t, ok)

	_, ok = Resolve([]float64{-1, 100, 100.5}, DefaultThreshold)
	assert.False(t, ok)
}

func TestResolve_MeanOverAllValues(t *testing.T) {
	mean, ok := Resolve([]float64{10, 10.05, 10.02, 10.01}, DefaultThreshold)
	assert.True(t, ok)
	assert.InDelta(t, 10.02, mean, 1e-9)
}

func TestResolve_InputNotMutated(t *testing.T) {
	values := []float64{10.05, 10, 10.02}
	_, ok := Resolve(values, DefaultThreshold)
	assert.True(t, ok)
	assert.Equal(t, []float64{10.05, 10, 10.02}, values)
}

func TestResolve_CustomThreshold(t *testing.T) {
	// 5% spread fails the default but passes a 10% threshold.
	values := []float64{100, 105, 102}
	_, ok := Resolve(values, DefaultThreshold)
	assert.False(t, ok)

	mean, ok := Resolve(values, 0.10)
	assert.True(t, ok)
	assert.InDelta(t, 102.333333333, mean, 1e-6)
}
