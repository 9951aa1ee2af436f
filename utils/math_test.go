package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatEquals(t *testing.T) {
	assert.True(t, FloatEquals(0.1+0.2, 0.3))
	assert.False(t, FloatEquals(0.3, 0.3001))
}

func TestRoundToPrecision(t *testing.T) {
	assert.Equal(t, 1.2346, RoundToPrecision(1.23456, 4))
	assert.Equal(t, -0.5, RoundToPrecision(-0.49999, 2))
}

func TestFloorToStep(t *testing.T) {
	assert.InDelta(t, 0.123, FloorToStep(0.12399, 0.001), 1e-12)
	assert.InDelta(t, 0.3, FloorToStep(0.3, 0.1), 1e-12)
	assert.Equal(t, 5.5, FloorToStep(5.5, 0))
	assert.Equal(t, 3, StepPrecision(0.001))
	assert.Equal(t, 0, StepPrecision(1))
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 42.5, ParseFloat("42.50000000"))
	assert.Zero(t, ParseFloat("n/a"))
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 0.05, PercentChange(100, 105), 1e-12)
	assert.InDelta(t, -0.1, PercentChange(100, 90), 1e-12)
	assert.Zero(t, PercentChange(0, 10))
}
