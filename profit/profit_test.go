package profit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAccountant_RecordExit(t *testing.T) {
	a := NewAccountant()

	trip := a.RecordExit("AAPL", 100, 110, 10, day0, "take profit")
	assert.Equal(t, 100.0, trip.PNL)
	assert.InDelta(t, 10.0, trip.PNLPercent, 1e-9)

	a.RecordExit("MSFT", 200, 190, 5, day0.Add(time.Hour), "stop")
	assert.Equal(t, 50.0, a.GetRealizedPNL())
	require.Len(t, a.RoundTrips(), 2)
	assert.Equal(t, "MSFT", a.RoundTrips()[1].Symbol)
}

func TestAccountant_Restore(t *testing.T) {
	a := NewAccountant()
	a.Restore(42)
	a.RecordExit("AAPL", 10, 11, 1, day0, "")
	assert.Equal(t, 43.0, a.GetRealizedPNL())
}

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown([]float64{100}))
	assert.InDelta(t, 0.25, MaxDrawdown([]float64{100, 120, 90, 110, 130}), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{100, 101, 102}))
}

func TestSharpeRatio(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.01}, 0))
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0), "zero dispersion")

	returns := []float64{0.02, -0.01, 0.03, 0.00}
	mean := 0.01
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / float64(len(returns)))
	assert.InDelta(t, mean/sd*math.Sqrt(252), SharpeRatio(returns, 0), 1e-6)
}

func TestComputeMetrics(t *testing.T) {
	trips := []RoundTrip{
		{Symbol: "B", PNL: -50, ClosedAt: day0.Add(2 * time.Hour)},
		{Symbol: "A", PNL: 100, ClosedAt: day0.Add(time.Hour)},
		{Symbol: "C", PNL: 0, ClosedAt: day0.Add(3 * time.Hour)},
	}
	m := ComputeMetrics(trips, 1000, 0)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 1.0/3, m.WinRate, 1e-12)
	assert.Equal(t, 50.0, m.TotalPNL)
	assert.InDelta(t, 0.05, m.TotalReturn, 1e-12)
	assert.InDelta(t, 50.0/1100, m.MaxDrawdown, 1e-12)
	assert.Greater(t, m.Volatility, 0.0)

	assert.Equal(t, []float64{1000, 1100, 1050, 1050}, EquityCurve(trips, 1000))
}

func TestComputeMetrics_Empty(t *testing.T) {
	assert.Equal(t, Metrics{}, ComputeMetrics(nil, 1000, 0))
}
