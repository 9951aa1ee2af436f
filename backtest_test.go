package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"crossbot/exchange"
	"crossbot/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacktest_RoundTrip(t *testing.T) {
	f := newFixture(t, testConfig("AAPL", "BAD"))
	bars := crossoverBars()
	f.provider.bars["AAPL"] = bars
	f.provider.histErr["BAD"] = errors.New("vendor down")

	res, err := f.o.RunBacktest(context.Background(), t0, t0.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, []string{"BAD"}, res.SkippedSymbols)
	require.Len(t, res.Trades, 2)
	buy, sell := res.Trades[0], res.Trades[1]
	assert.Equal(t, exchange.Buy, buy.Side)
	assert.Equal(t, 33.0, buy.Quantity)
	assert.Equal(t, 300.0, buy.Price)
	assert.True(t, buy.Timestamp.Equal(bars[25].Timestamp), "orders are stamped with the signal time")
	assert.Equal(t, exchange.Sell, sell.Side)
	assert.Equal(t, 100.0, sell.Price)
	assert.True(t, sell.Timestamp.Equal(bars[32].Timestamp))

	require.Len(t, res.RoundTrips, 1)
	assert.InDelta(t, -6600.0, res.RoundTrips[0].PNL, 1e-9)
	assert.InDelta(t, 93400.0, res.FinalAccount.Cash, 1e-6)
	assert.InDelta(t, res.FinalAccount.Equity-100000, res.Metrics.TotalPNL, 1e-6)
	assert.Empty(t, res.OpenPositions)
	assert.Equal(t, 2, res.SignalStats.TotalSignals)

	positions, _ := f.ledger.Positions(context.Background())
	assert.Empty(t, positions, "backtest leaves the live ledger untouched")
	assert.Empty(t, f.risk.Levels())
}

func TestBacktest_IgnoresRepeatedSides(t *testing.T) {
	f := newFixture(t, testConfig("AAPL"))
	bars := crossoverBars()
	// A second upward cross after the exit re-enters.
	extra := []float64{100, 400, 400, 400, 400, 400}
	for i, c := range extra {
		bars = append(bars, strategy.Bar{Timestamp: t0.Add(time.Duration(40+i) * time.Minute), Close: c})
	}
	f.provider.bars["AAPL"] = bars

	res, err := f.o.RunBacktest(context.Background(), t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, res.Trades, 3)
	for i := 1; i < len(res.Trades); i++ {
		assert.NotEqual(t, res.Trades[i-1].Side, res.Trades[i].Side, "sides alternate")
	}
	assert.Equal(t, exchange.Buy, res.Trades[0].Side)
}

func TestBacktest_RejectsEmptyWindow(t *testing.T) {
	f := newFixture(t, testConfig("AAPL"))
	_, err := f.o.RunBacktest(context.Background(), t0, t0)
	assert.Error(t, err)
}
