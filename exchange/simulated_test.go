package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedLedger_BuyInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := NewSimulatedLedger(1000)

	order := l.Submit(ctx, "AAPL", Buy, 20, 100, "test")
	assert.Equal(t, Rejected, order.Status)
	assert.Contains(t, order.Reason, "insufficient funds")
	assert.Zero(t, order.FilledQuantity)

	acct, err := l.AccountInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, acct.Cash)
	positions, _ := l.Positions(ctx)
	assert.Empty(t, positions)
}

func TestSimulatedLedger_BuyThenSell(t *testing.T) {
	ctx := context.Background()
	l := NewSimulatedLedger(10000)
	fixed := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return fixed })

	buy := l.Submit(ctx, "AAPL", Buy, 10, 150, "entry")
	require.Equal(t, Filled, buy.Status)
	assert.Equal(t, 150.0, buy.FilledPrice)
	assert.Equal(t, 10.0, buy.FilledQuantity)
	assert.Equal(t, fixed, buy.Timestamp)
	assert.NotEmpty(t, buy.ID)

	acct, _ := l.AccountInfo(ctx)
	assert.Equal(t, 8500.0, acct.Cash)
	assert.Equal(t, 10000.0, acct.Equity)
	assert.Equal(t, 1, acct.PositionsCount)

	pos, ok, err := l.Position(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.AvgPrice)

	sell := l.Submit(ctx, "AAPL", Sell, 10, 160, "exit")
	require.Equal(t, Filled, sell.Status)

	acct, _ = l.AccountInfo(ctx)
	assert.Equal(t, 10100.0, acct.Cash)
	_, ok, _ = l.Position(ctx, "AAPL")
	assert.False(t, ok, "a fully sold position is removed")

	assert.Len(t, l.TradeHistory(), 2)
	stored, ok := l.Order(sell.ID)
	require.True(t, ok)
	assert.Equal(t, Filled, stored.Status)
}

func TestSimulatedLedger_WeightedAverageCost(t *testing.T) {
	ctx := context.Background()
	l := NewSimulatedLedger(10000)

	l.Submit(ctx, "AAPL", Buy, 10, 100, "")
	l.Submit(ctx, "AAPL", Buy, 30, 120, "")

	pos, ok, _ := l.Position(ctx, "AAPL")
	require.True(t, ok)
	assert.Equal(t, 40.0, pos.Quantity)
	assert.InDelta(t, 115.0, pos.AvgPrice, 1e-9)

	partial := l.Submit(ctx, "AAPL", Sell, 15, 130, "")
	require.Equal(t, Filled, partial.Status)
	pos, _, _ = l.Position(ctx, "AAPL")
	assert.Equal(t, 25.0, pos.Quantity)
	assert.InDelta(t, 115.0, pos.AvgPrice, 1e-9, "partial sells keep the average cost")
}

func TestSimulatedLedger_SellRejections(t *testing.T) {
	ctx := context.Background()
	l := NewSimulatedLedger(10000)

	none := l.Submit(ctx, "AAPL", Sell, 1, 100, "")
	assert.Equal(t, Rejected, none.Status)
	assert.Contains(t, none.Reason, "insufficient shares")

	l.Submit(ctx, "AAPL", Buy, 5, 100, "")
	tooMany := l.Submit(ctx, "AAPL", Sell, 6, 100, "")
	assert.Equal(t, Rejected, tooMany.Status)

	acct, _ := l.AccountInfo(ctx)
	assert.Equal(t, 9500.0, acct.Cash)
}

func TestSimulatedLedger_InvalidOrder(t *testing.T) {
	l := NewSimulatedLedger(1000)
	assert.Equal(t, Rejected, l.Submit(context.Background(), "AAPL", Buy, 0, 100, "").Status)
	assert.Equal(t, Rejected, l.Submit(context.Background(), "AAPL", Buy, 1, -1, "").Status)
}

func TestSimulatedLedger_MarkToMarket(t *testing.T) {
	ctx := context.Background()
	l := NewSimulatedLedger(10000)
	l.Submit(ctx, "AAPL", Buy, 10, 100, "")

	l.MarkToMarket(map[string]float64{"AAPL": 110, "MSFT": 50})

	pos, _, _ := l.Position(ctx, "AAPL")
	assert.Equal(t, 1100.0, pos.MarketValue)
	assert.Equal(t, 100.0, pos.UnrealizedPNL)
	acct, _ := l.AccountInfo(ctx)
	assert.Equal(t, 9000.0, acct.Cash)
	assert.Equal(t, 10100.0, acct.Equity)
}

func TestSimulatedLedger_CashNeverNegative(t *testing.T) {
	ctx := context.Background()
	l := NewSimulatedLedger(1000)
	for i := 0; i < 20; i++ {
		l.Submit(ctx, "AAPL", Buy, 3, 99.99, "")
		acct, _ := l.AccountInfo(ctx)
		require.GreaterOrEqual(t, acct.Cash, 0.0)
	}
}
