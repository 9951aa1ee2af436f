package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) SubmitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price float64, reason string) (Order, error) {
	args := m.Called(ctx, symbol, side, quantity, price, reason)
	return args.Get(0).(Order), args.Error(1)
}

func (m *mockBroker) AccountInfo(ctx context.Context) (Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(Account), args.Error(1)
}

func (m *mockBroker) Positions(ctx context.Context) ([]Position, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Position), args.Error(1)
}

type panickingBroker struct{ mockBroker }

func (p *panickingBroker) SubmitOrder(context.Context, string, OrderSide, float64, float64, string) (Order, error) {
	panic("connection reset")
}

func TestDelegatingLedger_PassesThroughFill(t *testing.T) {
	ctx := context.Background()
	broker := new(mockBroker)
	broker.On("SubmitOrder", ctx, "BTCUSDT", Buy, 0.5, 40000.0, "golden").
		Return(Order{ID: "abc", Symbol: "BTCUSDT", Side: Buy, Quantity: 0.5, Status: Filled, FilledPrice: 40010, FilledQuantity: 0.5}, nil)

	l := NewDelegatingLedger("binance", broker)
	order := l.Submit(ctx, "BTCUSDT", Buy, 0.5, 40000, "golden")

	assert.Equal(t, Filled, order.Status)
	assert.Equal(t, 40010.0, order.FilledPrice)
	assert.Equal(t, "golden", order.Reason)
	broker.AssertExpectations(t)
}

func TestDelegatingLedger_ErrorBecomesRejectedOrder(t *testing.T) {
	ctx := context.Background()
	broker := new(mockBroker)
	broker.On("SubmitOrder", ctx, "BTCUSDT", Sell, 1.0, 100.0, "exit").Return(Order{}, errors.New("timeout"))

	order := NewDelegatingLedger("binance", broker).Submit(ctx, "BTCUSDT", Sell, 1, 100, "exit")
	assert.Equal(t, Rejected, order.Status)
	assert.Equal(t, "order failed: timeout", order.Reason)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, 1.0, order.Quantity)
}

func TestDelegatingLedger_PanicBecomesRejectedOrder(t *testing.T) {
	order := NewDelegatingLedger("binance", &panickingBroker{}).Submit(context.Background(), "ETHUSDT", Buy, 1, 10, "")
	assert.Equal(t, Rejected, order.Status)
	assert.Contains(t, order.Reason, "connection reset")
}

func TestDelegatingLedger_ReadFailuresAreBrokerErrors(t *testing.T) {
	ctx := context.Background()
	broker := new(mockBroker)
	cause := errors.New("503")
	broker.On("AccountInfo", ctx).Return(Account{}, cause)
	broker.On("Positions", ctx).Return([]Position(nil), cause)

	l := NewDelegatingLedger("binance", broker)
	_, err := l.AccountInfo(ctx)
	var be *BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "account", be.Op)
	assert.ErrorIs(t, err, cause)

	_, _, err = l.Position(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, cause)
}

func TestDelegatingLedger_PositionLookup(t *testing.T) {
	ctx := context.Background()
	broker := new(mockBroker)
	broker.On("Positions", ctx).Return([]Position{{Symbol: "BTCUSDT", Quantity: 0.1, AvgPrice: 30000}}, nil)

	l := NewDelegatingLedger("binance", broker)
	pos, ok, err := l.Position(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30000.0, pos.AvgPrice)

	_, ok, err = l.Position(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}
