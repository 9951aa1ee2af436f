package exchange

import (
	"context"
	"fmt"
	"time"

	"crossbot/logs"

	"github.com/google/uuid"
)

var _ Ledger = (*DelegatingLedger)(nil)

// DelegatingLedger forwards to an external Broker and turns any submission failure into a Rejected order.
type DelegatingLedger struct {
	broker Broker
	name   string
	now    func() time.Time
}

func NewDelegatingLedger(name string, broker Broker) *DelegatingLedger {
	return &DelegatingLedger{broker: broker, name: name, now: time.Now}
}

func (l *DelegatingLedger) Kind() string { return l.name }

func (l *DelegatingLedger) Submit(ctx context.Context, symbol string, side OrderSide, quantity, price float64, reason string) (order Order) {
	defer func() {
		if r := recover(); r != nil {
			order = l.rejected(symbol, side, quantity, price, fmt.Sprintf("order failed: %v", r))
		}
	}()

	placed, err := l.broker.SubmitOrder(ctx, symbol, side, quantity, price, reason)
	if err != nil {
		return l.rejected(symbol, side, quantity, price, fmt.Sprintf("order failed: %v", err))
	}
	if placed.Reason == "" {
		placed.Reason = reason
	}
	logs.Infof("[Ledger] %s accepted %s %.6f %s: status %s", l.name, side, quantity, symbol, placed.Status)
	return placed
}

func (l *DelegatingLedger) rejected(symbol string, side OrderSide, quantity, price float64, reason string) Order {
	logs.Errorf("[Ledger] %s rejected %s %.6f %s: %s", l.name, side, quantity, symbol, reason)
	return Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: l.now(),
		Status:    Rejected,
		Reason:    reason,
	}
}

func (l *DelegatingLedger) AccountInfo(ctx context.Context) (Account, error) {
	acct, err := l.broker.AccountInfo(ctx)
	if err != nil {
		return Account{}, &BrokerError{Op: "account", Err: err}
	}
	return acct, nil
}

func (l *DelegatingLedger) Positions(ctx context.Context) ([]Position, error) {
	positions, err := l.broker.Positions(ctx)
	if err != nil {
		return nil, &BrokerError{Op: "positions", Err: err}
	}
	return positions, nil
}

func (l *DelegatingLedger) Position(ctx context.Context, symbol string) (Position, bool, error) {
	positions, err := l.Positions(ctx)
	if err != nil {
		return Position{}, false, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true, nil
		}
	}
	return Position{}, false, nil
}
