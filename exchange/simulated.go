package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crossbot/logs"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var _ Ledger = (*SimulatedLedger)(nil)

// SimulatedLedger fills every valid order immediately at the reference price.
// Cash is kept as a decimal so repeated fills do not drift.
type SimulatedLedger struct {
	mu          sync.RWMutex
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*Position
	orders      map[string]*Order
	history     []Order
	now         func() time.Time
}

// NewSimulatedLedger creates a paper ledger holding only cash.
func NewSimulatedLedger(initialCash float64) *SimulatedLedger {
	cash := decimal.NewFromFloat(initialCash)
	return &SimulatedLedger{
		initialCash: cash,
		cash:        cash,
		positions:   make(map[string]*Position),
		orders:      make(map[string]*Order),
		history:     make([]Order, 0),
		now:         time.Now,
	}
}

// SetClock replaces the time source used to stamp orders and positions.
func (l *SimulatedLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *SimulatedLedger) Kind() string { return "paper" }

// Submit fills a BUY when cash covers quantity*price and a SELL when enough shares are held.
func (l *SimulatedLedger) Submit(_ context.Context, symbol string, side OrderSide, quantity, price float64, reason string) Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	order := &Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: l.now(),
		Status:    Pending,
		Reason:    reason,
	}
	l.orders[order.ID] = order

	switch {
	case quantity <= 0 || price <= 0:
		l.reject_noLock(order, "invalid order: quantity and price must be positive")
	case side == Buy:
		l.fillBuy_noLock(order)
	case side == Sell:
		l.fillSell_noLock(order)
	default:
		l.reject_noLock(order, fmt.Sprintf("invalid order side %q", side))
	}
	return *order
}

func (l *SimulatedLedger) fillBuy_noLock(order *Order) {
	qty := decimal.NewFromFloat(order.Quantity)
	px := decimal.NewFromFloat(order.Price)
	cost := qty.Mul(px)
	if cost.GreaterThan(l.cash) {
		l.reject_noLock(order, fmt.Sprintf("insufficient funds: need $%s, have $%s", cost.StringFixed(2), l.cash.StringFixed(2)))
		return
	}

	l.cash = l.cash.Sub(cost)
	pos, ok := l.positions[order.Symbol]
	if !ok {
		pos = &Position{Symbol: order.Symbol, EntryTime: order.Timestamp}
		l.positions[order.Symbol] = pos
	}

	// Weighted average cost across repeated buys.
	heldQty := decimal.NewFromFloat(pos.Quantity)
	heldCost := heldQty.Mul(decimal.NewFromFloat(pos.AvgPrice))
	newQty := heldQty.Add(qty)
	pos.Quantity = newQty.InexactFloat64()
	pos.AvgPrice = heldCost.Add(cost).Div(newQty).InexactFloat64()
	pos.MarketValue = newQty.Mul(px).InexactFloat64()
	pos.UnrealizedPNL = pos.MarketValue - pos.Quantity*pos.AvgPrice
	pos.UpdatedAt = order.Timestamp

	l.fill_noLock(order)
}

func (l *SimulatedLedger) fillSell_noLock(order *Order) {
	pos, ok := l.positions[order.Symbol]
	if !ok || decimal.NewFromFloat(order.Quantity).GreaterThan(decimal.NewFromFloat(pos.Quantity)) {
		held := 0.0
		if ok {
			held = pos.Quantity
		}
		l.reject_noLock(order, fmt.Sprintf("insufficient shares: want %g, hold %g", order.Quantity, held))
		return
	}

	qty := decimal.NewFromFloat(order.Quantity)
	px := decimal.NewFromFloat(order.Price)
	l.cash = l.cash.Add(qty.Mul(px))

	remaining := decimal.NewFromFloat(pos.Quantity).Sub(qty)
	if remaining.IsZero() {
		delete(l.positions, order.Symbol)
	} else {
		pos.Quantity = remaining.InexactFloat64()
		pos.MarketValue = remaining.Mul(px).InexactFloat64()
		pos.UnrealizedPNL = pos.MarketValue - pos.Quantity*pos.AvgPrice
		pos.UpdatedAt = order.Timestamp
	}

	l.fill_noLock(order)
}

func (l *SimulatedLedger) fill_noLock(order *Order) {
	order.Status = Filled
	order.FilledPrice = order.Price
	order.FilledQuantity = order.Quantity
	l.history = append(l.history, *order)
	logs.Infof("[Ledger] Filled %s %.6f %s @ %.4f, cash now $%s", order.Side, order.Quantity, order.Symbol, order.Price, l.cash.StringFixed(2))
}

func (l *SimulatedLedger) reject_noLock(order *Order, reason string) {
	order.Status = Rejected
	order.Reason = reason
	logs.Warnf("[Ledger] Rejected %s %.6f %s @ %.4f: %s", order.Side, order.Quantity, order.Symbol, order.Price, reason)
}

// AccountInfo reports cash and equity, with positions valued at their last marked price.
func (l *SimulatedLedger) AccountInfo(_ context.Context) (Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.account_noLock(), nil
}

func (l *SimulatedLedger) account_noLock() Account {
	equity := l.cash
	for _, pos := range l.positions {
		equity = equity.Add(decimal.NewFromFloat(pos.MarketValue))
	}
	cash := l.cash.InexactFloat64()
	return Account{
		Cash:           cash,
		Equity:         equity.InexactFloat64(),
		BuyingPower:    cash,
		PositionsCount: len(l.positions),
	}
}

// Positions returns a snapshot sorted by symbol.
func (l *SimulatedLedger) Positions(_ context.Context) ([]Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (l *SimulatedLedger) Position(_ context.Context, symbol string) (Position, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false, nil
	}
	return *pos, true, nil
}

// MarkToMarket revalues held positions at the given prices. Symbols without a price keep their last value.
func (l *SimulatedLedger) MarkToMarket(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for symbol, pos := range l.positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		qty := decimal.NewFromFloat(pos.Quantity)
		mv := qty.Mul(decimal.NewFromFloat(price))
		pos.MarketValue = mv.InexactFloat64()
		pos.UnrealizedPNL = mv.Sub(qty.Mul(decimal.NewFromFloat(pos.AvgPrice))).InexactFloat64()
		pos.UpdatedAt = now
	}
}

// Order looks up any submitted order by id.
func (l *SimulatedLedger) Order(id string) (Order, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// TradeHistory returns filled orders in fill order.
func (l *SimulatedLedger) TradeHistory() []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Order, len(l.history))
	copy(out, l.history)
	return out
}

func (l *SimulatedLedger) InitialCash() float64 {
	return l.initialCash.InexactFloat64()
}
