// risk/manager.go
package risk

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"crossbot/config"
	"crossbot/exchange"
	"crossbot/logs"
	"crossbot/state"
	"crossbot/strategy"

	"github.com/shopspring/decimal"
)

// Direction is the side of the position a Level protects.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Level is the stop-loss and take-profit pair attached to an open position.
type Level struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	CreatedAt  time.Time `json:"created_at"`
}

// Verdict is the outcome of validating a signal. Reason is set only when the signal is rejected.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(format string, args ...interface{}) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Manager sizes positions, vets signals and keeps protective levels for open positions.
// Levels are read by the status server concurrently with the trading loop.
type Manager struct {
	mu sync.RWMutex

	stopLossPct     decimal.Decimal
	takeProfitPct   decimal.Decimal
	positionSizePct decimal.Decimal
	fixedAmount     decimal.Decimal
	sizingMode      string
	maxPositions    int

	levels map[string]Level
	now    func() time.Time
}

func NewManager(riskCfg config.RiskConfig, capital config.CapitalConfig) *Manager {
	return &Manager{
		stopLossPct:     decimal.NewFromFloat(riskCfg.StopLossPct),
		takeProfitPct:   decimal.NewFromFloat(riskCfg.TakeProfitPct),
		positionSizePct: decimal.NewFromFloat(riskCfg.PositionSizePct),
		fixedAmount:     decimal.NewFromFloat(capital.FixedDollarAmount),
		sizingMode:      capital.PositionSizeType,
		maxPositions:    riskCfg.MaxPositions,
		levels:          make(map[string]Level),
		now:             time.Now,
	}
}

// SetClock replaces the time source used for level and alert timestamps.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) MaxPositions() int { return m.maxPositions }

// SizePosition returns the whole number of shares to buy at price.
func (m *Manager) SizePosition(symbol string, price, equity float64) int {
	if price <= 0 {
		return 0
	}
	px := decimal.NewFromFloat(price)

	value := m.fixedAmount
	if m.sizingMode != config.SizingFixed {
		value = decimal.NewFromFloat(equity).Mul(m.positionSizePct)
	}
	if value.Sign() <= 0 {
		return 0
	}

	shares := value.Div(px).Floor().IntPart()
	if shares == 0 && value.GreaterThanOrEqual(px) {
		shares = 1
	}
	logs.Debugf("[Risk] Position size for %s: %d shares ($%s at %.4f)", symbol, shares, value.StringFixed(2), price)
	return int(shares)
}

// Validate applies the entry and exit rules to a signal given the ledger's current holdings.
func (m *Manager) Validate(sig strategy.Signal, positions []exchange.Position, account exchange.Account) Verdict {
	switch sig.Kind {
	case strategy.Buy:
		longs := 0
		for _, p := range positions {
			if p.Quantity <= 0 {
				continue
			}
			if p.Symbol == sig.Symbol {
				return reject("already have long position in %s", sig.Symbol)
			}
			longs++
		}
		if longs >= m.maxPositions {
			return reject("maximum positions limit reached (%d)", m.maxPositions)
		}

		qty := m.SizePosition(sig.Symbol, sig.Price, account.Equity)
		required := decimal.NewFromInt(int64(qty)).Mul(decimal.NewFromFloat(sig.Price))
		cash := decimal.NewFromFloat(account.Cash)
		if required.GreaterThan(cash) {
			return reject("insufficient capital: need $%s, have $%s", required.StringFixed(2), cash.StringFixed(2))
		}
		return accept()

	case strategy.Sell:
		for _, p := range positions {
			if p.Symbol == sig.Symbol && p.Quantity > 0 {
				return accept()
			}
		}
		return reject("no position to sell in %s", sig.Symbol)
	}
	return reject("unknown signal kind %q", sig.Kind)
}

// OnEntryFill records the protective levels for a newly opened position.
func (m *Manager) OnEntryFill(symbol string, entryPrice float64, dir Direction) Level {
	entry := decimal.NewFromFloat(entryPrice)
	one := decimal.NewFromInt(1)

	level := Level{Symbol: symbol, Direction: dir, EntryPrice: entryPrice}
	if dir == Short {
		level.StopLoss = entry.Mul(one.Add(m.stopLossPct)).InexactFloat64()
		level.TakeProfit = entry.Mul(one.Sub(m.takeProfitPct)).InexactFloat64()
	} else {
		level.Direction = Long
		level.StopLoss = entry.Mul(one.Sub(m.stopLossPct)).InexactFloat64()
		level.TakeProfit = entry.Mul(one.Add(m.takeProfitPct)).InexactFloat64()
	}

	m.mu.Lock()
	level.CreatedAt = m.now()
	m.levels[symbol] = level
	m.mu.Unlock()

	logs.Infof("[Risk] Levels for %s: entry %.4f, stop %.4f, target %.4f", symbol, entryPrice, level.StopLoss, level.TakeProfit)
	return level
}

// OnExitFill drops the levels of a closed position.
func (m *Manager) OnExitFill(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.levels[symbol]; ok {
		delete(m.levels, symbol)
		logs.Infof("[Risk] Cleared levels for %s", symbol)
	}
}

func (m *Manager) Level(symbol string) (Level, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.levels[symbol]
	return l, ok
}

// Levels returns a copy of all tracked levels.
func (m *Manager) Levels() map[string]Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Level, len(m.levels))
	for k, v := range m.levels {
		out[k] = v
	}
	return out
}

// CheckTriggers compares price with the position's levels. Both alerts are returned when both thresholds are crossed.
func (m *Manager) CheckTriggers(pos exchange.Position, price float64) []Alert {
	level, ok := m.Level(pos.Symbol)
	if !ok || pos.Quantity == 0 {
		return nil
	}

	m.mu.RLock()
	now := m.now()
	m.mu.RUnlock()

	px := decimal.NewFromFloat(price)
	stop := decimal.NewFromFloat(level.StopLoss)
	target := decimal.NewFromFloat(level.TakeProfit)

	var stopHit, targetHit bool
	if level.Direction == Short {
		stopHit = px.GreaterThanOrEqual(stop)
		targetHit = px.LessThanOrEqual(target)
	} else {
		stopHit = px.LessThanOrEqual(stop)
		targetHit = px.GreaterThanOrEqual(target)
	}

	alerts := make([]Alert, 0, 2)
	if stopHit {
		alerts = append(alerts, newAlert(pos.Symbol, TriggerStopLoss, price, level.StopLoss, level.Direction, now))
	}
	if targetHit {
		alerts = append(alerts, newAlert(pos.Symbol, TriggerTakeProfit, price, level.TakeProfit, level.Direction, now))
	}
	return alerts
}

// Snapshot converts the levels into their persisted form.
func (m *Manager) Snapshot() map[string]state.LevelState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]state.LevelState, len(m.levels))
	for symbol, l := range m.levels {
		out[symbol] = state.LevelState{
			Direction:  string(l.Direction),
			EntryPrice: l.EntryPrice,
			StopLoss:   l.StopLoss,
			TakeProfit: l.TakeProfit,
			CreatedAt:  l.CreatedAt,
		}
	}
	return out
}

// Restore replaces all levels with previously persisted ones.
func (m *Manager) Restore(levels map[string]state.LevelState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = make(map[string]Level, len(levels))
	for symbol, l := range levels {
		m.levels[symbol] = Level{
			Symbol:     symbol,
			Direction:  Direction(l.Direction),
			EntryPrice: l.EntryPrice,
			StopLoss:   l.StopLoss,
			TakeProfit: l.TakeProfit,
			CreatedAt:  l.CreatedAt,
		}
	}
}

// Symbols lists symbols with levels, sorted.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.levels))
	for s := range m.levels {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
