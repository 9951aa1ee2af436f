package main

import (
	"context"

	"crossbot/exchange"
	"crossbot/logs"
	"crossbot/profit"
	"crossbot/risk"
	"crossbot/strategy"
)

// TradeLogger records what the trading loop saw and did.
type TradeLogger interface {
	LogSignal(sig strategy.Signal)
	LogTrade(order exchange.Order, sig *strategy.Signal, trip *profit.RoundTrip)
	LogRiskAlert(alert risk.Alert)
	LogPositionUpdate(positions []exchange.Position)
	SaveMetrics(account exchange.Account) profit.Metrics
}

type nopLogger struct{}

func (nopLogger) LogSignal(strategy.Signal)                                   {}
func (nopLogger) LogTrade(exchange.Order, *strategy.Signal, *profit.RoundTrip) {}
func (nopLogger) LogRiskAlert(risk.Alert)                                     {}
func (nopLogger) LogPositionUpdate([]exchange.Position)                       {}
func (nopLogger) SaveMetrics(exchange.Account) profit.Metrics                 { return profit.Metrics{} }

// session is one ledger with its risk levels and realized P&L. Live trading and each backtest
// run get their own, and every order goes through execute.
type session struct {
	ledger     exchange.Ledger
	risk       *risk.Manager
	accountant *profit.Accountant
	journal    TradeLogger
	onFill     func()
}

// execute submits the order a signal implies at price and applies the fill to levels and P&L.
// held is the position before the order; it is only read for SELLs.
func (s *session) execute(ctx context.Context, sig strategy.Signal, quantity, price float64, held exchange.Position) (exchange.Order, bool) {
	side := exchange.Buy
	if sig.Kind == strategy.Sell {
		side = exchange.Sell
	}

	order := s.ledger.Submit(ctx, sig.Symbol, side, quantity, price, sig.Reason)
	if !order.IsFilled() {
		logs.Warnf("[Orchestrator] %s order for %s not filled: %s", side, sig.Symbol, order.Reason)
		s.journal.LogTrade(order, &sig, nil)
		return order, false
	}

	fillPrice := order.FilledPrice
	if fillPrice <= 0 {
		fillPrice = order.Price
	}
	fillQty := order.FilledQuantity
	if fillQty <= 0 {
		fillQty = order.Quantity
	}

	var trip *profit.RoundTrip
	if side == exchange.Buy {
		s.risk.OnEntryFill(sig.Symbol, fillPrice, risk.Long)
	} else {
		t := s.accountant.RecordExit(sig.Symbol, held.AvgPrice, fillPrice, fillQty, order.Timestamp, sig.Reason)
		trip = &t
		s.risk.OnExitFill(sig.Symbol)
		logs.Infof("[Orchestrator] Closed %s: P&L $%.2f (%.2f%%)", sig.Symbol, t.PNL, t.PNLPercent)
	}

	s.journal.LogTrade(order, &sig, trip)
	if s.onFill != nil {
		s.onFill()
	}
	return order, true
}
