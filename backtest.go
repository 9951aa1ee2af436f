package main

import (
	"context"
	"fmt"
	"time"

	"crossbot/exchange"
	"crossbot/logs"
	"crossbot/profit"
	"crossbot/risk"
	"crossbot/strategy"
)

// BacktestResult is the outcome of replaying historical signals through a fresh paper ledger.
type BacktestResult struct {
	Start          time.Time               `json:"start"`
	End            time.Time               `json:"end"`
	Trades         []exchange.Order        `json:"trades"`
	RoundTrips     []profit.RoundTrip      `json:"round_trips"`
	FinalAccount   exchange.Account        `json:"final_account"`
	OpenPositions  []exchange.Position     `json:"open_positions"`
	Metrics        profit.Metrics          `json:"metrics"`
	SignalStats    strategy.SignalStats    `json:"signal_stats"`
	SkippedSymbols []string                `json:"skipped_symbols,omitempty"`
	Status         []strategy.MarketStatus `json:"status"`
}

// RunBacktest replays each symbol's crossovers over [start, end) in order. A BUY is taken only when
// the symbol is flat and a SELL only when it is held; protective levels are tracked but not triggered.
func (o *Orchestrator) RunBacktest(ctx context.Context, start, end time.Time) (BacktestResult, error) {
	if !end.After(start) {
		return BacktestResult{}, fmt.Errorf("backtest end %s must be after start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	logs.Infof("[Backtest] Running %v from %s to %s", o.cfg.Symbols, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var clock time.Time
	now := func() time.Time { return clock }
	ledger := exchange.NewSimulatedLedger(o.cfg.Capital.InitialBalance)
	ledger.SetClock(now)
	rm := risk.NewManager(o.cfg.Risk, o.cfg.Capital)
	rm.SetClock(now)
	sess := &session{
		ledger:     ledger,
		risk:       rm,
		accountant: profit.NewAccountant(),
		journal:    o.backtestJournal,
	}

	result := BacktestResult{Start: start, End: end}
	var allSignals []strategy.Signal
	totalBars := 0
	lastPrices := make(map[string]float64, len(o.cfg.Symbols))

	for _, symbol := range o.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		bars, err := o.provider.HistoricalBars(ctx, symbol, o.cfg.Strategy.DataInterval, start, end)
		if err != nil {
			logs.Errorf("[Backtest] Skipping %s: %v", symbol, err)
			result.SkippedSymbols = append(result.SkippedSymbols, symbol)
			continue
		}
		totalBars += len(bars)
		result.Status = append(result.Status, o.strategy.Status(symbol, bars))
		if len(bars) > 0 {
			lastPrices[symbol] = bars[len(bars)-1].Close
		}

		signals := o.strategy.Generate(symbol, bars)
		allSignals = append(allSignals, signals...)
		logs.Infof("[Backtest] %s: %d bars, %d signals", symbol, len(bars), len(signals))

		for _, sig := range signals {
			clock = sig.Timestamp
			o.replaySignal(ctx, sess, sig)
		}
	}

	ledger.MarkToMarket(lastPrices)
	result.Trades = ledger.TradeHistory()
	result.RoundTrips = sess.accountant.RoundTrips()
	result.FinalAccount, _ = ledger.AccountInfo(ctx)
	result.OpenPositions, _ = ledger.Positions(ctx)
	result.Metrics = profit.ComputeMetrics(result.RoundTrips, o.cfg.Capital.InitialBalance, o.cfg.Metrics.RiskFreeRate)
	result.SignalStats = strategy.Summarize(allSignals, totalBars)
	sess.journal.SaveMetrics(result.FinalAccount)

	logs.Infof("[Backtest] Complete: %d trades, %d round trips, final equity $%.2f, total P&L $%.2f",
		len(result.Trades), len(result.RoundTrips), result.FinalAccount.Equity, result.Metrics.TotalPNL)
	return result, nil
}

func (o *Orchestrator) replaySignal(ctx context.Context, sess *session, sig strategy.Signal) {
	held, open, err := sess.ledger.Position(ctx, sig.Symbol)
	if err != nil {
		logs.Errorf("[Backtest] Failed to read position for %s: %v", sig.Symbol, err)
		return
	}

	var quantity float64
	switch sig.Kind {
	case strategy.Buy:
		if open {
			return
		}
		account, err := sess.ledger.AccountInfo(ctx)
		if err != nil {
			return
		}
		quantity = float64(sess.risk.SizePosition(sig.Symbol, sig.Price, account.Equity))
		if quantity <= 0 {
			logs.Debugf("[Backtest] Position size for %s at %.4f is zero, skipping", sig.Symbol, sig.Price)
			return
		}
	case strategy.Sell:
		if !open {
			return
		}
		quantity = held.Quantity
	default:
		return
	}

	sess.journal.LogSignal(sig)
	sess.execute(ctx, sig, quantity, sig.Price, held)
}
