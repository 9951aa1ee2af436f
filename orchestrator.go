package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crossbot/api"
	"crossbot/config"
	"crossbot/exchange"
	"crossbot/logs"
	"crossbot/market"
	"crossbot/monitor"
	"crossbot/profit"
	"crossbot/risk"
	"crossbot/state"
	"crossbot/strategy"
	"crossbot/utils"
)

// RunState is the lifecycle of the live loop.
type RunState string

const (
	StateInit     RunState = "INIT"
	StateRunning  RunState = "RUNNING"
	StateStopping RunState = "STOPPING"
	StateStopped  RunState = "STOPPED"
)

// Deps are the collaborators an Orchestrator drives. Journal, BacktestJournal and State are optional.
type Deps struct {
	Strategy        *strategy.SMAStrategy
	Provider        market.Provider
	Ledger          exchange.Ledger
	Risk            *risk.Manager
	Accountant      *profit.Accountant
	Journal         TradeLogger
	BacktestJournal TradeLogger
	State           state.StateManagerInterface
	Tasks           []monitor.Task
}

type markable interface {
	MarkToMarket(prices map[string]float64)
}

var _ api.Snapshotter = (*Orchestrator)(nil)

type Orchestrator struct {
	cfg             *config.Config
	strategy        *strategy.SMAStrategy
	provider        market.Provider
	ledger          exchange.Ledger
	riskManager     *risk.Manager
	accountant      *profit.Accountant
	journal         TradeLogger
	backtestJournal TradeLogger
	stateManager    state.StateManagerInterface
	tasks           []monitor.Task
	live            *session

	mu          sync.RWMutex
	state       RunState
	iterations  int
	lastHandled map[string]time.Time

	barInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewOrchestrator(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Strategy == nil || deps.Provider == nil || deps.Ledger == nil || deps.Risk == nil || deps.Accountant == nil {
		return nil, errors.New("strategy, provider, ledger, risk manager and accountant are required")
	}
	interval, err := cfg.Strategy.IntervalDuration()
	if err != nil {
		return nil, fmt.Errorf("%w: strategy.data_interval: %v", config.ErrInvalidConfig, err)
	}
	o := &Orchestrator{
		cfg:             cfg,
		strategy:        deps.Strategy,
		provider:        deps.Provider,
		ledger:          deps.Ledger,
		riskManager:     deps.Risk,
		accountant:      deps.Accountant,
		journal:         deps.Journal,
		backtestJournal: deps.BacktestJournal,
		stateManager:    deps.State,
		tasks:           deps.Tasks,
		state:           StateInit,
		lastHandled:     make(map[string]time.Time),
		barInterval:     interval,
		stopCh:          make(chan struct{}),
		now:             time.Now,
	}
	if o.journal == nil {
		o.journal = nopLogger{}
	}
	if o.backtestJournal == nil {
		o.backtestJournal = nopLogger{}
	}
	o.live = &session{
		ledger:     o.ledger,
		risk:       o.riskManager,
		accountant: o.accountant,
		journal:    o.journal,
		onFill:     o.persistState,
	}
	return o, nil
}

// RunLive reconciles persisted state with the ledger and polls until Stop is called or ctx ends.
func (o *Orchestrator) RunLive(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateInit {
		o.mu.Unlock()
		return fmt.Errorf("cannot start live trading from state %s", o.state)
	}
	o.state = StateRunning
	o.mu.Unlock()

	if err := o.reconcileStateOnStartup(ctx); err != nil {
		o.setState(StateStopped)
		return fmt.Errorf("failed to reconcile state on startup: %w", err)
	}

	live := o.cfg.Live
	logs.Infof("[Orchestrator] Live trading started for %v with %s ledger, polling every %s", o.cfg.Symbols, o.ledger.Kind(), live.LoopInterval())
	loop := monitor.NewLoop(live.LoopInterval(), time.Duration(live.HeartbeatIntervalMinutes)*time.Minute, o.tasks...)
	loop.Run(ctx, o.stopCh, o.runIteration)

	o.setState(StateStopping)
	o.persistState()
	o.printFinalSummary(context.Background())
	o.setState(StateStopped)
	logs.Info("[Orchestrator] All services stopped successfully.")
	return nil
}

// Stop asks the live loop to exit after the current iteration. Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		logs.Info("[Orchestrator] Received close signal, starting graceful shutdown...")
		close(o.stopCh)
	})
	o.mu.Lock()
	if o.state == StateRunning {
		o.state = StateStopping
	}
	o.mu.Unlock()
}

func (o *Orchestrator) setState(s RunState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) State() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return string(o.state)
}

func (o *Orchestrator) Iterations() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.iterations
}

func (o *Orchestrator) runIteration(ctx context.Context, iteration int) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("[Orchestrator] Iteration %d aborted: %v", iteration, r)
		}
	}()
	o.mu.Lock()
	o.iterations = iteration
	o.mu.Unlock()

	strat := o.cfg.Strategy
	data := o.provider.LatestBars(ctx, o.cfg.Symbols, strat.DataInterval, strat.LookbackPeriods)
	prices := make(map[string]float64, len(o.cfg.Symbols))
	for _, symbol := range o.cfg.Symbols {
		bars := data[symbol]
		if len(bars) == 0 {
			logs.Warnf("[Orchestrator] No data for %s, skipping this iteration", symbol)
			continue
		}
		prices[symbol] = bars[len(bars)-1].Close

		sig, ok := o.strategy.Latest(symbol, bars)
		if !ok || !o.pendingSignal(sig) {
			continue
		}
		o.handleFreshSignal(ctx, sig)
	}

	o.checkRiskAlerts(ctx, prices)

	if m, ok := o.ledger.(markable); ok {
		m.MarkToMarket(prices)
	}
	if every := o.cfg.Live.PositionLogEvery; every > 0 && iteration%every == 0 {
		if positions, err := o.ledger.Positions(ctx); err != nil {
			logs.Errorf("[Orchestrator] Failed to read positions: %v", err)
		} else {
			o.journal.LogPositionUpdate(positions)
		}
	}
	if every := o.cfg.Live.MetricsSaveEvery; every > 0 && iteration%every == 0 {
		if account, err := o.ledger.AccountInfo(ctx); err != nil {
			logs.Errorf("[Orchestrator] Failed to read account: %v", err)
		} else {
			o.journal.SaveMetrics(account)
		}
	}
}

// pendingSignal reports whether sig is still fresh and has not been acted on. Age is measured
// from the close of the signal's bar.
func (o *Orchestrator) pendingSignal(sig strategy.Signal) bool {
	closedAt := sig.Timestamp.Add(o.barInterval)
	if age := o.now().Sub(closedAt); age >= o.cfg.Live.SignalFreshness() {
		logs.Debugf("[Orchestrator] Ignoring stale %s signal for %s from %s", sig.Kind, sig.Symbol, sig.Timestamp.Format(time.RFC3339))
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	last, ok := o.lastHandled[sig.Symbol]
	return !ok || sig.Timestamp.After(last)
}

func (o *Orchestrator) markHandled(sig strategy.Signal) {
	o.mu.Lock()
	o.lastHandled[sig.Symbol] = sig.Timestamp
	o.mu.Unlock()
}

// handleFreshSignal executes a crossover at the latest traded price. When the price or the ledger
// cannot be read the signal stays pending and is retried on the next iteration while still fresh.
func (o *Orchestrator) handleFreshSignal(ctx context.Context, sig strategy.Signal) {
	price, ok := o.provider.LatestPrice(ctx, sig.Symbol)
	if !ok {
		logs.Warnf("[Orchestrator] No latest price for %s, will retry %s signal", sig.Symbol, sig.Kind)
		return
	}
	positions, account, err := o.ledgerView(ctx)
	if err != nil {
		logs.Errorf("[Orchestrator] Failed to read ledger for %s, will retry %s signal: %v", sig.Symbol, sig.Kind, err)
		return
	}

	o.markHandled(sig)
	logs.Infof("[Orchestrator] Fresh signal: %s, latest price %.4f", sig, price)
	o.journal.LogSignal(sig)
	o.submitSignal(ctx, sig, price, positions, account)
}

func (o *Orchestrator) ledgerView(ctx context.Context) ([]exchange.Position, exchange.Account, error) {
	positions, err := o.ledger.Positions(ctx)
	if err != nil {
		return nil, exchange.Account{}, fmt.Errorf("read positions: %w", err)
	}
	account, err := o.ledger.AccountInfo(ctx)
	if err != nil {
		return nil, exchange.Account{}, fmt.Errorf("read account: %w", err)
	}
	return positions, account, nil
}

// submitSignal validates sig at price against a ledger view and submits the resulting order.
func (o *Orchestrator) submitSignal(ctx context.Context, sig strategy.Signal, price float64, positions []exchange.Position, account exchange.Account) (exchange.Order, bool) {
	priced := sig
	priced.Price = price
	verdict := o.riskManager.Validate(priced, positions, account)
	if !verdict.Accepted {
		logs.Infof("[Orchestrator] %s %s rejected by risk manager: %s", sig.Kind, sig.Symbol, verdict.Reason)
		return exchange.Order{}, false
	}

	var held exchange.Position
	for _, p := range positions {
		if p.Symbol == sig.Symbol {
			held = p
			break
		}
	}

	quantity := held.Quantity
	if sig.Kind == strategy.Buy {
		quantity = float64(o.riskManager.SizePosition(sig.Symbol, price, account.Equity))
		if quantity <= 0 {
			logs.Warnf("[Orchestrator] Position size for %s at %.4f is zero, skipping", sig.Symbol, price)
			return exchange.Order{}, false
		}
	}
	return o.live.execute(ctx, sig, quantity, price, held)
}

// checkRiskAlerts evaluates every open position's levels and routes alerts through submitSignal.
func (o *Orchestrator) checkRiskAlerts(ctx context.Context, prices map[string]float64) {
	positions, err := o.ledger.Positions(ctx)
	if err != nil {
		logs.Errorf("[Orchestrator] Failed to read positions for risk check: %v", err)
		return
	}
	for _, pos := range positions {
		price, ok := o.provider.LatestPrice(ctx, pos.Symbol)
		if ok {
			prices[pos.Symbol] = price
		} else if price, ok = prices[pos.Symbol]; !ok {
			continue
		}
		for _, alert := range o.riskManager.CheckTriggers(pos, price) {
			logs.Warnf("[Orchestrator] Risk alert: %s", alert.Description())
			o.journal.LogRiskAlert(alert)
			if !alert.ActionRequired {
				continue
			}
			exit := alert.ExitSignal()
			positions, account, err := o.ledgerView(ctx)
			if err != nil {
				logs.Errorf("[Orchestrator] Failed to read ledger for %s exit: %v", pos.Symbol, err)
				break
			}
			if _, filled := o.submitSignal(ctx, exit, exit.Price, positions, account); filled {
				break
			}
		}
	}
}

// reconcileStateOnStartup keeps persisted levels only for positions the ledger still holds
// and derives levels for held positions that have none.
func (o *Orchestrator) reconcileStateOnStartup(ctx context.Context) error {
	logs.Info("[Orchestrator] Starting state reconciliation on startup...")
	var saved state.AppState
	if o.stateManager != nil {
		saved = o.stateManager.GetFullState()
	}

	positions, err := o.ledger.Positions(ctx)
	if err != nil {
		return err
	}
	held := make(map[string]exchange.Position, len(positions))
	for _, p := range positions {
		held[p.Symbol] = p
	}

	kept := make(map[string]state.LevelState, len(saved.RiskLevels))
	for symbol, lvl := range saved.RiskLevels {
		if _, ok := held[symbol]; !ok {
			logs.Warnf("[Orchestrator] Dropping saved levels for %s: no open position", symbol)
			continue
		}
		kept[symbol] = lvl
	}
	o.riskManager.Restore(kept)

	for _, p := range positions {
		if _, ok := kept[p.Symbol]; ok || utils.FloatEquals(p.Quantity, 0) {
			continue
		}
		dir := risk.Long
		if p.Quantity < 0 {
			dir = risk.Short
		}
		logs.Warnf("[Orchestrator] Position %s has no saved levels, deriving them from average cost %.4f", p.Symbol, p.AvgPrice)
		o.riskManager.OnEntryFill(p.Symbol, p.AvgPrice, dir)
	}

	o.accountant.Restore(saved.RealizedPNL)
	o.persistState()
	logs.Infof("[Orchestrator] State reconciliation complete: %d positions, realized P&L $%.2f", len(positions), saved.RealizedPNL)
	return nil
}

func (o *Orchestrator) persistState() {
	if o.stateManager == nil {
		return
	}
	if err := o.stateManager.UpdateRiskLevels(o.riskManager.Snapshot()); err != nil {
		logs.Errorf("[Orchestrator] Failed to save risk levels: %v", err)
	}
	if err := o.stateManager.UpdateRealizedPNL(o.accountant.GetRealizedPNL()); err != nil {
		logs.Errorf("[Orchestrator] Failed to save realized P&L: %v", err)
	}
}

// PositionsSnapshot returns copies of the open positions valued at the latest prices. The ledger's
// own marks are only moved by the trading loop.
func (o *Orchestrator) PositionsSnapshot(ctx context.Context) ([]exchange.Position, error) {
	positions, err := o.ledger.Positions(ctx)
	if err != nil {
		return nil, err
	}
	for i, p := range positions {
		price, ok := o.provider.LatestPrice(ctx, p.Symbol)
		if !ok {
			continue
		}
		positions[i].MarketValue = p.Quantity * price
		positions[i].UnrealizedPNL = (price - p.AvgPrice) * p.Quantity
	}
	return positions, nil
}

func (o *Orchestrator) AccountInfo(ctx context.Context) (exchange.Account, error) {
	return o.ledger.AccountInfo(ctx)
}

func (o *Orchestrator) RiskLevels() map[string]risk.Level {
	return o.riskManager.Levels()
}

// RiskExposure values open positions at the latest prices and reports them against their levels.
func (o *Orchestrator) RiskExposure(ctx context.Context) (risk.PortfolioRisk, []risk.PositionRiskInfo, error) {
	positions, err := o.PositionsSnapshot(ctx)
	if err != nil {
		return risk.PortfolioRisk{}, nil, err
	}
	account, err := o.ledger.AccountInfo(ctx)
	if err != nil {
		return risk.PortfolioRisk{}, nil, err
	}
	infos := make([]risk.PositionRiskInfo, 0, len(positions))
	for _, p := range positions {
		price := p.AvgPrice
		if p.Quantity != 0 && p.MarketValue != 0 {
			price = p.MarketValue / p.Quantity
		}
		infos = append(infos, o.riskManager.PositionRisk(p, price))
	}
	return o.riskManager.PortfolioRisk(positions, account.Equity), infos, nil
}

// Metrics covers positions closed since this process started.
func (o *Orchestrator) Metrics() profit.Metrics {
	return profit.ComputeMetrics(o.accountant.RoundTrips(), o.cfg.Capital.InitialBalance, o.cfg.Metrics.RiskFreeRate)
}

func (o *Orchestrator) printFinalSummary(ctx context.Context) {
	logs.Info("--- Final P&L Summary ---")
	logs.Infof("Realized P&L: $%.2f", o.accountant.GetRealizedPNL())

	positions, err := o.PositionsSnapshot(ctx)
	if err != nil {
		logs.Errorf("Failed to get positions: %v", err)
	}
	var unrealized float64
	for _, p := range positions {
		unrealized += p.UnrealizedPNL
		logs.Infof("Open position: %.6f %s @ %.4f (unrealized P&L $%.2f)", p.Quantity, p.Symbol, p.AvgPrice, p.UnrealizedPNL)
	}
	if account, err := o.ledger.AccountInfo(ctx); err != nil {
		logs.Errorf("Failed to get account info: %v", err)
	} else {
		logs.Infof("Cash: $%.2f, equity: $%.2f", account.Cash, account.Equity)
		o.journal.SaveMetrics(account)
	}
	logs.Infof("Unrealized P&L: $%.2f", unrealized)
	logs.Info("--------------------")
}
