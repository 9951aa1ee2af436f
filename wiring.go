package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"crossbot/config"
	"crossbot/exchange"
	"crossbot/journal"
	"crossbot/logs"
	"crossbot/market"
	"crossbot/monitor"
	"crossbot/profit"
	"crossbot/risk"
	"crossbot/state"
	"crossbot/strategy"
)

const (
	stateFileName    = "trading_state.json"
	timeSyncInterval = 30 * time.Minute
)

// app owns everything built from the configuration and releases it on close.
type app struct {
	orchestrator *Orchestrator
	provider     *market.CachingProvider
	journal      *journal.Journal
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logs.Errorf("Failed to close journal: %v", err)
		}
	}
}

// buildApp constructs the data provider, ledger, risk manager, persistence and orchestrator.
// The Binance ledger is only built for live trading; backtests always run on a paper ledger.
func buildApp(ctx context.Context, cfg *config.Config, env *config.EnvConfig, live bool) (*app, error) {
	strat, err := strategy.NewSMAStrategy(cfg.Strategy.ShortSMA, cfg.Strategy.LongSMA, cfg.Strategy.MinBarsMargin)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}

	useBroker := live && cfg.Broker.Kind == config.BrokerBinance
	provider := market.NewBinanceProvider(cfg.Data, useBroker && cfg.Broker.Testnet)

	var ledger exchange.Ledger
	var tasks []monitor.Task
	if useBroker {
		if err := cfg.RequireBrokerCredentials(env); err != nil {
			return nil, err
		}
		client := exchange.NewAPIClient(env.ApiKey, env.ApiSecret, cfg.Symbols, cfg.Broker.QuoteAsset, cfg.Broker.Testnet, cfg.Broker.HTTPTimeoutSeconds)
		if err := client.SyncTime(ctx); err != nil {
			return nil, fmt.Errorf("failed to sync exchange time: %w", err)
		}
		ledger = exchange.NewDelegatingLedger(config.BrokerBinance, client)
		tasks = append(tasks, monitor.Task{Name: "time synchronization", Interval: timeSyncInterval, Run: client.SyncTime})
	} else {
		ledger = exchange.NewSimulatedLedger(cfg.Capital.InitialBalance)
		if live {
			logs.Warnf("<<<<<<<<<< WARNING: Running with a paper ledger >>>>>>>>>>")
		}
	}

	stateManager, err := state.NewStateManager(filepath.Join(cfg.Normal.StateDirectory, stateFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}

	j, err := journal.Open(cfg.Normal.JournalPath, cfg.Capital.InitialBalance, cfg.Metrics.RiskFreeRate)
	if err != nil {
		return nil, err
	}

	o, err := NewOrchestrator(cfg, Deps{
		Strategy:        strat,
		Provider:        provider,
		Ledger:          ledger,
		Risk:            risk.NewManager(cfg.Risk, cfg.Capital),
		Accountant:      profit.NewAccountant(),
		Journal:         j,
		BacktestJournal: j.ForRun(journal.ModeBacktest),
		State:           stateManager,
		Tasks:           tasks,
	})
	if err != nil {
		_ = j.Close()
		return nil, err
	}
	return &app{orchestrator: o, provider: provider, journal: j}, nil
}

// validateSymbols warns about symbols the data vendor does not recognise.
func (a *app) validateSymbols(ctx context.Context, symbols []string) {
	for _, s := range symbols {
		if err := a.provider.ValidateSymbol(ctx, s); err != nil {
			logs.Warnf("[Orchestrator] Symbol check failed: %v", err)
		}
	}
}
