package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crossbot/exchange"
	"crossbot/logs"
	"crossbot/profit"
	"crossbot/risk"
	"crossbot/strategy"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	ModeLive     = "live"
	ModeBacktest = "backtest"
)

// Journal records signals, trades, alerts and metrics snapshots to SQLite.
// Write failures are logged and never returned to the trading path.
type Journal struct {
	db             *gorm.DB
	mode           string
	runID          string
	initialBalance float64
	riskFreeRate   float64
	now            func() time.Time
}

// Open creates or migrates the database at path and starts a live run.
func Open(path string, initialBalance, riskFreeRate float64) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("journal: create directory %s: %w", dir, err)
		}
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&TradeRecord{}, &SignalRecord{}, &AlertRecord{}, &MetricsRecord{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return &Journal{
		db:             db,
		mode:           ModeLive,
		runID:          uuid.NewString(),
		initialBalance: initialBalance,
		riskFreeRate:   riskFreeRate,
		now:            time.Now,
	}, nil
}

// ForRun returns a journal sharing the database, tagged with a new run id.
func (j *Journal) ForRun(mode string) *Journal {
	cp := *j
	cp.mode = mode
	cp.runID = uuid.NewString()
	return &cp
}

func (j *Journal) RunID() string { return j.runID }
func (j *Journal) Mode() string  { return j.mode }

// Close releases the database. Journals derived with ForRun share it.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) LogSignal(sig strategy.Signal) {
	logs.WithFields(logs.Fields{
		"symbol":    sig.Symbol,
		"signal":    sig.Kind,
		"price":     sig.Price,
		"short_sma": sig.ShortSMA,
		"long_sma":  sig.LongSMA,
	}).Infof("[Journal] SIGNAL: %s", sig.Reason)

	rec := SignalRecord{
		RunID:     j.runID,
		Mode:      j.mode,
		Timestamp: sig.Timestamp,
		Symbol:    sig.Symbol,
		Kind:      string(sig.Kind),
		Price:     sig.Price,
		ShortSMA:  sig.ShortSMA,
		LongSMA:   sig.LongSMA,
		Reason:    sig.Reason,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		logs.Errorf("[Journal] Failed to store signal for %s: %v", sig.Symbol, err)
	}
}

// LogTrade records an order. sig and trip may be nil; trip is set when the fill closed a position.
func (j *Journal) LogTrade(order exchange.Order, sig *strategy.Signal, trip *profit.RoundTrip) {
	rec := TradeRecord{
		RunID:       j.runID,
		Mode:        j.mode,
		Timestamp:   order.Timestamp,
		Symbol:      order.Symbol,
		Side:        string(order.Side),
		Quantity:    order.Quantity,
		Price:       order.Price,
		FilledPrice: order.FilledPrice,
		OrderID:     order.ID,
		Status:      string(order.Status),
		Reason:      order.Reason,
	}
	if sig != nil {
		rec.SignalPrice = sig.Price
		rec.ShortSMA = sig.ShortSMA
		rec.LongSMA = sig.LongSMA
		if rec.Reason == "" {
			rec.Reason = sig.Reason
		}
	}
	fields := logs.Fields{
		"symbol":   order.Symbol,
		"side":     order.Side,
		"quantity": order.Quantity,
		"price":    order.Price,
		"status":   order.Status,
		"order_id": order.ID,
	}
	if trip != nil {
		rec.ClosesPosition = true
		rec.EntryPrice = trip.EntryPrice
		rec.PNL = trip.PNL
		rec.PNLPercent = trip.PNLPercent
		fields["pnl"] = trip.PNL
	}
	logs.WithFields(fields).Infof("[Journal] TRADE: %s %s", order.Side, order.Symbol)

	if err := j.db.Create(&rec).Error; err != nil {
		logs.Errorf("[Journal] Failed to store trade %s: %v", order.ID, err)
	}
}

func (j *Journal) LogRiskAlert(alert risk.Alert) {
	logs.WithFields(logs.Fields{
		"symbol":        alert.Symbol,
		"trigger":       alert.Trigger,
		"current_price": alert.CurrentPrice,
		"trigger_price": alert.TriggerPrice,
	}).Warnf("[Journal] RISK ALERT: %s", alert.Message)

	rec := AlertRecord{
		RunID:        j.runID,
		Mode:         j.mode,
		Timestamp:    alert.Timestamp,
		Symbol:       alert.Symbol,
		Trigger:      string(alert.Trigger),
		CurrentPrice: alert.CurrentPrice,
		TriggerPrice: alert.TriggerPrice,
		Message:      alert.Message,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		logs.Errorf("[Journal] Failed to store risk alert for %s: %v", alert.Symbol, err)
	}
}

// LogPositionUpdate writes one structured line per open position.
func (j *Journal) LogPositionUpdate(positions []exchange.Position) {
	if len(positions) == 0 {
		logs.Infof("[Journal] No open positions")
		return
	}
	for _, p := range positions {
		logs.WithFields(logs.Fields{
			"symbol":         p.Symbol,
			"quantity":       p.Quantity,
			"avg_price":      p.AvgPrice,
			"market_value":   p.MarketValue,
			"unrealized_pnl": p.UnrealizedPNL,
		}).Infof("[Journal] POSITION: %s", p.Symbol)
	}
}

// SaveMetrics computes metrics over this run's round trips and stores them with the account state.
func (j *Journal) SaveMetrics(account exchange.Account) profit.Metrics {
	trips, err := j.RoundTrips()
	if err != nil {
		logs.Errorf("[Journal] Failed to load round trips: %v", err)
	}
	m := profit.ComputeMetrics(trips, j.initialBalance, j.riskFreeRate)
	rec := MetricsRecord{
		RunID:         j.runID,
		Mode:          j.mode,
		Timestamp:     j.now(),
		Cash:          account.Cash,
		Equity:        account.Equity,
		OpenPositions: account.PositionsCount,
		TotalTrades:   m.TotalTrades,
		WinningTrades: m.WinningTrades,
		LosingTrades:  m.LosingTrades,
		WinRate:       m.WinRate,
		TotalPNL:      m.TotalPNL,
		AvgPNL:        m.AvgPNL,
		SharpeRatio:   m.SharpeRatio,
		MaxDrawdown:   m.MaxDrawdown,
		TotalReturn:   m.TotalReturn,
		Volatility:    m.Volatility,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		logs.Errorf("[Journal] Failed to store metrics: %v", err)
	}
	logs.Infof("[Journal] Metrics saved: trades=%d win_rate=%.2f total_pnl=%.2f sharpe=%.2f max_dd=%.2f%%",
		m.TotalTrades, m.WinRate, m.TotalPNL, m.SharpeRatio, m.MaxDrawdown*100)
	return m
}

// Trades returns this run's orders, oldest first.
func (j *Journal) Trades() ([]TradeRecord, error) {
	var recs []TradeRecord
	err := j.db.Where("run_id = ?", j.runID).Order("timestamp, id").Find(&recs).Error
	return recs, err
}

// RoundTrips returns the positions closed during this run.
func (j *Journal) RoundTrips() ([]profit.RoundTrip, error) {
	return j.roundTrips(j.db.Where("run_id = ?", j.runID))
}

// ModeRoundTrips returns the positions closed by every run of this journal's mode.
func (j *Journal) ModeRoundTrips() ([]profit.RoundTrip, error) {
	return j.roundTrips(j.db.Where("mode = ?", j.mode))
}

// LatestMetrics returns the most recent snapshot of this run, if any.
func (j *Journal) LatestMetrics() (MetricsRecord, bool, error) {
	var recs []MetricsRecord
	err := j.db.Where("run_id = ?", j.runID).Order("id desc").Limit(1).Find(&recs).Error
	if err != nil || len(recs) == 0 {
		return MetricsRecord{}, false, err
	}
	return recs[0], true, nil
}

func (j *Journal) roundTrips(scope *gorm.DB) ([]profit.RoundTrip, error) {
	var recs []TradeRecord
	err := scope.Where("closes_position = ? AND status = ?", true, string(exchange.Filled)).
		Order("timestamp, id").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	trips := make([]profit.RoundTrip, 0, len(recs))
	for _, r := range recs {
		trips = append(trips, profit.RoundTrip{
			Symbol:     r.Symbol,
			Quantity:   r.Quantity,
			EntryPrice: r.EntryPrice,
			ExitPrice:  r.FilledPrice,
			PNL:        r.PNL,
			PNLPercent: r.PNLPercent,
			ClosedAt:   r.Timestamp,
			Reason:     r.Reason,
		})
	}
	return trips, nil
}
