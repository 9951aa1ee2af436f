package strategy

import (
	"fmt"
	"time"
)

// Bar is one OHLCV candle. Series handed to the engine are ordered by strictly increasing Timestamp.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SignalKind is the trade direction implied by a crossover.
type SignalKind string

const (
	Buy  SignalKind = "BUY"
	Sell SignalKind = "SELL"
)

// Signal is a single trading decision. ShortSMA and LongSMA are zero for exits raised by risk alerts.
type Signal struct {
	Symbol    string     `json:"symbol"`
	Kind      SignalKind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
	Price     float64    `json:"price"`
	ShortSMA  float64    `json:"short_sma"`
	LongSMA   float64    `json:"long_sma"`
	Reason    string     `json:"reason"`
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s @ %.4f (%s) %s", s.Kind, s.Symbol, s.Price, s.Timestamp.Format(time.RFC3339), s.Reason)
}

// Trend describes which average is on top at the latest bar.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendUnknown Trend = "unknown"
)

const (
	StatusReady            = "ready"
	StatusInsufficientData = "insufficient_data"
)

// MarketStatus is a point-in-time view of a symbol's averages.
type MarketStatus struct {
	Symbol         string  `json:"symbol"`
	Status         string  `json:"status"`
	Bars           int     `json:"bars"`
	RequiredBars   int     `json:"required_bars"`
	LatestPrice    float64 `json:"latest_price"`
	ShortSMA       float64 `json:"short_sma"`
	LongSMA        float64 `json:"long_sma"`
	Trend          Trend   `json:"trend"`
	SMADiffPercent float64 `json:"sma_diff_pct"`
}

// SignalStats summarizes the signals produced over a historical window.
type SignalStats struct {
	TotalSignals    int       `json:"total_signals"`
	BuySignals      int       `json:"buy_signals"`
	SellSignals     int       `json:"sell_signals"`
	FirstSignal     time.Time `json:"first_signal"`
	LastSignal      time.Time `json:"last_signal"`
	SignalFrequency float64   `json:"signal_frequency"`
}
