package strategy

import (
	"fmt"
	"math"

	"crossbot/logs"
	"crossbot/utils"

	talib "github.com/markcheno/go-talib"
)

// DefaultMinBarsMargin is added to the long period to get the minimum series length.
const DefaultMinBarsMargin = 5

// SMAStrategy emits BUY on a golden cross and SELL on a death cross of two simple moving averages.
// It holds no state between calls, so the same bars always produce the same signals.
type SMAStrategy struct {
	shortPeriod int
	longPeriod  int
	margin      int
}

func NewSMAStrategy(shortPeriod, longPeriod, margin int) (*SMAStrategy, error) {
	if shortPeriod < 1 || longPeriod < 1 {
		return nil, fmt.Errorf("moving average periods must be positive, got short=%d long=%d", shortPeriod, longPeriod)
	}
	if shortPeriod >= longPeriod {
		return nil, fmt.Errorf("short period (%d) must be smaller than long period (%d)", shortPeriod, longPeriod)
	}
	if margin < 0 {
		return nil, fmt.Errorf("min bars margin cannot be negative, got %d", margin)
	}
	return &SMAStrategy{shortPeriod: shortPeriod, longPeriod: longPeriod, margin: margin}, nil
}

func (s *SMAStrategy) ShortPeriod() int { return s.shortPeriod }
func (s *SMAStrategy) LongPeriod() int  { return s.longPeriod }

// MinBars is the shortest series Generate will evaluate.
func (s *SMAStrategy) MinBars() int {
	return max(s.shortPeriod, s.longPeriod) + s.margin
}

// Generate returns every crossover in bars, in bar order.
func (s *SMAStrategy) Generate(symbol string, bars []Bar) []Signal {
	if len(bars) < s.MinBars() {
		logs.Warnf("[Strategy] Insufficient data for %s: have %d bars, need %d", symbol, len(bars), s.MinBars())
		return []Signal{}
	}

	closes := closePrices(bars)
	short := movingAverage(closes, s.shortPeriod)
	long := movingAverage(closes, s.longPeriod)

	signals := make([]Signal, 0)
	for i := 1; i < len(bars); i++ {
		prev, ok := diffAt(short, long, i-1)
		if !ok {
			continue
		}
		cur, ok := diffAt(short, long, i)
		if !ok {
			continue
		}

		var sig Signal
		switch {
		case prev <= 0 && cur > 0:
			sig = s.newSignal(symbol, Buy, bars[i], short[i], long[i])
		case prev >= 0 && cur < 0:
			sig = s.newSignal(symbol, Sell, bars[i], short[i], long[i])
		default:
			continue
		}
		signals = append(signals, sig)
	}

	if len(signals) > 0 {
		logs.Debugf("[Strategy] Generated %d signals for %s", len(signals), symbol)
	}
	return signals
}

// Latest returns the most recent crossover in bars, if any.
func (s *SMAStrategy) Latest(symbol string, bars []Bar) (Signal, bool) {
	signals := s.Generate(symbol, bars)
	if len(signals) == 0 {
		return Signal{}, false
	}
	return signals[len(signals)-1], true
}

// Status reports the averages and trend at the last bar.
func (s *SMAStrategy) Status(symbol string, bars []Bar) MarketStatus {
	st := MarketStatus{
		Symbol:       symbol,
		Status:       StatusInsufficientData,
		Bars:         len(bars),
		RequiredBars: s.MinBars(),
		Trend:        TrendUnknown,
	}
	if len(bars) == 0 {
		return st
	}
	st.LatestPrice = bars[len(bars)-1].Close
	if len(bars) < s.MinBars() {
		return st
	}

	closes := closePrices(bars)
	last := len(bars) - 1
	shortSeries := movingAverage(closes, s.shortPeriod)
	longSeries := movingAverage(closes, s.longPeriod)
	st.Status = StatusReady
	d, ok := diffAt(shortSeries, longSeries, last)
	if !ok {
		return st
	}

	short, long := shortSeries[last], longSeries[last]
	st.ShortSMA = short
	st.LongSMA = long
	switch {
	case d > 0:
		st.Trend = TrendBullish
	case d < 0:
		st.Trend = TrendBearish
	}
	st.SMADiffPercent = utils.RoundToPrecision(utils.PercentChange(long, long+d)*100, 4)
	return st
}

// Summarize counts signals produced over a window of barCount bars.
func Summarize(signals []Signal, barCount int) SignalStats {
	stats := SignalStats{TotalSignals: len(signals)}
	for _, sig := range signals {
		if sig.Kind == Buy {
			stats.BuySignals++
		} else {
			stats.SellSignals++
		}
	}
	if len(signals) > 0 {
		stats.FirstSignal = signals[0].Timestamp
		stats.LastSignal = signals[len(signals)-1].Timestamp
	}
	if barCount > 0 {
		stats.SignalFrequency = float64(len(signals)) / float64(barCount)
	}
	return stats
}

func (s *SMAStrategy) newSignal(symbol string, kind SignalKind, bar Bar, short, long float64) Signal {
	var reason string
	if kind == Buy {
		reason = fmt.Sprintf("Golden Cross: %dSMA(%.2f) > %dSMA(%.2f)", s.shortPeriod, short, s.longPeriod, long)
	} else {
		reason = fmt.Sprintf("Death Cross: %dSMA(%.2f) < %dSMA(%.2f)", s.shortPeriod, short, s.longPeriod, long)
	}
	return Signal{
		Symbol:    symbol,
		Kind:      kind,
		Timestamp: bar.Timestamp,
		Price:     bar.Close,
		ShortSMA:  short,
		LongSMA:   long,
		Reason:    reason,
	}
}

func closePrices(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// diffAt returns short-long at i. A difference within rounding noise of the averages is exactly 0,
// so equal windows never count as a crossing.
func diffAt(short, long []float64, i int) (float64, bool) {
	if math.IsNaN(short[i]) || math.IsNaN(long[i]) {
		return 0, false
	}
	d := short[i] - long[i]
	if math.Abs(d) <= utils.Epsilon*math.Max(math.Abs(short[i]), math.Abs(long[i])) {
		return 0, true
	}
	return d, true
}

// movingAverage returns the trailing simple mean of each index. Indices whose window is incomplete
// or contains a non-finite close are NaN.
func movingAverage(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}

	start := 0
	for start < len(values) {
		for start < len(values) && !isFinite(values[start]) {
			start++
		}
		end := start
		for end < len(values) && isFinite(values[end]) {
			end++
		}
		if end-start >= period {
			run := talib.Sma(values[start:end], period)
			for i := period - 1; i < len(run); i++ {
				out[start+i] = run[i]
			}
		}
		start = end
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
