package profit

import (
	"math"
	"sort"

	talib "github.com/markcheno/go-talib"
)

// TradingDaysPerYear annualizes per-trade returns.
const TradingDaysPerYear = 252

// Metrics summarizes closed trades against a starting balance.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPNL      float64 `json:"total_pnl"`
	AvgPNL        float64 `json:"avg_pnl_per_trade"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	TotalReturn   float64 `json:"total_return"`
	Volatility    float64 `json:"volatility"`
}

// ComputeMetrics walks the trips in close order, building an equity curve from initialBalance.
func ComputeMetrics(trips []RoundTrip, initialBalance, riskFreeRate float64) Metrics {
	m := Metrics{TotalTrades: len(trips)}
	if len(trips) == 0 || initialBalance <= 0 {
		return m
	}

	for _, t := range trips {
		m.TotalPNL += t.PNL
		switch {
		case t.PNL > 0:
			m.WinningTrades++
		case t.PNL < 0:
			m.LosingTrades++
		}
	}
	m.WinRate = float64(m.WinningTrades) / float64(len(trips))
	m.AvgPNL = m.TotalPNL / float64(len(trips))
	m.TotalReturn = m.TotalPNL / initialBalance

	if len(trips) < 2 {
		return m
	}
	curve := EquityCurve(trips, initialBalance)
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] == 0 {
			continue
		}
		returns = append(returns, (curve[i]-curve[i-1])/curve[i-1])
	}
	m.SharpeRatio = SharpeRatio(returns, riskFreeRate)
	m.MaxDrawdown = MaxDrawdown(curve)
	m.TotalReturn = (curve[len(curve)-1] - initialBalance) / initialBalance
	m.Volatility = stdDev(returns) * math.Sqrt(TradingDaysPerYear)
	return m
}

// EquityCurve returns initialBalance followed by the balance after each trip, ordered by close time.
func EquityCurve(trips []RoundTrip, initialBalance float64) []float64 {
	ordered := make([]RoundTrip, len(trips))
	copy(ordered, trips)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ClosedAt.Before(ordered[j].ClosedAt) })

	curve := make([]float64, 0, len(ordered)+1)
	curve = append(curve, initialBalance)
	balance := initialBalance
	for _, t := range ordered {
		balance += t.PNL
		curve = append(curve, balance)
	}
	return curve
}

// SharpeRatio annualizes mean excess return over its standard deviation. riskFreeRate is annual.
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	daily := riskFreeRate / TradingDaysPerYear
	excess := make([]float64, len(returns))
	var sum float64
	for i, r := range returns {
		excess[i] = r - daily
		sum += excess[i]
	}
	sd := stdDev(excess)
	if sd == 0 {
		return 0
	}
	return sum / float64(len(excess)) / sd * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown is the largest fall from a running peak, as a fraction of that peak.
func MaxDrawdown(curve []float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	peak := curve[0]
	var worst float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-v)/peak)
		}
	}
	return worst
}

// stdDev is the population standard deviation of the whole series.
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	out := talib.StdDev(values, len(values), 1)
	return out[len(out)-1]
}
