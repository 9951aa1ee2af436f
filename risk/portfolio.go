package risk

import (
	"math"

	"crossbot/exchange"
	"crossbot/utils"
)

// PositionRiskInfo describes one position against its levels at the current price.
type PositionRiskInfo struct {
	Symbol              string  `json:"symbol"`
	Quantity            float64 `json:"quantity"`
	EntryPrice          float64 `json:"entry_price"`
	CurrentPrice        float64 `json:"current_price"`
	MarketValue         float64 `json:"market_value"`
	UnrealizedPNL       float64 `json:"unrealized_pnl"`
	UnrealizedPNLPct    float64 `json:"unrealized_pnl_pct"`
	StopLoss            float64 `json:"stop_loss,omitempty"`
	TakeProfit          float64 `json:"take_profit,omitempty"`
	DistanceToStopPct   float64 `json:"distance_to_stop_pct,omitempty"`
	DistanceToTargetPct float64 `json:"distance_to_target_pct,omitempty"`
	HasLevels           bool    `json:"has_levels"`
}

// PortfolioRisk summarizes exposure across all open positions.
type PortfolioRisk struct {
	TotalExposure      float64 `json:"total_exposure"`
	ExposurePct        float64 `json:"exposure_pct"`
	PositionCount      int     `json:"position_count"`
	MaxPositions       int     `json:"max_positions"`
	LargestPositionPct float64 `json:"largest_position_pct"`
	TotalUnrealizedPNL float64 `json:"total_unrealized_pnl"`
}

// PositionRisk reports P&L and distances to stop and target, all in percent of the current price.
func (m *Manager) PositionRisk(pos exchange.Position, price float64) PositionRiskInfo {
	info := PositionRiskInfo{
		Symbol:        pos.Symbol,
		Quantity:      pos.Quantity,
		EntryPrice:    pos.AvgPrice,
		CurrentPrice:  price,
		MarketValue:   pos.Quantity * price,
		UnrealizedPNL: (price - pos.AvgPrice) * pos.Quantity,
	}
	info.UnrealizedPNLPct = utils.PercentChange(pos.AvgPrice, price) * 100
	if pos.Quantity < 0 {
		info.UnrealizedPNLPct = -info.UnrealizedPNLPct
	}

	level, ok := m.Level(pos.Symbol)
	if !ok {
		return info
	}
	info.HasLevels = true
	info.StopLoss = level.StopLoss
	info.TakeProfit = level.TakeProfit
	info.DistanceToStopPct = -utils.PercentChange(price, level.StopLoss) * 100
	info.DistanceToTargetPct = utils.PercentChange(price, level.TakeProfit) * 100
	return info
}

// PortfolioRisk uses each position's last market value, falling back to its cost basis.
func (m *Manager) PortfolioRisk(positions []exchange.Position, equity float64) PortfolioRisk {
	pr := PortfolioRisk{PositionCount: len(positions), MaxPositions: m.maxPositions}
	var largest float64
	for _, p := range positions {
		value := math.Abs(p.MarketValue)
		if value == 0 {
			value = math.Abs(p.Quantity * p.AvgPrice)
		}
		pr.TotalExposure += value
		pr.TotalUnrealizedPNL += p.UnrealizedPNL
		largest = math.Max(largest, value)
	}
	if equity > 0 {
		pr.ExposurePct = pr.TotalExposure / equity * 100
		pr.LargestPositionPct = largest / equity * 100
	}
	return pr
}
