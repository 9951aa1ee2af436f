package profit

import (
	"sync"
	"time"
)

// RoundTrip is a closed position: the exit fill matched against the position's average cost.
type RoundTrip struct {
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PNL        float64   `json:"pnl"`
	PNLPercent float64   `json:"pnl_pct"`
	ClosedAt   time.Time `json:"closed_at"`
	Reason     string    `json:"reason"`
}

// Accountant accumulates realized profit from closed positions.
type Accountant struct {
	mu             sync.Mutex
	realizedProfit float64
	trips          []RoundTrip
}

func NewAccountant() *Accountant {
	return &Accountant{trips: make([]RoundTrip, 0)}
}

// RecordExit books a sale of quantity at exitPrice against entryPrice, the average cost at the time of sale.
func (a *Accountant) RecordExit(symbol string, entryPrice, exitPrice, quantity float64, closedAt time.Time, reason string) RoundTrip {
	trip := RoundTrip{
		Symbol:     symbol,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		PNL:        (exitPrice - entryPrice) * quantity,
		ClosedAt:   closedAt,
		Reason:     reason,
	}
	if entryPrice != 0 {
		trip.PNLPercent = (exitPrice - entryPrice) / entryPrice * 100
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.trips = append(a.trips, trip)
	a.realizedProfit += trip.PNL
	return trip
}

// Restore recovers realized profit from persistent state.
func (a *Accountant) Restore(realizedProfit float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.realizedProfit = realizedProfit
}

// GetRealizedPNL returns cumulative realized profit.
func (a *Accountant) GetRealizedPNL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedProfit
}

// RoundTrips returns the trips booked by this process, oldest first.
func (a *Accountant) RoundTrips() []RoundTrip {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RoundTrip, len(a.trips))
	copy(out, a.trips)
	return out
}
