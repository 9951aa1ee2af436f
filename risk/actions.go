// risk/actions.go
package risk

import (
	"fmt"
	"time"

	"crossbot/strategy"
)

// Trigger identifies which protective level an alert is about.
type Trigger string

const (
	TriggerStopLoss   Trigger = "STOP_LOSS"
	TriggerTakeProfit Trigger = "TAKE_PROFIT"
)

// Alert reports that a price crossed a position's stop or target.
type Alert struct {
	Symbol         string    `json:"symbol"`
	Trigger        Trigger   `json:"trigger"`
	CurrentPrice   float64   `json:"current_price"`
	TriggerPrice   float64   `json:"trigger_price"`
	Timestamp      time.Time `json:"timestamp"`
	Message        string    `json:"message"`
	ActionRequired bool      `json:"action_required"`
}

func newAlert(symbol string, trigger Trigger, price, threshold float64, dir Direction, ts time.Time) Alert {
	op := "<="
	if (trigger == TriggerStopLoss) == (dir == Short) {
		op = ">="
	}
	name := "Stop loss"
	if trigger == TriggerTakeProfit {
		name = "Take profit"
	}
	return Alert{
		Symbol:         symbol,
		Trigger:        trigger,
		CurrentPrice:   price,
		TriggerPrice:   threshold,
		Timestamp:      ts,
		Message:        fmt.Sprintf("%s triggered for %s: %.4f %s %.4f", name, symbol, price, op, threshold),
		ActionRequired: true,
	}
}

func (a Alert) Description() string {
	return fmt.Sprintf("[%s] %s", a.Trigger, a.Message)
}

// ExitSignal turns the alert into a SELL that follows the normal execution path.
func (a Alert) ExitSignal() strategy.Signal {
	return strategy.Signal{
		Symbol:    a.Symbol,
		Kind:      strategy.Sell,
		Timestamp: a.Timestamp,
		Price:     a.CurrentPrice,
		Reason:    a.Message,
	}
}
