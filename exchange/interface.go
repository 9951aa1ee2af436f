package exchange

import (
	"context"
	"fmt"
	"time"
)

// OrderSide defines the order direction (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderStatus defines the order status.
type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Filled    OrderStatus = "FILLED"
	Rejected  OrderStatus = "REJECTED"
	Cancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether the status can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == Filled || s == Rejected || s == Cancelled
}

// Order is a submitted instruction. FilledPrice and FilledQuantity are zero unless Status is Filled.
type Order struct {
	ID             string      `json:"id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Quantity       float64     `json:"quantity"`
	Price          float64     `json:"price"`
	Timestamp      time.Time   `json:"timestamp"`
	Status         OrderStatus `json:"status"`
	FilledPrice    float64     `json:"filled_price,omitempty"`
	FilledQuantity float64     `json:"filled_quantity,omitempty"`
	Commission     float64     `json:"commission,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}

func (o Order) IsFilled() bool { return o.Status == Filled }

func (o Order) String() string {
	return fmt.Sprintf("%s %s %.6f %s @ %.4f [%s]", o.ID, o.Side, o.Quantity, o.Symbol, o.Price, o.Status)
}

// Position is a holding in one symbol. Quantity is negative for short positions held at a broker.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgPrice      float64   `json:"avg_price"`
	MarketValue   float64   `json:"market_value"`
	UnrealizedPNL float64   `json:"unrealized_pnl"`
	EntryTime     time.Time `json:"entry_time"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Account is a summary of the ledger's capital.
type Account struct {
	Cash           float64 `json:"cash"`
	Equity         float64 `json:"equity"`
	BuyingPower    float64 `json:"buying_power"`
	PositionsCount int     `json:"positions_count"`
}

// Ledger executes orders and tracks the resulting cash and positions.
// Submit never returns an error: execution failures are reported as a Rejected order.
type Ledger interface {
	Submit(ctx context.Context, symbol string, side OrderSide, quantity, price float64, reason string) Order
	AccountInfo(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]Position, error)
	Position(ctx context.Context, symbol string) (Position, bool, error)
	// Kind names the ledger in logs and status output.
	Kind() string
}

// Broker is an external execution venue wrapped by DelegatingLedger.
type Broker interface {
	SubmitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price float64, reason string) (Order, error)
	AccountInfo(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]Position, error)
}

// BrokerError marks a failed read from an external broker.
type BrokerError struct {
	Op  string
	Err error
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("broker %s failed: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }
