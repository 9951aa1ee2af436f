package journal

import "time"

// TradeRecord is one submitted order with the signal that caused it. Exit fills carry the round trip.
type TradeRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RunID          string    `gorm:"index;size:36" json:"run_id"`
	Mode           string    `gorm:"index;size:16" json:"mode"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	Symbol         string    `gorm:"index;size:32" json:"symbol"`
	Side           string    `gorm:"size:8" json:"side"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	FilledPrice    float64   `json:"filled_price"`
	OrderID        string    `gorm:"size:64" json:"order_id"`
	Status         string    `gorm:"size:16" json:"status"`
	SignalPrice    float64   `json:"signal_price"`
	ShortSMA       float64   `json:"short_sma"`
	LongSMA        float64   `json:"long_sma"`
	Reason         string    `json:"reason"`
	ClosesPosition bool      `json:"closes_position"`
	EntryPrice     float64   `json:"entry_price"`
	PNL            float64   `json:"pnl"`
	PNLPercent     float64   `json:"pnl_pct"`
	CreatedAt      time.Time `json:"created_at"`
}

func (TradeRecord) TableName() string { return "trades" }

type SignalRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string    `gorm:"index;size:36"`
	Mode      string    `gorm:"size:16"`
	Timestamp time.Time `gorm:"index"`
	Symbol    string    `gorm:"size:32"`
	Kind      string    `gorm:"size:8"`
	Price     float64
	ShortSMA  float64
	LongSMA   float64
	Reason    string
	CreatedAt time.Time
}

func (SignalRecord) TableName() string { return "signals" }

type AlertRecord struct {
	ID           uint      `gorm:"primaryKey"`
	RunID        string    `gorm:"index;size:36"`
	Mode         string    `gorm:"size:16"`
	Timestamp    time.Time `gorm:"index"`
	Symbol       string    `gorm:"size:32"`
	Trigger      string    `gorm:"size:16"`
	CurrentPrice float64
	TriggerPrice float64
	Message      string
	CreatedAt    time.Time
}

func (AlertRecord) TableName() string { return "risk_alerts" }

// MetricsRecord is a periodic performance snapshot.
type MetricsRecord struct {
	ID            uint      `gorm:"primaryKey"`
	RunID         string    `gorm:"index;size:36"`
	Mode          string    `gorm:"size:16"`
	Timestamp     time.Time `gorm:"index"`
	Cash          float64
	Equity        float64
	OpenPositions int
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPNL      float64
	AvgPNL        float64
	SharpeRatio   float64
	MaxDrawdown   float64
	TotalReturn   float64
	Volatility    float64
	CreatedAt     time.Time
}

func (MetricsRecord) TableName() string { return "metrics" }
