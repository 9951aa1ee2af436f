package market

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crossbot/config"
	"crossbot/strategy"
	"crossbot/utils"

	binance "github.com/adshao/go-binance/v2"
)

// binanceSource reads public spot market data; no credentials are needed.
type binanceSource struct {
	client *binance.Client
}

// NewBinanceProvider builds a cached provider over Binance spot klines and tickers.
func NewBinanceProvider(cfg config.DataConfig, testnet bool) *CachingProvider {
	binance.UseTestnet = testnet
	c := binance.NewClient("", "")
	c.HTTPClient = &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second}
	return newCachingProvider(&binanceSource{client: c}, cfg)
}

func (s *binanceSource) klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]strategy.Bar, error) {
	svc := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
	if !start.IsZero() {
		svc = svc.StartTime(start.UnixMilli())
	}
	if !end.IsZero() {
		svc = svc.EndTime(end.UnixMilli())
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]strategy.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, strategy.Bar{
			Timestamp: time.UnixMilli(kl.OpenTime).UTC(),
			Open:      utils.ParseFloat(kl.Open),
			High:      utils.ParseFloat(kl.High),
			Low:       utils.ParseFloat(kl.Low),
			Close:     utils.ParseFloat(kl.Close),
			Volume:    utils.ParseFloat(kl.Volume),
		})
	}
	return out, nil
}

func (s *binanceSource) price(ctx context.Context, symbol string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p != nil && p.Symbol == symbol {
			return utils.ParseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("no ticker price for %s", symbol)
}
