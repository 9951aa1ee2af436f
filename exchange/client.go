// exchange/client.go
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"crossbot/logs"
	"crossbot/utils"

	binance "github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
)

var _ Broker = (*APIClient)(nil)

// SymbolInfo holds the trading rules needed to size market orders.
type SymbolInfo struct {
	Symbol     string
	Status     string
	BaseAsset  string
	QuoteAsset string
	StepSize   float64
	MinQty     float64
}

// APIClient is a Binance spot broker. Positions are the base-asset balances of the tracked symbols,
// with average cost rebuilt from the account's trade list.
type APIClient struct {
	client          *binance.Client
	symbols         []string
	quoteAsset      string
	timeOffset      int64
	symbolInfoCache map[string]SymbolInfo
	symbolInfoMutex sync.RWMutex
}

// NewAPIClient creates a spot client for the given symbols. testnet must be decided before any client is built.
func NewAPIClient(apiKey, apiSecret string, symbols []string, quoteAsset string, testnet bool, timeoutSeconds int) *APIClient {
	binance.UseTestnet = testnet
	c := binance.NewClient(apiKey, apiSecret)
	c.HTTPClient = &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
	return &APIClient{
		client:          c,
		symbols:         append([]string(nil), symbols...),
		quoteAsset:      strings.ToUpper(quoteAsset),
		symbolInfoCache: make(map[string]SymbolInfo),
	}
}

// SyncTime aligns request timestamps with the server and refreshes the symbol rule cache.
func (c *APIClient) SyncTime(ctx context.Context) error {
	offset, err := c.client.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return fmt.Errorf("unable to sync Binance server time: %w", err)
	}
	c.timeOffset = offset
	logs.Infof("[API Client] Time synchronization completed, offset: %d ms", offset)

	if err := c.fetchExchangeInfo(ctx); err != nil {
		logs.Warnf("[API Client] Failed to fetch and cache exchange trading rules: %v", err)
	}
	return nil
}

func (c *APIClient) fetchExchangeInfo(ctx context.Context) error {
	info, err := c.client.NewExchangeInfoService().Symbols(c.symbols...).Do(ctx)
	if err != nil {
		return err
	}
	c.symbolInfoMutex.Lock()
	defer c.symbolInfoMutex.Unlock()
	for _, s := range info.Symbols {
		si := SymbolInfo{
			Symbol:     s.Symbol,
			Status:     s.Status,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}
		for _, filter := range s.Filters {
			if filterType, ok := filter["filterType"].(string); ok && filterType == "LOT_SIZE" {
				if step, ok := filter["stepSize"].(string); ok {
					si.StepSize = utils.ParseFloat(step)
				}
				if minQty, ok := filter["minQty"].(string); ok {
					si.MinQty = utils.ParseFloat(minQty)
				}
			}
		}
		c.symbolInfoCache[s.Symbol] = si
	}
	logs.Infof("[API Client] Cached trading rules for %d symbols", len(info.Symbols))
	return nil
}

// GetSymbolInfo returns cached trading rules.
func (c *APIClient) GetSymbolInfo(symbol string) (SymbolInfo, bool) {
	c.symbolInfoMutex.RLock()
	defer c.symbolInfoMutex.RUnlock()
	info, ok := c.symbolInfoCache[symbol]
	return info, ok
}

// SubmitOrder places a market order, rounding the quantity down to the symbol's step size.
func (c *APIClient) SubmitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price float64, reason string) (Order, error) {
	precision := 8
	if info, ok := c.GetSymbolInfo(symbol); ok && info.StepSize > 0 {
		quantity = utils.FloorToStep(quantity, info.StepSize)
		precision = utils.StepPrecision(info.StepSize)
		if quantity < info.MinQty {
			return Order{}, fmt.Errorf("quantity %.8f below minimum %.8f for %s", quantity, info.MinQty, symbol)
		}
	}
	if quantity <= 0 {
		return Order{}, fmt.Errorf("adjusted order quantity for %s is %.8f, must be greater than 0", symbol, quantity)
	}

	clientID := uuid.NewString()
	res, err := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', precision, 64)).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:        clientID,
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: time.UnixMilli(res.TransactTime),
		Status:    mapOrderStatus(res.Status),
		Reason:    reason,
	}
	for _, f := range res.Fills {
		order.Commission += utils.ParseFloat(f.Commission)
	}
	if order.Status == Filled {
		order.FilledQuantity = utils.ParseFloat(res.ExecutedQuantity)
		if order.FilledQuantity > 0 {
			order.FilledPrice = utils.ParseFloat(res.CummulativeQuoteQuantity) / order.FilledQuantity
		}
	}
	return order, nil
}

func mapOrderStatus(s binance.OrderStatusType) OrderStatus {
	switch s {
	case binance.OrderStatusTypeFilled:
		return Filled
	case binance.OrderStatusTypeRejected:
		return Rejected
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return Cancelled
	default:
		return Pending
	}
}

// AccountInfo values the quote balance as cash and held base assets at their latest price.
func (c *APIClient) AccountInfo(ctx context.Context) (Account, error) {
	acct, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return Account{}, err
	}
	positions, err := c.positionsFromBalances(ctx, acct.Balances)
	if err != nil {
		return Account{}, err
	}

	var cash float64
	for _, b := range acct.Balances {
		if b.Asset == c.quoteAsset {
			cash = utils.ParseFloat(b.Free)
		}
	}
	equity := cash
	for _, p := range positions {
		equity += p.MarketValue
	}
	return Account{Cash: cash, Equity: equity, BuyingPower: cash, PositionsCount: len(positions)}, nil
}

func (c *APIClient) Positions(ctx context.Context) ([]Position, error) {
	acct, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, err
	}
	return c.positionsFromBalances(ctx, acct.Balances)
}

func (c *APIClient) positionsFromBalances(ctx context.Context, balances []binance.Balance) ([]Position, error) {
	held := make(map[string]float64, len(balances))
	for _, b := range balances {
		held[b.Asset] = utils.ParseFloat(b.Free) + utils.ParseFloat(b.Locked)
	}

	positions := make([]Position, 0)
	for _, symbol := range c.symbols {
		base := strings.TrimSuffix(symbol, c.quoteAsset)
		minQty := 0.0
		if info, ok := c.GetSymbolInfo(symbol); ok {
			base = info.BaseAsset
			minQty = info.MinQty
		}
		qty := held[base]
		if qty <= 0 || qty < minQty {
			continue
		}

		price, err := c.latestPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		avg, entry, err := c.averageCost(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if avg <= 0 {
			avg = price
		}
		positions = append(positions, Position{
			Symbol:        symbol,
			Quantity:      qty,
			AvgPrice:      avg,
			MarketValue:   qty * price,
			UnrealizedPNL: qty * (price - avg),
			EntryTime:     entry,
			UpdatedAt:     time.Now(),
		})
	}
	return positions, nil
}

func (c *APIClient) latestPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return utils.ParseFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("no price returned for %s", symbol)
}

// averageCost replays recent fills with the weighted average cost method.
func (c *APIClient) averageCost(ctx context.Context, symbol string) (float64, time.Time, error) {
	trades, err := c.client.NewListTradesService().Symbol(symbol).Limit(1000).Do(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Time < trades[j].Time })

	var qty, avg float64
	var entry time.Time
	for _, t := range trades {
		tq := utils.ParseFloat(t.Quantity)
		tp := utils.ParseFloat(t.Price)
		if t.IsBuyer {
			if qty <= 0 {
				entry = time.UnixMilli(t.Time)
			}
			avg = (avg*qty + tp*tq) / (qty + tq)
			qty += tq
			continue
		}
		qty -= tq
		if qty <= utils.Epsilon {
			qty, avg = 0, 0
		}
	}
	return avg, entry, nil
}
