package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"crossbot/config"
	"crossbot/logs"
	"crossbot/strategy"

	"golang.org/x/sync/errgroup"
)

// Provider supplies bars and prices. LatestBars never fails as a whole: a symbol that could not be
// fetched maps to an empty slice.
type Provider interface {
	LatestBars(ctx context.Context, symbols []string, interval string, lookback int) map[string][]strategy.Bar
	LatestPrice(ctx context.Context, symbol string) (float64, bool)
	HistoricalBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]strategy.Bar, error)
}

// ProviderError reports a failed data request.
type ProviderError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("market %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// source is the raw vendor API behind the provider.
type source interface {
	klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]strategy.Bar, error)
	price(ctx context.Context, symbol string) (float64, error)
}

const pageLimit = 1000

type cacheEntry struct {
	bars    []strategy.Bar
	expires time.Time
}

// CachingProvider adds a TTL cache and bounded concurrent fetching on top of a source.
type CachingProvider struct {
	src         source
	ttl         time.Duration
	concurrency int
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

var _ Provider = (*CachingProvider)(nil)

func newCachingProvider(src source, cfg config.DataConfig) *CachingProvider {
	concurrency := cfg.MaxConcurrentFetches
	if concurrency <= 0 {
		concurrency = 1
	}
	return &CachingProvider{
		src:         src,
		ttl:         time.Duration(cfg.CacheSeconds) * time.Second,
		concurrency: concurrency,
		now:         time.Now,
		cache:       make(map[string]cacheEntry),
	}
}

// LatestBars returns up to lookback closed bars per symbol, oldest first.
func (p *CachingProvider) LatestBars(ctx context.Context, symbols []string, interval string, lookback int) map[string][]strategy.Bar {
	out := make(map[string][]strategy.Bar, len(symbols))
	var outMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := p.latest(gctx, symbol, interval, lookback)
			if err != nil {
				logs.Errorf("[Market] Failed to get live data for %s: %v", symbol, err)
				bars = []strategy.Bar{}
			}
			outMu.Lock()
			out[symbol] = bars
			outMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *CachingProvider) latest(ctx context.Context, symbol, interval string, lookback int) ([]strategy.Bar, error) {
	key := fmt.Sprintf("%s_%s_%d", symbol, interval, lookback)
	now := p.now()

	p.mu.Lock()
	if e, ok := p.cache[key]; ok && now.Before(e.expires) {
		p.mu.Unlock()
		return e.bars, nil
	}
	p.mu.Unlock()

	limit := lookback
	if limit <= 0 || limit > pageLimit {
		limit = pageLimit
	}
	raw, err := p.src.klines(ctx, symbol, interval, time.Time{}, time.Time{}, limit)
	if err != nil {
		return nil, &ProviderError{Op: "latest_bars", Symbol: symbol, Err: err}
	}
	bars := Normalize(raw)
	if d, err := config.ParseInterval(interval); err == nil {
		bars = DropUnclosed(bars, d, now)
	}
	if lookback > 0 && len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}

	if p.ttl > 0 {
		p.mu.Lock()
		p.cache[key] = cacheEntry{bars: bars, expires: now.Add(p.ttl)}
		p.mu.Unlock()
	}
	return bars, nil
}

// LatestPrice returns the last traded price, or false when it cannot be fetched.
func (p *CachingProvider) LatestPrice(ctx context.Context, symbol string) (float64, bool) {
	price, err := p.src.price(ctx, symbol)
	if err != nil {
		logs.Warnf("[Market] Failed to get latest price for %s: %v", symbol, err)
		return 0, false
	}
	if price <= 0 {
		return 0, false
	}
	return price, true
}

// HistoricalBars pages through [start, end) in requests of at most 1000 bars.
func (p *CachingProvider) HistoricalBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]strategy.Bar, error) {
	step, err := config.ParseInterval(interval)
	if err != nil {
		return nil, &ProviderError{Op: "historical_bars", Symbol: symbol, Err: err}
	}
	if !end.After(start) {
		return nil, &ProviderError{Op: "historical_bars", Symbol: symbol, Err: fmt.Errorf("empty window %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))}
	}
	logs.Infof("[Market] Fetching historical data for %s from %s to %s", symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))

	var all []strategy.Bar
	cursor := start
	for cursor.Before(end) {
		if err := ctx.Err(); err != nil {
			return nil, &ProviderError{Op: "historical_bars", Symbol: symbol, Err: err}
		}
		page, err := p.src.klines(ctx, symbol, interval, cursor, end.Add(-time.Millisecond), pageLimit)
		if err != nil {
			return nil, &ProviderError{Op: "historical_bars", Symbol: symbol, Err: err}
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		next := page[len(page)-1].Timestamp.Add(step)
		if len(page) < pageLimit || !next.After(cursor) {
			break
		}
		cursor = next
	}
	bars := Normalize(all)
	return DropUnclosed(bars, step, p.now()), nil
}

// ValidateSymbol checks the vendor knows the symbol by asking for its price.
func (p *CachingProvider) ValidateSymbol(ctx context.Context, symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return &ProviderError{Op: "validate_symbol", Symbol: symbol, Err: fmt.Errorf("symbol is required")}
	}
	if _, err := p.src.price(ctx, symbol); err != nil {
		return &ProviderError{Op: "validate_symbol", Symbol: symbol, Err: err}
	}
	return nil
}

// Normalize sorts bars by time and keeps the last bar seen for each timestamp.
func Normalize(bars []strategy.Bar) []strategy.Bar {
	if len(bars) == 0 {
		return []strategy.Bar{}
	}
	sorted := make([]strategy.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	out := sorted[:0]
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(b.Timestamp) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// DropUnclosed removes trailing bars whose interval has not finished at now.
func DropUnclosed(bars []strategy.Bar, interval time.Duration, now time.Time) []strategy.Bar {
	if interval <= 0 {
		return bars
	}
	end := len(bars)
	for end > 0 && bars[end-1].Timestamp.Add(interval).After(now) {
		end--
	}
	return bars[:end]
}
