package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crossbot/config"
	"crossbot/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	bars     map[string][]strategy.Bar
	prices   map[string]float64
	failing  map[string]bool
	calls    map[string]int
	requests []time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bars:    make(map[string][]strategy.Bar),
		prices:  make(map[string]float64),
		failing: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (f *fakeSource) klines(_ context.Context, symbol, _ string, start, end time.Time, limit int) ([]strategy.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	f.requests = append(f.requests, start)
	if f.failing[symbol] {
		return nil, errors.New("boom")
	}
	var out []strategy.Bar
	for _, b := range f.bars[symbol] {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	if !start.IsZero() && len(out) > limit {
		out = out[:limit]
	}
	if start.IsZero() && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeSource) price(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return p, nil
}

func minuteBars(n int) []strategy.Bar {
	bars := make([]strategy.Bar, n)
	for i := range bars {
		bars[i] = strategy.Bar{Timestamp: t0.Add(time.Duration(i) * time.Minute), Close: float64(100 + i)}
	}
	return bars
}

func newTestProvider(src *fakeSource, now time.Time) *CachingProvider {
	p := newCachingProvider(src, config.DataConfig{CacheSeconds: 60, MaxConcurrentFetches: 2})
	p.now = func() time.Time { return now }
	return p
}

func TestLatestBars_CachesAndTrims(t *testing.T) {
	src := newFakeSource()
	src.bars["BTCUSDT"] = minuteBars(30)
	now := t0.Add(30 * time.Minute)
	p := newTestProvider(src, now)

	got := p.LatestBars(context.Background(), []string{"BTCUSDT"}, "1m", 10)
	require.Len(t, got["BTCUSDT"], 10)
	assert.Equal(t, 129.0, got["BTCUSDT"][9].Close)

	p.LatestBars(context.Background(), []string{"BTCUSDT"}, "1m", 10)
	assert.Equal(t, 1, src.calls["BTCUSDT"], "second call served from cache")

	p.now = func() time.Time { return now.Add(61 * time.Second) }
	p.LatestBars(context.Background(), []string{"BTCUSDT"}, "1m", 10)
	assert.Equal(t, 2, src.calls["BTCUSDT"])
}

func TestLatestBars_FailureYieldsEmpty(t *testing.T) {
	src := newFakeSource()
	src.bars["ETHUSDT"] = minuteBars(5)
	src.failing["BADUSDT"] = true
	p := newTestProvider(src, t0.Add(time.Hour))

	got := p.LatestBars(context.Background(), []string{"ETHUSDT", "BADUSDT"}, "1m", 100)
	assert.Len(t, got["ETHUSDT"], 5)
	bad, ok := got["BADUSDT"]
	require.True(t, ok)
	assert.NotNil(t, bad)
	assert.Empty(t, bad)
}

func TestLatestBars_DropsUnclosedBar(t *testing.T) {
	src := newFakeSource()
	src.bars["BTCUSDT"] = minuteBars(5)
	p := newTestProvider(src, t0.Add(4*time.Minute+30*time.Second))

	got := p.LatestBars(context.Background(), []string{"BTCUSDT"}, "1m", 100)
	assert.Len(t, got["BTCUSDT"], 4)
}

func TestHistoricalBars_Pages(t *testing.T) {
	src := newFakeSource()
	src.bars["BTCUSDT"] = minuteBars(2500)
	p := newTestProvider(src, t0.Add(72*time.Hour))

	got, err := p.HistoricalBars(context.Background(), "BTCUSDT", "1m", t0, t0.Add(2500*time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 2500)
	assert.Len(t, src.requests, 3)
	assert.Equal(t, t0.Add(1000*time.Minute), src.requests[1])
}

func TestHistoricalBars_Errors(t *testing.T) {
	src := newFakeSource()
	src.failing["BTCUSDT"] = true
	p := newTestProvider(src, t0)

	_, err := p.HistoricalBars(context.Background(), "BTCUSDT", "1m", t0, t0.Add(time.Hour))
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "historical_bars", perr.Op)
	assert.Equal(t, "BTCUSDT", perr.Symbol)

	_, err = p.HistoricalBars(context.Background(), "BTCUSDT", "7x", t0, t0.Add(time.Hour))
	assert.Error(t, err)
}

func TestLatestPriceAndValidate(t *testing.T) {
	src := newFakeSource()
	src.prices["BTCUSDT"] = 65000
	p := newTestProvider(src, t0)

	price, ok := p.LatestPrice(context.Background(), "BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 65000.0, price)

	_, ok = p.LatestPrice(context.Background(), "NOPE")
	assert.False(t, ok)

	assert.NoError(t, p.ValidateSymbol(context.Background(), "BTCUSDT"))
	assert.Error(t, p.ValidateSymbol(context.Background(), "NOPE"))
	assert.Error(t, p.ValidateSymbol(context.Background(), " "))
}

func TestNormalize(t *testing.T) {
	bars := []strategy.Bar{
		{Timestamp: t0.Add(2 * time.Minute), Close: 3},
		{Timestamp: t0, Close: 1},
		{Timestamp: t0.Add(time.Minute), Close: 2},
		{Timestamp: t0.Add(time.Minute), Close: 22},
	}
	got := Normalize(bars)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 22, 3}, []float64{got[0].Close, got[1].Close, got[2].Close})
	assert.Equal(t, 3.0, bars[0].Close, "input untouched")

	assert.NotNil(t, Normalize(nil))
}
