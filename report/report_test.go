package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crossbot/profit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrips() []profit.RoundTrip {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return []profit.RoundTrip{
		{Symbol: "ETHUSDT", PNL: -40, ClosedAt: ts.Add(time.Hour)},
		{Symbol: "BTCUSDT", PNL: 120, ClosedAt: ts},
	}
}

func TestRender(t *testing.T) {
	trips := sampleTrips()
	m := profit.ComputeMetrics(trips, 1000, 0)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, trips, 1000, m))
	html := buf.String()
	assert.Contains(t, html, "Performance Report")
	assert.Contains(t, html, "Equity Curve")
	assert.Contains(t, html, "Win rate 50.0%")
	assert.Equal(t, "ETHUSDT", trips[0].Symbol, "caller slice not reordered")
}

func TestRender_NoTrades(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil, 1000, profit.Metrics{}))
	assert.Contains(t, buf.String(), "Trades 0")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.html")
	require.NoError(t, WriteFile(path, sampleTrips(), 1000, profit.Metrics{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
