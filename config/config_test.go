package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_DefaultsFillMissingKeys(t *testing.T) {
	path := writeConfig(t, `
symbols: [" btcusdt ", ethusdt]
strategy:
  short_sma: 5
  long_sma: 20
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, 5, cfg.Strategy.ShortSMA)
	assert.Equal(t, 100, cfg.Strategy.LookbackPeriods)
	assert.Equal(t, 0.05, cfg.Risk.StopLossPct)
	assert.Equal(t, SizingPercentage, cfg.Capital.PositionSizeType)
	assert.Equal(t, BrokerPaper, cfg.Broker.Kind)
	assert.Equal(t, LogFormatText, cfg.Logs.FileFormat)
	assert.Equal(t, 5*time.Minute, cfg.Live.SignalFreshness())
	assert.Equal(t, time.Minute, cfg.Live.LoopInterval())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig()
		cfg.Symbols = []string{"BTCUSDT"}
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no symbols":         func(c *Config) { c.Symbols = nil },
		"duplicate symbol":   func(c *Config) { c.Symbols = []string{"BTCUSDT", "BTCUSDT"} },
		"short not below":    func(c *Config) { c.Strategy.ShortSMA = c.Strategy.LongSMA },
		"bad interval":       func(c *Config) { c.Strategy.DataInterval = "5x" },
		"lookback too short": func(c *Config) { c.Strategy.LookbackPeriods = 10 },
		"stop loss of 100%":  func(c *Config) { c.Risk.StopLossPct = 1 },
		"zero positions":     func(c *Config) { c.Risk.MaxPositions = 0 },
		"unknown sizing":     func(c *Config) { c.Capital.PositionSizeType = "kelly" },
		"fixed without size": func(c *Config) {
			c.Capital.PositionSizeType = SizingFixed
			c.Capital.FixedDollarAmount = 0
		},
		"unknown broker":   func(c *Config) { c.Broker.Kind = "alpaca" },
		"zero freshness":   func(c *Config) { c.Live.SignalFreshnessSeconds = 0 },
		"inverted window":  func(c *Config) { c.Backtest = BacktestConfig{StartDate: "2024-02-01", EndDate: "2024-01-01"} },
		"bad date":         func(c *Config) { c.Backtest = BacktestConfig{StartDate: "yesterday", EndDate: "2024-01-01"} },
		"unknown log form": func(c *Config) { c.Logs.FileFormat = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	d, err = ParseInterval("1d")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	for _, bad := range []string{"", "m", "0h", "3y"} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestRequireBrokerCredentials(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.RequireBrokerCredentials(nil))

	cfg.Broker.Kind = BrokerBinance
	assert.ErrorIs(t, cfg.RequireBrokerCredentials(&EnvConfig{ApiKey: "k"}), ErrInvalidConfig)
	assert.NoError(t, cfg.RequireBrokerCredentials(&EnvConfig{ApiKey: "k", ApiSecret: "s"}))
}
