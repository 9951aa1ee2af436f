// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every validation failure so callers can treat it as fatal.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	SizingPercentage = "percentage"
	SizingFixed      = "fixed"

	BrokerPaper   = "paper"
	BrokerBinance = "binance"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// StrategyConfig holds the moving average crossover parameters.
type StrategyConfig struct {
	ShortSMA        int    `yaml:"short_sma"`
	LongSMA         int    `yaml:"long_sma"`
	DataInterval    string `yaml:"data_interval"`
	LookbackPeriods int    `yaml:"lookback_periods"`
	MinBarsMargin   int    `yaml:"min_bars_margin"`
}

// RiskConfig holds per-position protection and exposure limits.
type RiskConfig struct {
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct"`
	PositionSizePct float64 `yaml:"position_size_pct"`
	MaxPositions    int     `yaml:"max_positions"`
}

// CapitalConfig holds the starting balance and how position value is derived.
type CapitalConfig struct {
	InitialBalance    float64 `yaml:"initial_balance"`
	PositionSizeType  string  `yaml:"position_size_type"`
	FixedDollarAmount float64 `yaml:"fixed_dollar_amount"`
}

// BrokerConfig selects the execution venue.
type BrokerConfig struct {
	Kind               string `yaml:"kind"`
	QuoteAsset         string `yaml:"quote_asset"`
	Testnet            bool   `yaml:"testnet"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
}

// DataConfig controls the market data provider.
type DataConfig struct {
	CacheSeconds         int `yaml:"cache_seconds"`
	HTTPTimeoutSeconds   int `yaml:"http_timeout_seconds"`
	MaxConcurrentFetches int `yaml:"max_concurrent_fetches"`
}

// LiveConfig controls the polling loop.
type LiveConfig struct {
	LoopIntervalSeconds      int `yaml:"loop_interval_seconds"`
	SignalFreshnessSeconds   int `yaml:"signal_freshness_seconds"`
	HeartbeatIntervalMinutes int `yaml:"heartbeat_interval_minutes"`
	PositionLogEvery         int `yaml:"position_log_every"`
	MetricsSaveEvery         int `yaml:"metrics_save_every"`
}

// BacktestConfig holds the default replay window. Dates are YYYY-MM-DD.
type BacktestConfig struct {
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
}

type MetricsConfig struct {
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	FileFormat string `yaml:"file_format"`
}

// NormalConfig holds file locations shared by all modes.
type NormalConfig struct {
	LogDirectory   string `yaml:"log_directory"`
	StateDirectory string `yaml:"state_directory"`
	JournalPath    string `yaml:"journal_path"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type ReportConfig struct {
	OutputPath string `yaml:"output_path"`
}

// Config is the top-level configuration structure.
type Config struct {
	Symbols  []string       `yaml:"symbols"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Capital  CapitalConfig  `yaml:"capital"`
	Broker   BrokerConfig   `yaml:"broker"`
	Data     DataConfig     `yaml:"data"`
	Live     LiveConfig     `yaml:"live"`
	Backtest BacktestConfig `yaml:"backtest"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logs     LogConfig      `yaml:"logs"`
	Normal   NormalConfig   `yaml:"normal_config"`
	HTTP     HTTPConfig     `yaml:"http"`
	Report   ReportConfig   `yaml:"report"`
}

// NewConfig returns a Config populated with the defaults used when a key is absent from the file.
func NewConfig() *Config {
	return &Config{
		Strategy: StrategyConfig{
			ShortSMA:        20,
			LongSMA:         50,
			DataInterval:    "1m",
			LookbackPeriods: 100,
			MinBarsMargin:   5,
		},
		Risk: RiskConfig{
			StopLossPct:     0.05,
			TakeProfitPct:   0.10,
			PositionSizePct: 0.10,
			MaxPositions:    5,
		},
		Capital: CapitalConfig{
			InitialBalance:    100000,
			PositionSizeType:  SizingPercentage,
			FixedDollarAmount: 1000,
		},
		Broker: BrokerConfig{
			Kind:               BrokerPaper,
			QuoteAsset:         "USDT",
			Testnet:            true,
			HTTPTimeoutSeconds: 10,
		},
		Data: DataConfig{
			CacheSeconds:         60,
			HTTPTimeoutSeconds:   10,
			MaxConcurrentFetches: 4,
		},
		Live: LiveConfig{
			LoopIntervalSeconds:      60,
			SignalFreshnessSeconds:   300,
			HeartbeatIntervalMinutes: 10,
			PositionLogEvery:         10,
			MetricsSaveEvery:         50,
		},
		Logs: LogConfig{
			LogLevel:   "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
			FileFormat: LogFormatText,
		},
		Normal: NormalConfig{
			LogDirectory:   "logs",
			StateDirectory: "state",
			JournalPath:    "state/journal.db",
		},
		Report: ReportConfig{
			OutputPath: "reports/performance.html",
		},
	}
}

// LoadConfig loads configuration from a given path on top of the defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file not found at %s", ErrInvalidConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal yaml: %v", ErrInvalidConfig, err)
	}

	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the logical consistency and completeness of the entire configuration.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return invalid("'symbols' must list at least one symbol in config.yaml")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return invalid("'symbols' contains an empty entry")
		}
		if seen[s] {
			return invalid("'symbols' contains %s more than once", s)
		}
		seen[s] = true
	}

	if c.Strategy.ShortSMA <= 0 || c.Strategy.LongSMA <= 0 {
		return invalid("'strategy.short_sma' and 'strategy.long_sma' must be positive")
	}
	if c.Strategy.ShortSMA >= c.Strategy.LongSMA {
		return invalid("strategy.short_sma (%d) must be smaller than strategy.long_sma (%d)", c.Strategy.ShortSMA, c.Strategy.LongSMA)
	}
	if c.Strategy.MinBarsMargin < 0 {
		return invalid("'strategy.min_bars_margin' cannot be negative")
	}
	if c.Strategy.DataInterval == "" {
		return invalid("'strategy.data_interval' must be specified (e.g., '1m')")
	}
	if _, err := c.Strategy.IntervalDuration(); err != nil {
		return invalid("'strategy.data_interval': %v", err)
	}
	if need := c.Strategy.LongSMA + c.Strategy.MinBarsMargin; c.Strategy.LookbackPeriods < need {
		return invalid("strategy.lookback_periods (%d) must be at least long_sma + min_bars_margin (%d)", c.Strategy.LookbackPeriods, need)
	}

	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		return invalid("'risk.stop_loss_pct' must be in (0, 1)")
	}
	if c.Risk.TakeProfitPct <= 0 {
		return invalid("'risk.take_profit_pct' must be positive")
	}
	if c.Risk.PositionSizePct <= 0 || c.Risk.PositionSizePct > 1 {
		return invalid("'risk.position_size_pct' must be in (0, 1]")
	}
	if c.Risk.MaxPositions <= 0 {
		return invalid("'risk.max_positions' must be positive")
	}

	if c.Capital.InitialBalance <= 0 {
		return invalid("'capital.initial_balance' must be positive")
	}
	switch c.Capital.PositionSizeType {
	case SizingPercentage:
	case SizingFixed:
		if c.Capital.FixedDollarAmount <= 0 {
			return invalid("'capital.fixed_dollar_amount' must be positive when position_size_type is 'fixed'")
		}
	default:
		return invalid("capital.position_size_type must be '%s' or '%s'", SizingPercentage, SizingFixed)
	}

	if c.Broker.Kind != BrokerPaper && c.Broker.Kind != BrokerBinance {
		return invalid("broker.kind must be '%s' or '%s'", BrokerPaper, BrokerBinance)
	}
	if c.Broker.Kind == BrokerBinance && c.Broker.QuoteAsset == "" {
		return invalid("'broker.quote_asset' must be specified for the binance broker")
	}

	if c.Live.LoopIntervalSeconds <= 0 {
		return invalid("'live.loop_interval_seconds' must be positive")
	}
	if c.Live.SignalFreshnessSeconds <= 0 {
		return invalid("'live.signal_freshness_seconds' must be positive")
	}
	if c.Live.HeartbeatIntervalMinutes <= 0 {
		return invalid("'live.heartbeat_interval_minutes' must be positive")
	}

	if c.Backtest.StartDate != "" || c.Backtest.EndDate != "" {
		start, end, err := c.Backtest.Window()
		if err != nil {
			return invalid("backtest: %v", err)
		}
		if !end.After(start) {
			return invalid("backtest.end_date must be after backtest.start_date")
		}
	}

	if c.Logs.LogLevel == "" {
		return invalid("'logs.log_level' must be specified (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 || c.Logs.MaxBackups <= 0 || c.Logs.MaxAgeDays <= 0 {
		return invalid("'logs.max_size_mb', 'logs.max_backups' and 'logs.max_age_days' must be positive")
	}
	if c.Logs.FileFormat != LogFormatText && c.Logs.FileFormat != LogFormatJSON {
		return invalid("'logs.file_format' must be '%s' or '%s', got '%s'", LogFormatText, LogFormatJSON, c.Logs.FileFormat)
	}
	if c.Normal.LogDirectory == "" {
		return invalid("'normal_config.log_directory' must be specified (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return invalid("'normal_config.state_directory' must be specified (e.g., 'state')")
	}
	return nil
}

// IntervalDuration converts the bar interval (1m, 5m, 1h, 1d, 1w) into a duration.
func (s StrategyConfig) IntervalDuration() (time.Duration, error) {
	return ParseInterval(s.DataInterval)
}

// ParseInterval understands the kline interval notation used by the data provider.
func ParseInterval(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	var n int
	if _, err := fmt.Sscanf(interval[:len(interval)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	unit := map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[interval[len(interval)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return time.Duration(n) * unit, nil
}

// Window parses the configured backtest dates in UTC.
func (b BacktestConfig) Window() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", b.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date %q: %w", b.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", b.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %q: %w", b.EndDate, err)
	}
	return start, end, nil
}

// LoopInterval is the sleep between live iterations.
func (l LiveConfig) LoopInterval() time.Duration {
	return time.Duration(l.LoopIntervalSeconds) * time.Second
}

// SignalFreshness is the maximum age of a signal the live loop will act on.
func (l LiveConfig) SignalFreshness() time.Duration {
	return time.Duration(l.SignalFreshnessSeconds) * time.Second
}

// EnvConfig holds credentials that never live in the YAML file.
type EnvConfig struct {
	ApiKey    string
	ApiSecret string
}

func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		ApiKey:    os.Getenv("BINANCE_API_KEY"),
		ApiSecret: os.Getenv("BINANCE_SECRET_KEY"),
	}
}

// RequireBrokerCredentials reports a configuration error when a live broker is selected without keys.
func (c *Config) RequireBrokerCredentials(env *EnvConfig) error {
	if c.Broker.Kind != BrokerBinance {
		return nil
	}
	if env == nil || env.ApiKey == "" || env.ApiSecret == "" {
		return invalid("broker.kind is '%s' but BINANCE_API_KEY / BINANCE_SECRET_KEY are not set", BrokerBinance)
	}
	return nil
}
