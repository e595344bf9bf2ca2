// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// TradingMode selects between simulated fills and real order routing.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// StrategyKind names one of the built-in signal sources.
type StrategyKind string

const (
	StrategyMomentumScalper    StrategyKind = "momentum_scalper"
	StrategyTrendFollower      StrategyKind = "trend_follower"
	StrategyVolatilityBreakout StrategyKind = "volatility_breakout"
)

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	FileFormat string `yaml:"file_format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds general, non-trading configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds       int      `yaml:"http_timeout_seconds"`
	MaxRequestsPerMinute     int      `yaml:"max_requests_per_minute"`
	HeartbeatIntervalMinutes int      `yaml:"heartbeat_interval_minutes"`
	LogDirectory             string   `yaml:"log_directory"`
	StateDirectory           string   `yaml:"state_directory"`
	StatusListenAddr         string   `yaml:"status_listen_addr"`
	StatusAllowedOrigins     []string `yaml:"status_allowed_origins"`
}

// StrategyConfig selects and tunes the signal sources.
type StrategyConfig struct {
	ActiveStrategies              []StrategyKind `yaml:"active_strategies"`
	TrendFollowerMinTrendStrength float64        `yaml:"trend_follower_min_trend_strength"`
	VolatilityBreakoutMultiplier  float64        `yaml:"volatility_breakout_multiplier"`
}

// DataConfig controls where candidate symbols and price history come from.
type DataConfig struct {
	UseMarketScanner             bool     `yaml:"use_market_scanner"`
	MaxScanSymbols               int      `yaml:"max_scan_symbols"`
	ScannerUpdateIntervalSeconds int      `yaml:"scanner_update_interval_seconds"`
	StreamSymbols                []string `yaml:"stream_symbols"`
	MinVolume                    int64    `yaml:"min_volume"`
	MinPrice                     float64  `yaml:"min_price"`
	MaxPrice                     float64  `yaml:"max_price"`
	MaxSpreadPct                 float64  `yaml:"max_spread_pct"`
	HistoryPeriodType            string   `yaml:"history_period_type"`
	HistoryPeriod                int      `yaml:"history_period"`
	HistoryFrequencyType         string   `yaml:"history_frequency_type"`
	HistoryFrequency             int      `yaml:"history_frequency"`
}

// EngineConfig holds the cadence and retry settings of the two trading loops.
type EngineConfig struct {
	ScanIntervalSeconds        int     `yaml:"scan_interval_seconds"`
	MonitorIntervalSeconds     int     `yaml:"monitor_interval_seconds"`
	HaltedRetrySeconds         int     `yaml:"halted_retry_seconds"`
	ScanErrorBackoffSeconds    int     `yaml:"scan_error_backoff_seconds"`
	MonitorErrorBackoffSeconds int     `yaml:"monitor_error_backoff_seconds"`
	RequestTimeoutSeconds      int     `yaml:"request_timeout_seconds"`
	ShutdownGraceSeconds       int     `yaml:"shutdown_grace_seconds"`
	ExitRetryInitialSeconds    int     `yaml:"exit_retry_initial_seconds"`
	ExitRetryMaxSeconds        int     `yaml:"exit_retry_max_seconds"`
	ExitRetryAlertAttempts     int     `yaml:"exit_retry_alert_attempts"`
	CancelBracketOnExit        bool    `yaml:"cancel_bracket_on_exit"`
	PaperStartingBalance       float64 `yaml:"paper_starting_balance"`
}

// Config is the top-level configuration structure.
type Config struct {
	TradingMode TradingMode     `yaml:"trading_mode"`
	Risk        *RiskConfig     `yaml:"risk_management"`
	Strategy    *StrategyConfig `yaml:"strategy"`
	Data        *DataConfig     `yaml:"data"`
	Engine      *EngineConfig   `yaml:"engine"`
	Normal      *NormalConfig   `yaml:"normal_config"`
	Logs        *LogConfig      `yaml:"logs"`
}

// NewConfig returns a configuration populated with the moderate profile and
// the default loop cadence. A YAML file only needs to name what it changes.
func NewConfig() *Config {
	return &Config{
		TradingMode: ModePaper,
		Risk:        DefaultRiskConfig(),
		Strategy: &StrategyConfig{
			ActiveStrategies:              []StrategyKind{StrategyMomentumScalper},
			TrendFollowerMinTrendStrength: 0.6,
			VolatilityBreakoutMultiplier:  2.5,
		},
		Data: &DataConfig{
			UseMarketScanner:             false,
			MaxScanSymbols:               20,
			ScannerUpdateIntervalSeconds: 300,
			StreamSymbols:                []string{"SPY", "QQQ", "AAPL", "MSFT", "NVDA"},
			MinVolume:                    500000,
			MinPrice:                     5.0,
			MaxPrice:                     1000.0,
			MaxSpreadPct:                 0.005,
			HistoryPeriodType:            "day",
			HistoryPeriod:                10,
			HistoryFrequencyType:         "minute",
			HistoryFrequency:             5,
		},
		Engine: &EngineConfig{
			ScanIntervalSeconds:        10,
			MonitorIntervalSeconds:     5,
			HaltedRetrySeconds:         60,
			ScanErrorBackoffSeconds:    30,
			MonitorErrorBackoffSeconds: 10,
			RequestTimeoutSeconds:      15,
			ShutdownGraceSeconds:       10,
			ExitRetryInitialSeconds:    5,
			ExitRetryMaxSeconds:        120,
			ExitRetryAlertAttempts:     5,
			CancelBracketOnExit:        true,
			PaperStartingBalance:       100000,
		},
		Normal: &NormalConfig{
			HTTPTimeoutSeconds:       15,
			MaxRequestsPerMinute:     120,
			HeartbeatIntervalMinutes: 5,
			LogDirectory:             "logs",
			StateDirectory:           "state",
			StatusListenAddr:         "127.0.0.1:8089",
		},
		Logs: &LogConfig{
			LogLevel:   "info",
			FileFormat: "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from a given path, applies defaults, and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", path, ErrInvalidConfig)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of the defaults. The risk profile named in
// the file is applied before the explicit risk keys, so those keys win.
func ParseConfig(data []byte) (*Config, error) {
	cfg := NewConfig()

	var head struct {
		Risk struct {
			Profile RiskProfile `yaml:"risk_profile"`
		} `yaml:"risk_management"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %v: %w", err, ErrInvalidConfig)
	}
	if head.Risk.Profile != "" {
		preset, err := ProfileRiskConfig(head.Risk.Profile)
		if err != nil {
			return nil, err
		}
		cfg.Risk = preset
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %v: %w", err, ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidConfig)
}

// Validate checks the logical consistency and completeness of the entire configuration.
func (c *Config) Validate() error {
	if c.TradingMode != ModePaper && c.TradingMode != ModeLive {
		return invalid("Config error: trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}

	if c.Risk == nil {
		return invalid("Critical config missing: 'risk_management' block must be provided")
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}

	if c.Strategy == nil || len(c.Strategy.ActiveStrategies) == 0 {
		return invalid("Critical config missing: 'strategy.active_strategies' must name at least one strategy")
	}
	for _, s := range c.Strategy.ActiveStrategies {
		switch s {
		case StrategyMomentumScalper, StrategyTrendFollower, StrategyVolatilityBreakout:
		default:
			return invalid("Config error: unknown strategy %q", s)
		}
	}
	if c.Strategy.TrendFollowerMinTrendStrength < 0 {
		return invalid("Config error: strategy.trend_follower_min_trend_strength cannot be negative")
	}
	if c.Strategy.VolatilityBreakoutMultiplier <= 0 {
		return invalid("Config error: strategy.volatility_breakout_multiplier must be positive")
	}

	if c.Data == nil {
		return invalid("Critical config missing: 'data' block must be provided")
	}
	if c.Data.MaxScanSymbols <= 0 {
		return invalid("Config error: data.max_scan_symbols must be positive")
	}
	if !c.Data.UseMarketScanner && len(c.Data.StreamSymbols) == 0 {
		return invalid("Critical config missing: 'data.stream_symbols' is required when the market scanner is disabled")
	}
	if c.Data.UseMarketScanner && c.Data.ScannerUpdateIntervalSeconds <= 0 {
		return invalid("Config error: data.scanner_update_interval_seconds must be positive")
	}
	if c.Data.MaxPrice > 0 && c.Data.MinPrice > c.Data.MaxPrice {
		return invalid("Config error: data.min_price (%.2f) exceeds data.max_price (%.2f)", c.Data.MinPrice, c.Data.MaxPrice)
	}

	if c.Engine == nil {
		return invalid("Critical config missing: 'engine' block must be provided")
	}
	e := c.Engine
	positive := map[string]int{
		"engine.scan_interval_seconds":         e.ScanIntervalSeconds,
		"engine.monitor_interval_seconds":      e.MonitorIntervalSeconds,
		"engine.halted_retry_seconds":          e.HaltedRetrySeconds,
		"engine.scan_error_backoff_seconds":    e.ScanErrorBackoffSeconds,
		"engine.monitor_error_backoff_seconds": e.MonitorErrorBackoffSeconds,
		"engine.request_timeout_seconds":       e.RequestTimeoutSeconds,
		"engine.shutdown_grace_seconds":        e.ShutdownGraceSeconds,
		"engine.exit_retry_initial_seconds":    e.ExitRetryInitialSeconds,
		"engine.exit_retry_max_seconds":        e.ExitRetryMaxSeconds,
		"engine.exit_retry_alert_attempts":     e.ExitRetryAlertAttempts,
	}
	for key, v := range positive {
		if v <= 0 {
			return invalid("Config error: '%s' must be positive", key)
		}
	}
	if e.ExitRetryMaxSeconds < e.ExitRetryInitialSeconds {
		return invalid("Config error: engine.exit_retry_max_seconds must not be below exit_retry_initial_seconds")
	}
	if c.TradingMode == ModePaper && e.PaperStartingBalance <= 0 {
		return invalid("Config error: engine.paper_starting_balance must be positive in paper mode")
	}

	if c.Normal == nil {
		return invalid("Critical config missing: 'normal_config' block must be provided")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return invalid("Critical config missing: 'normal_config.http_timeout_seconds' must be positive")
	}
	if c.Normal.MaxRequestsPerMinute <= 0 {
		return invalid("Critical config missing: 'normal_config.max_requests_per_minute' must be positive")
	}
	if c.Normal.HeartbeatIntervalMinutes <= 0 {
		return invalid("Critical config missing: 'normal_config.heartbeat_interval_minutes' must be positive")
	}
	if c.Normal.LogDirectory == "" {
		return invalid("Critical config missing: 'normal_config.log_directory' must be specified (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return invalid("Critical config missing: 'normal_config.state_directory' must be specified (e.g., 'state')")
	}

	if c.Logs == nil {
		return invalid("Critical config missing: 'logs' configuration block must be provided")
	}
	if c.Logs.LogLevel == "" {
		return invalid("Critical config missing: 'logs.log_level' must be specified (e.g., 'info', 'debug')")
	}
	if c.Logs.FileFormat != "" && c.Logs.FileFormat != "text" && c.Logs.FileFormat != "json" {
		return invalid("Config error: logs.file_format must be 'text' or 'json', got %q", c.Logs.FileFormat)
	}
	if c.Logs.MaxSizeMB <= 0 || c.Logs.MaxBackups <= 0 || c.Logs.MaxAgeDays <= 0 {
		return invalid("Config error: logs.max_size_mb, logs.max_backups and logs.max_age_days must be positive")
	}

	return nil
}

// EnvConfig carries broker credentials read from the environment.
type EnvConfig struct {
	AppKey        string
	AppSecret     string
	CallbackURL   string
	AccountNumber string
	TokenPath     string
	TraderURL     string
	MarketDataURL string
}

// LoadEnvConfig reads credentials from the process environment. main loads
// a .env file first when one exists.
func LoadEnvConfig() *EnvConfig {
	env := &EnvConfig{
		AppKey:        os.Getenv("SCHWAB_APP_KEY"),
		AppSecret:     os.Getenv("SCHWAB_APP_SECRET"),
		CallbackURL:   os.Getenv("SCHWAB_CALLBACK_URL"),
		AccountNumber: os.Getenv("SCHWAB_ACCOUNT_NUMBER"),
		TokenPath:     os.Getenv("SCHWAB_TOKEN_PATH"),
		TraderURL:     os.Getenv("SCHWAB_TRADER_URL"),
		MarketDataURL: os.Getenv("SCHWAB_MARKETDATA_URL"),
	}
	if env.CallbackURL == "" {
		env.CallbackURL = "https://127.0.0.1:8182"
	}
	if env.TokenPath == "" {
		env.TokenPath = "schwab_tokens.json"
	}
	if env.TraderURL == "" {
		env.TraderURL = "https://api.schwabapi.com/trader/v1"
	}
	if env.MarketDataURL == "" {
		env.MarketDataURL = "https://api.schwabapi.com/marketdata/v1"
	}
	return env
}

// Validate reports missing credentials.
func (e *EnvConfig) Validate() error {
	if e.AppKey == "" || e.AppSecret == "" {
		return invalid("Critical config missing: SCHWAB_APP_KEY and SCHWAB_APP_SECRET must be set")
	}
	if e.AccountNumber == "" {
		return invalid("Critical config missing: SCHWAB_ACCOUNT_NUMBER must be set")
	}
	return nil
}
