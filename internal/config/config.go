// Package config loads engine configuration from YAML with environment
// overrides for connection strings and secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the flat configuration surface of the engine.
type Config struct {
	// Statistics
	LookbackPeriod       int `yaml:"lookback_period"`
	VolumeWindow         int `yaml:"volume_window"`
	OscillatorPeriod     int `yaml:"oscillator_period"`
	AnnualizationPeriods int `yaml:"annualization_periods"`

	// Strategy
	EntryZScore      float64       `yaml:"entry_zscore"`
	ExitZScore       float64       `yaml:"exit_zscore"`
	StopLossFraction float64       `yaml:"stop_loss_fraction"`
	MaxPositionTime  time.Duration `yaml:"max_position_time"`

	// Sizing and risk
	MaxPositionSize   float64 `yaml:"max_position_size"`
	MaxLeverage       float64 `yaml:"max_leverage"`
	DailyLossLimit    float64 `yaml:"daily_loss_limit"`
	VolatilityCeiling float64 `yaml:"volatility_ceiling"`
	VolHalfThreshold  float64 `yaml:"vol_half_threshold"`
	VolTrimThreshold  float64 `yaml:"vol_trim_threshold"`

	// Engine
	SignalCooldown  time.Duration `yaml:"signal_cooldown"`
	ErrorCeiling    int           `yaml:"error_ceiling"`
	HealthInterval  time.Duration `yaml:"health_interval"`
	HistoryCapacity int           `yaml:"history_capacity"`

	// Feed
	FeedURL    string `yaml:"feed_url"`
	FeedSymbol string `yaml:"feed_symbol"`

	// Gateway
	SlippageBps float64 `yaml:"slippage_bps"`

	// Audit sinks; empty DSNs disable the corresponding sink.
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	AuditBuffer   int    `yaml:"audit_buffer"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	return Config{
		LookbackPeriod:       12,
		VolumeWindow:         20,
		OscillatorPeriod:     14,
		AnnualizationPeriods: 8760,

		EntryZScore:      0.75,
		ExitZScore:       0.5,
		StopLossFraction: 0.05,
		MaxPositionTime:  48 * time.Hour,

		MaxPositionSize:   10000,
		MaxLeverage:       3.0,
		DailyLossLimit:    0.10,
		VolatilityCeiling: 0.15,
		VolHalfThreshold:  0.10,
		VolTrimThreshold:  0.07,

		SignalCooldown:  60 * time.Second,
		ErrorCeiling:    10,
		HealthInterval:  60 * time.Second,
		HistoryCapacity: 100,

		FeedSymbol:  "BTC-USD",
		SlippageBps: 5,
		AuditBuffer: 1000,
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

// LoadFromFile reads a YAML file over the defaults, then applies
// environment overrides. A missing path returns defaults with overrides.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides connection strings and endpoints from the environment
// so secrets stay out of config files.
func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.ClickhouseDSN = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.FeedURL = v
	}
	if v := os.Getenv("FEED_SYMBOL"); v != "" {
		c.FeedSymbol = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks ranges that would make the engine misbehave silently.
func (c Config) Validate() error {
	if c.LookbackPeriod < 2 {
		return fmt.Errorf("lookback_period must be >= 2, got %d", c.LookbackPeriod)
	}
	if c.VolumeWindow < 1 {
		return fmt.Errorf("volume_window must be >= 1, got %d", c.VolumeWindow)
	}
	if c.OscillatorPeriod < 1 {
		return fmt.Errorf("oscillator_period must be >= 1, got %d", c.OscillatorPeriod)
	}
	if c.AnnualizationPeriods < 1 {
		return fmt.Errorf("annualization_periods must be >= 1, got %d", c.AnnualizationPeriods)
	}
	if c.EntryZScore <= 0 {
		return fmt.Errorf("entry_zscore must be > 0, got %v", c.EntryZScore)
	}
	if c.ExitZScore < 0 {
		return fmt.Errorf("exit_zscore must be >= 0, got %v", c.ExitZScore)
	}
	if c.ExitZScore >= c.EntryZScore {
		return fmt.Errorf("exit_zscore (%v) must be below entry_zscore (%v)", c.ExitZScore, c.EntryZScore)
	}
	if c.StopLossFraction <= 0 || c.StopLossFraction >= 1 {
		return fmt.Errorf("stop_loss_fraction must be in (0, 1), got %v", c.StopLossFraction)
	}
	if c.MaxPositionTime <= 0 {
		return fmt.Errorf("max_position_time must be > 0, got %v", c.MaxPositionTime)
	}
	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("max_position_size must be > 0, got %v", c.MaxPositionSize)
	}
	if c.MaxLeverage < 1 {
		return fmt.Errorf("max_leverage must be >= 1, got %v", c.MaxLeverage)
	}
	if c.DailyLossLimit <= 0 || c.DailyLossLimit >= 1 {
		return fmt.Errorf("daily_loss_limit must be in (0, 1), got %v", c.DailyLossLimit)
	}
	if c.VolatilityCeiling <= 0 {
		return fmt.Errorf("volatility_ceiling must be > 0, got %v", c.VolatilityCeiling)
	}
	if c.VolTrimThreshold > c.VolHalfThreshold {
		return fmt.Errorf("vol_trim_threshold (%v) must not exceed vol_half_threshold (%v)",
			c.VolTrimThreshold, c.VolHalfThreshold)
	}
	if c.SignalCooldown < 0 {
		return fmt.Errorf("signal_cooldown must be >= 0, got %v", c.SignalCooldown)
	}
	if c.ErrorCeiling < 1 {
		return fmt.Errorf("error_ceiling must be >= 1, got %d", c.ErrorCeiling)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("health_interval must be > 0, got %v", c.HealthInterval)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be >= 1, got %d", c.HistoryCapacity)
	}
	return nil
}
