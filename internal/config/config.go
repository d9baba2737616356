// Package config loads service configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// DatabasePath is the SQLite file; "memory" selects the in-process map
	// store (tests, ephemeral environments).
	DatabasePath string `yaml:"database_path"`
	// RedisAddr, when set, moves rate limit windows to Redis so instances
	// share them.
	RedisAddr string `yaml:"redis_addr"`
	LogLevel  string `yaml:"log_level"`

	Gateway    Gateway           `yaml:"gateway"`
	Fees       Fees              `yaml:"fees"`
	RateLimits map[string]Window `yaml:"rate_limits"`
	Breaker    Breaker           `yaml:"breaker"`
}

// Gateway configures the outbound payment gateway client.
type Gateway struct {
	Service         string  `yaml:"service"`
	BaseURL         string  `yaml:"base_url"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelayMillis int     `yaml:"base_delay_ms"`
	ThrottleRPS     float64 `yaml:"throttle_rps"`
	ThrottleBurst   int     `yaml:"throttle_burst"`
	IdempotencySalt string  `yaml:"idempotency_salt"`
}

// Timeout returns the per-attempt ceiling.
func (g Gateway) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// BaseDelay returns the initial retry backoff.
func (g Gateway) BaseDelay() time.Duration {
	return time.Duration(g.BaseDelayMillis) * time.Millisecond
}

// Fees configures the platform fee schedule.
type Fees struct {
	Percent    float64 `yaml:"percent"`
	FixedCents int64   `yaml:"fixed_cents"`
}

// Window configures one named rate limit profile.
type Window struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
}

// Breaker configures circuit breaker thresholds.
type Breaker struct {
	FailureThreshold       int `yaml:"failure_threshold"`
	RecoveryTimeoutSeconds int `yaml:"recovery_timeout_seconds"`
	SuccessThreshold       int `yaml:"success_threshold"`
}

// RecoveryTimeout returns the open-state hold time.
func (b Breaker) RecoveryTimeout() time.Duration {
	return time.Duration(b.RecoveryTimeoutSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8742",
		DatabasePath: "payments.db",
		LogLevel:     "info",
		Gateway: Gateway{
			Service:         "square",
			TimeoutSeconds:  30,
			MaxAttempts:     3,
			BaseDelayMillis: 200,
		},
		Fees: Fees{Percent: 3.5, FixedCents: 179},
		RateLimits: map[string]Window{
			"api":      {WindowSeconds: 60, MaxRequests: 120},
			"payments": {WindowSeconds: 60, MaxRequests: 30},
			"auth":     {WindowSeconds: 900, MaxRequests: 10},
		},
		Breaker: Breaker{
			FailureThreshold:       5,
			RecoveryTimeoutSeconds: 60,
			SuccessThreshold:       2,
		},
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PAYCORE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PAYCORE_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PAYCORE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("PAYCORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PAYCORE_GATEWAY_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("PAYCORE_GATEWAY_SALT"); v != "" {
		cfg.Gateway.IdempotencySalt = v
	}
	if v := os.Getenv("PAYCORE_FEE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Fees.Percent = f
		}
	}
	if v := os.Getenv("PAYCORE_FEE_FIXED_CENTS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Fees.FixedCents = n
		}
	}
}

// Validate rejects configurations that cannot serve.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: database_path is required (use \"memory\" for the in-process store)")
	}
	if c.Fees.Percent < 0 || c.Fees.Percent > 100 {
		return fmt.Errorf("config: fees.percent must be between 0 and 100")
	}
	if c.Fees.FixedCents < 0 {
		return fmt.Errorf("config: fees.fixed_cents must be non-negative")
	}
	if c.Gateway.MaxAttempts <= 0 {
		return fmt.Errorf("config: gateway.max_attempts must be positive")
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: gateway.timeout_seconds must be positive")
	}
	for name, w := range c.RateLimits {
		if w.WindowSeconds <= 0 || w.MaxRequests <= 0 {
			return fmt.Errorf("config: rate_limits.%s window and max must be positive", name)
		}
	}
	if c.Breaker.FailureThreshold < 0 || c.Breaker.SuccessThreshold < 0 {
		return fmt.Errorf("config: breaker thresholds must be non-negative")
	}
	return nil
}
