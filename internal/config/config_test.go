package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8742", cfg.ListenAddr)
	assert.Equal(t, "payments.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3.5, cfg.Fees.Percent)
	assert.Equal(t, int64(179), cfg.Fees.FixedCents)
	assert.Equal(t, 30, cfg.Gateway.TimeoutSeconds)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout())
	assert.Equal(t, 200*time.Millisecond, cfg.Gateway.BaseDelay())
	assert.Equal(t, time.Minute, cfg.Breaker.RecoveryTimeout())
	assert.Equal(t, 30, cfg.RateLimits["payments"].MaxRequests)
	assert.Equal(t, 900, cfg.RateLimits["auth"].WindowSeconds)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9000"
database_path: "memory"
log_level: "debug"
gateway:
  service: "stripe"
  base_url: "https://api.stripe.example"
  timeout_seconds: 10
  max_attempts: 5
  base_delay_ms: 100
fees:
  percent: 2.9
  fixed_cents: 30
breaker:
  failure_threshold: 3
  recovery_timeout_seconds: 30
  success_threshold: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.DatabasePath)
	assert.Equal(t, "stripe", cfg.Gateway.Service)
	assert.Equal(t, 5, cfg.Gateway.MaxAttempts)
	assert.Equal(t, 2.9, cfg.Fees.Percent)
	assert.Equal(t, int64(30), cfg.Fees.FixedCents)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)

	// Unspecified sections keep their defaults.
	assert.Equal(t, 120, cfg.RateLimits["api"].MaxRequests)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PAYCORE_LISTEN_ADDR", ":7777")
	t.Setenv("PAYCORE_DATABASE_PATH", "memory")
	t.Setenv("PAYCORE_GATEWAY_URL", "https://gw.example")
	t.Setenv("PAYCORE_FEE_PERCENT", "1.5")
	t.Setenv("PAYCORE_FEE_FIXED_CENTS", "99")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "memory", cfg.DatabasePath)
	assert.Equal(t, "https://gw.example", cfg.Gateway.BaseURL)
	assert.Equal(t, 1.5, cfg.Fees.Percent)
	assert.Equal(t, int64(99), cfg.Fees.FixedCents)
}

func TestLoadEnvOverridesBeatFile(t *testing.T) {
	path := writeConfig(t, `listen_addr: ":9000"`)
	t.Setenv("PAYCORE_LISTEN_ADDR", ":7777")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.ListenAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "listen_addr: [broken")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"negative fee percent", func(c *Config) { c.Fees.Percent = -1 }},
		{"fee percent over 100", func(c *Config) { c.Fees.Percent = 101 }},
		{"negative fixed fee", func(c *Config) { c.Fees.FixedCents = -1 }},
		{"zero max attempts", func(c *Config) { c.Gateway.MaxAttempts = 0 }},
		{"zero timeout", func(c *Config) { c.Gateway.TimeoutSeconds = 0 }},
		{"zero rate limit window", func(c *Config) { c.RateLimits["api"] = Window{WindowSeconds: 0, MaxRequests: 10} }},
		{"negative breaker threshold", func(c *Config) { c.Breaker.FailureThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
