package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[market]
label = "BTC-USD-ZDTE"
strike_increment = "100"
expiry = "2026-03-14T08:00:00Z"

[redis]
enabled = true
cache_ttl = "45s"

[server]
cors_origins = ["https://app.example.com"]
`), 0o600))

	t.Setenv("ZDTE_MARKET_MAX_OTM_PERCENT", "5")
	t.Setenv("ZDTE_SERVER_PORT", "9090")
	t.Setenv("PORT", "")
	t.Setenv("ZDTE_ORACLE_MAX_AGE", "2m")
	t.Setenv("ZDTE_SERVER_CORS_ORIGINS", " https://a.example.com , ,https://b.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "BTC-USD-ZDTE", cfg.Market.Label)
	assert.Equal(t, "100", cfg.Market.StrikeIncrement)
	assert.Equal(t, "5", cfg.Market.MaxOTMPercent)
	assert.Equal(t, "USDC", cfg.Market.QuoteAsset, "unset keys keep defaults")
	assert.Equal(t, 45*time.Second, cfg.Redis.CacheTTL.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Oracle.MaxAge.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Market, cfg.Market)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[market\nlabel = 1"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvIgnoresUnparseable(t *testing.T) {
	t.Setenv("ZDTE_SERVER_PORT", "not-a-port")
	t.Setenv("PORT", "")
	t.Setenv("ZDTE_REDIS_ENABLED", "maybe")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Market.StrikeIncrement = "0"
	cfg.Market.MaxOTMPercent = "150"
	cfg.Oracle.Source = "chainlink"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "strike_increment")
	assert.Contains(t, msg, "max_otm_percent")
	assert.Contains(t, msg, "unknown source")
	assert.Contains(t, msg, "port")
}

func TestValidateRedisOracleNeedsRedis(t *testing.T) {
	cfg := Defaults()
	cfg.Oracle.Source = "redis"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires redis.enabled")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestMarketPrice(t *testing.T) {
	m := Defaults().Market
	p, err := m.Price("1600")
	require.NoError(t, err)
	assert.Equal(t, "160000000000", p.String())

	p, err = m.Price("1587.5")
	require.NoError(t, err)
	assert.Equal(t, "158750000000", p.String())

	_, err = m.Price("abc")
	assert.Error(t, err)
}

func TestExpiryTime(t *testing.T) {
	m := Defaults().Market

	before := time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC)
	got, err := m.ExpiryTime(before)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC), got)

	after := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	got, err = m.ExpiryTime(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC), got)

	m.Expiry = "2026-06-01T16:00:00+02:00"
	got, err = m.ExpiryTime(before)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC), got)
}
