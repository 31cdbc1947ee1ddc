// Package config loads the vault service configuration from a TOML file,
// a .env file and ZDTE_* environment variables, in that order of
// precedence (last wins).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
)

// Config is the root configuration.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Pricing  PricingConfig  `toml:"pricing"`
	Oracle   OracleConfig   `toml:"oracle"`
	Custody  CustodyConfig  `toml:"custody"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig fixes the vault's market. Prices are written in whole quote
// units ("50" is $50) and scaled by PriceDecimals.
type MarketConfig struct {
	Label           string `toml:"label"`
	BaseAsset       string `toml:"base_asset"`
	QuoteAsset      string `toml:"quote_asset"`
	BaseDecimals    int    `toml:"base_decimals"`
	QuoteDecimals   int    `toml:"quote_decimals"`
	PriceDecimals   int    `toml:"price_decimals"`
	StrikeIncrement string `toml:"strike_increment"`
	MaxOTMPercent   string `toml:"max_otm_percent"`

	// Expiry is an RFC 3339 timestamp. When empty the vault expires at the
	// next DailyExpiry (HH:MM, UTC).
	Expiry      string `toml:"expiry"`
	DailyExpiry string `toml:"daily_expiry"`
}

// PricingConfig configures the Black-Scholes engine.
type PricingConfig struct {
	RiskFreeRate float64 `toml:"risk_free_rate"`
}

// OracleConfig selects the spot and volatility source.
type OracleConfig struct {
	Source     string   `toml:"source"` // static | redis
	Spot       string   `toml:"spot"`   // whole quote units, static only
	Volatility string   `toml:"volatility"`
	RedisLabel string   `toml:"redis_label"`
	MaxAge     duration `toml:"max_age"`
}

// CustodyConfig selects the asset transfer backend.
type CustodyConfig struct {
	Mode string `toml:"mode"` // memory
}

type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

type RedisConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	CacheTTL duration `toml:"cache_ttl"`
}

type S3Config struct {
	Enabled           bool   `toml:"enabled"`
	Endpoint          string `toml:"endpoint"`
	Region            string `toml:"region"`
	Bucket            string `toml:"bucket"`
	AccessKey         string `toml:"access_key"`
	SecretKey         string `toml:"secret_key"`
	UseSSL            bool   `toml:"use_ssl"`
	ForcePathStyle    bool   `toml:"force_path_style"`
	Prefix            string `toml:"prefix"`
	ArchiveOnShutdown bool   `toml:"archive_on_shutdown"`
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	DevEndpoints    bool     `toml:"dev_endpoints"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// duration wraps time.Duration so TOML strings like "30s" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration that runs a self-contained development
// vault: in-memory store and custody, static oracle.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Label:           "ETH-USD-ZDTE",
			BaseAsset:       "WETH",
			QuoteAsset:      "USDC",
			BaseDecimals:    18,
			QuoteDecimals:   6,
			PriceDecimals:   8,
			StrikeIncrement: "50",
			MaxOTMPercent:   "10",
			DailyExpiry:     "08:00",
		},
		Pricing: PricingConfig{
			RiskFreeRate: 0.05,
		},
		Oracle: OracleConfig{
			Source:     "static",
			Spot:       "1600",
			Volatility: "80",
			RedisLabel: "eth-usd",
			MaxAge:     duration{time.Minute},
		},
		Custody: CustodyConfig{
			Mode: "memory",
		},
		Postgres: PostgresConfig{
			PoolMaxConns:  10,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			CacheTTL: duration{30 * time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "zdte-vault",
			ForcePathStyle: true,
			Prefix:         "zdte",
		},
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			DevEndpoints:    true,
			ShutdownTimeout: duration{5 * time.Second},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	m := c.Market
	if m.Label == "" {
		errs = append(errs, "market: label must not be empty")
	}
	if m.BaseAsset == "" || m.QuoteAsset == "" {
		errs = append(errs, "market: base_asset and quote_asset must not be empty")
	}
	for name, v := range map[string]int{"base_decimals": m.BaseDecimals, "quote_decimals": m.QuoteDecimals, "price_decimals": m.PriceDecimals} {
		if v < 0 || v > 36 {
			errs = append(errs, fmt.Sprintf("market: %s must be 0-36, got %d", name, v))
		}
	}
	if inc, err := decimal.NewFromString(m.StrikeIncrement); err != nil || !inc.IsPositive() {
		errs = append(errs, fmt.Sprintf("market: strike_increment must be a positive number, got %q", m.StrikeIncrement))
	}
	if pct, err := decimal.NewFromString(m.MaxOTMPercent); err != nil || !pct.IsPositive() || pct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Sprintf("market: max_otm_percent must be in (0, 100), got %q", m.MaxOTMPercent))
	}
	if m.Expiry != "" {
		if _, err := time.Parse(time.RFC3339, m.Expiry); err != nil {
			errs = append(errs, fmt.Sprintf("market: expiry must be RFC 3339, got %q", m.Expiry))
		}
	} else if _, err := time.Parse("15:04", m.DailyExpiry); err != nil {
		errs = append(errs, fmt.Sprintf("market: daily_expiry must be HH:MM, got %q", m.DailyExpiry))
	}

	// Oracle
	switch c.Oracle.Source {
	case "static":
		if spot, err := decimal.NewFromString(c.Oracle.Spot); err != nil || !spot.IsPositive() {
			errs = append(errs, fmt.Sprintf("oracle: spot must be a positive number, got %q", c.Oracle.Spot))
		}
		if vol, err := decimal.NewFromString(c.Oracle.Volatility); err != nil || !vol.IsPositive() {
			errs = append(errs, fmt.Sprintf("oracle: volatility must be a positive number, got %q", c.Oracle.Volatility))
		}
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "oracle: source redis requires redis.enabled")
		}
		if c.Oracle.RedisLabel == "" {
			errs = append(errs, "oracle: redis_label must not be empty")
		}
		if c.Oracle.MaxAge.Duration <= 0 {
			errs = append(errs, "oracle: max_age must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("oracle: unknown source %q (valid: static, redis)", c.Oracle.Source))
	}

	if c.Custody.Mode != "memory" {
		errs = append(errs, fmt.Sprintf("custody: unknown mode %q (valid: memory)", c.Custody.Mode))
	}

	if c.Postgres.DSN != "" && c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.CacheTTL.Duration <= 0 {
			errs = append(errs, "redis: cache_ttl must be positive")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Scale returns the market's unit precision.
func (m MarketConfig) Scale() model.Scale {
	return model.Scale{
		BaseDecimals:  int32(m.BaseDecimals),
		QuoteDecimals: int32(m.QuoteDecimals),
		PriceDecimals: int32(m.PriceDecimals),
	}
}

// Price converts a whole-unit price string into oracle fixed point.
func (m MarketConfig) Price(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid price %q: %w", s, err)
	}
	return v.Shift(int32(m.PriceDecimals)).Truncate(0), nil
}

// ExpiryTime returns the configured expiry, or the first DailyExpiry after
// now.
func (m MarketConfig) ExpiryTime(now time.Time) (time.Time, error) {
	if m.Expiry != "" {
		t, err := time.Parse(time.RFC3339, m.Expiry)
		if err != nil {
			return time.Time{}, fmt.Errorf("config: invalid expiry: %w", err)
		}
		return t.UTC(), nil
	}
	hm, err := time.Parse("15:04", m.DailyExpiry)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: invalid daily_expiry: %w", err)
	}
	now = now.UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, time.UTC)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
