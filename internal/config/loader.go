package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, then applies ZDTE_*
// environment overrides. A missing file is not an error, so the service can
// run from the environment alone. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Label, "ZDTE_MARKET_LABEL")
	setStr(&cfg.Market.BaseAsset, "ZDTE_MARKET_BASE_ASSET")
	setStr(&cfg.Market.QuoteAsset, "ZDTE_MARKET_QUOTE_ASSET")
	setInt(&cfg.Market.BaseDecimals, "ZDTE_MARKET_BASE_DECIMALS")
	setInt(&cfg.Market.QuoteDecimals, "ZDTE_MARKET_QUOTE_DECIMALS")
	setInt(&cfg.Market.PriceDecimals, "ZDTE_MARKET_PRICE_DECIMALS")
	setStr(&cfg.Market.StrikeIncrement, "ZDTE_MARKET_STRIKE_INCREMENT")
	setStr(&cfg.Market.MaxOTMPercent, "ZDTE_MARKET_MAX_OTM_PERCENT")
	setStr(&cfg.Market.Expiry, "ZDTE_MARKET_EXPIRY")
	setStr(&cfg.Market.DailyExpiry, "ZDTE_MARKET_DAILY_EXPIRY")

	// ── Pricing ──
	setFloat64(&cfg.Pricing.RiskFreeRate, "ZDTE_PRICING_RISK_FREE_RATE")

	// ── Oracle ──
	setStr(&cfg.Oracle.Source, "ZDTE_ORACLE_SOURCE")
	setStr(&cfg.Oracle.Spot, "ZDTE_ORACLE_SPOT")
	setStr(&cfg.Oracle.Volatility, "ZDTE_ORACLE_VOLATILITY")
	setStr(&cfg.Oracle.RedisLabel, "ZDTE_ORACLE_REDIS_LABEL")
	setDuration(&cfg.Oracle.MaxAge, "ZDTE_ORACLE_MAX_AGE")

	// ── Custody ──
	setStr(&cfg.Custody.Mode, "ZDTE_CUSTODY_MODE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ZDTE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "ZDTE_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ZDTE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ZDTE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ZDTE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ZDTE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ZDTE_REDIS_DB")
	setDuration(&cfg.Redis.CacheTTL, "ZDTE_REDIS_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ZDTE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ZDTE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ZDTE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ZDTE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ZDTE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ZDTE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ZDTE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ZDTE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "ZDTE_S3_PREFIX")
	setBool(&cfg.S3.ArchiveOnShutdown, "ZDTE_S3_ARCHIVE_ON_SHUTDOWN")

	// ── Server ──
	setInt(&cfg.Server.Port, "ZDTE_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "ZDTE_SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.DevEndpoints, "ZDTE_SERVER_DEV_ENDPOINTS")
	setDuration(&cfg.Server.ShutdownTimeout, "ZDTE_SERVER_SHUTDOWN_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "ZDTE_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
