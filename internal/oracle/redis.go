package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisOracle reads prices published by an external feeder. Each feed is a
// hash at "oracle:{label}:{feed}" with fields "value" and "ts" (Unix
// nanoseconds).
type RedisOracle struct {
	rdb    *redis.Client
	label  string
	maxAge time.Duration
}

// ErrStalePrice is returned when the last published value is older than the
// oracle's maximum age.
var ErrStalePrice = errors.New("oracle: stale value")

// NewRedisOracle creates an oracle for the given market label. A zero maxAge
// disables the staleness check.
func NewRedisOracle(rdb *redis.Client, label string, maxAge time.Duration) *RedisOracle {
	return &RedisOracle{rdb: rdb, label: label, maxAge: maxAge}
}

const (
	feedSpot = "spot"
	feedIV   = "iv"
)

func (o *RedisOracle) key(feed string) string {
	return fmt.Sprintf("oracle:%s:%s", o.label, feed)
}

// SpotPrice implements PriceOracle.
func (o *RedisOracle) SpotPrice(ctx context.Context) (decimal.Decimal, error) {
	return o.read(ctx, feedSpot)
}

// ImpliedVolatility implements VolatilityOracle.
func (o *RedisOracle) ImpliedVolatility(ctx context.Context) (decimal.Decimal, error) {
	return o.read(ctx, feedIV)
}

// Publish stores a new spot price and volatility. Used by feeders and the
// development endpoint.
func (o *RedisOracle) Publish(ctx context.Context, spot, vol decimal.Decimal, ts time.Time) error {
	if !spot.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, spot)
	}
	if !vol.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidVolatility, vol)
	}
	stamp := strconv.FormatInt(ts.UnixNano(), 10)

	pipe := o.rdb.TxPipeline()
	pipe.HSet(ctx, o.key(feedSpot), map[string]interface{}{"value": spot.String(), "ts": stamp})
	pipe.HSet(ctx, o.key(feedIV), map[string]interface{}{"value": vol.String(), "ts": stamp})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("oracle: publish %s: %w", o.label, err)
	}
	return nil
}

func (o *RedisOracle) read(ctx context.Context, feed string) (decimal.Decimal, error) {
	vals, err := o.rdb.HGetAll(ctx, o.key(feed)).Result()
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: read %s: %w", feed, err)
	}
	return decodeFeed(o.key(feed), vals, time.Now(), o.maxAge)
}

// decodeFeed turns a feed hash into its value, rejecting it when the "ts"
// field is more than maxAge before now. A zero maxAge skips the check.
func decodeFeed(key string, vals map[string]string, now time.Time, maxAge time.Duration) (decimal.Decimal, error) {
	raw, ok := vals["value"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, key)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: parse %s %q: %w", key, raw, err)
	}

	if maxAge > 0 {
		nanos, err := strconv.ParseInt(vals["ts"], 10, 64)
		if err != nil {
			return decimal.Zero, fmt.Errorf("oracle: parse %s ts: %w", key, err)
		}
		if age := now.Sub(time.Unix(0, nanos)); age > maxAge {
			return decimal.Zero, fmt.Errorf("%w: %s is %s old", ErrStalePrice, key, age.Round(time.Second))
		}
	}
	return v, nil
}
