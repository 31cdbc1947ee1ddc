package oracle

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFeed(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	stamp := func(ago time.Duration) string {
		return strconv.FormatInt(now.Add(-ago).UnixNano(), 10)
	}

	tests := []struct {
		name    string
		vals    map[string]string
		maxAge  time.Duration
		want    string
		wantErr error
		errText string
	}{
		{
			name:   "fresh",
			vals:   map[string]string{"value": "160000000000", "ts": stamp(10 * time.Second)},
			maxAge: time.Minute,
			want:   "160000000000",
		},
		{
			name:   "exactly max age",
			vals:   map[string]string{"value": "80", "ts": stamp(time.Minute)},
			maxAge: time.Minute,
			want:   "80",
		},
		{
			name:    "stale",
			vals:    map[string]string{"value": "160000000000", "ts": stamp(2 * time.Minute)},
			maxAge:  time.Minute,
			wantErr: ErrStalePrice,
		},
		{
			name:   "staleness disabled",
			vals:   map[string]string{"value": "160000000000", "ts": stamp(24 * time.Hour)},
			maxAge: 0,
			want:   "160000000000",
		},
		{
			name:   "missing ts ignored when disabled",
			vals:   map[string]string{"value": "75"},
			maxAge: 0,
			want:   "75",
		},
		{
			name:    "never published",
			vals:    map[string]string{},
			maxAge:  time.Minute,
			wantErr: ErrNoPrice,
		},
		{
			name:    "bad value",
			vals:    map[string]string{"value": "abc", "ts": stamp(0)},
			maxAge:  time.Minute,
			errText: "parse",
		},
		{
			name:    "bad timestamp",
			vals:    map[string]string{"value": "80", "ts": "yesterday"},
			maxAge:  time.Minute,
			errText: "ts",
		},
		{
			name:    "missing timestamp",
			vals:    map[string]string{"value": "80"},
			maxAge:  time.Minute,
			errText: "ts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeFeed("oracle:eth-usd:spot", tt.vals, now, tt.maxAge)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.errText != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errText)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestRedisOracle_Keys(t *testing.T) {
	o := NewRedisOracle(nil, "eth-usd", time.Minute)
	assert.Equal(t, "oracle:eth-usd:spot", o.key(feedSpot))
	assert.Equal(t, "oracle:eth-usd:iv", o.key(feedIV))
}

func TestRedisOracle_PublishRejectsNonPositive(t *testing.T) {
	o := NewRedisOracle(nil, "eth-usd", time.Minute)
	ctx := context.Background()
	now := time.Now()

	err := o.Publish(ctx, decimal.Zero, decimal.NewFromInt(80), now)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	err = o.Publish(ctx, decimal.NewFromInt(160000000000), decimal.NewFromInt(-1), now)
	assert.ErrorIs(t, err, ErrInvalidVolatility)
}
