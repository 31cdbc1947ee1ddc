package collateral

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/payoff"
	"github.com/atmx/zdte-vault/internal/pool"
	"github.com/atmx/zdte-vault/internal/pricing"
)

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

func p(dollars int64) decimal.Decimal {
	return d(dollars).Shift(8)
}

var oneEth = decimal.New(1, 18)

func newLedger() *Ledger {
	zero := pricing.EngineFunc(func(pricing.Quote) (decimal.Decimal, error) { return decimal.Zero, nil })
	return NewLedger(payoff.NewCalculator(zero, model.DefaultScale))
}

func TestRequirement_Policy(t *testing.T) {
	l := newLedger()

	tests := []struct {
		name     string
		terms    model.Terms
		wantSide model.PoolSide
		want     decimal.Decimal
	}{
		{
			name:     "long call locks notional base",
			terms:    model.Terms{Kind: model.KindLong, Amount: oneEth, Strike: p(1600)},
			wantSide: model.SideBase,
			want:     oneEth,
		},
		{
			name:     "long put locks amount times strike in quote",
			terms:    model.Terms{Kind: model.KindLong, IsPut: true, Amount: oneEth, Strike: p(1600)},
			wantSide: model.SideQuote,
			want:     d(1_600_000_000),
		},
		{
			name:     "put spread locks width in quote",
			terms:    model.Terms{Kind: model.KindSpread, IsPut: true, Amount: oneEth, Strike: p(1600), ShortStrike: p(1500)},
			wantSide: model.SideQuote,
			want:     d(100_000_000),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, amount := l.Requirement(tt.terms)
			assert.Equal(t, tt.wantSide, side)
			assert.True(t, amount.Equal(tt.want), "amount=%s", amount)
		})
	}
}

func TestRequirement_CallSpreadLocksBaseAtShortStrike(t *testing.T) {
	l := newLedger()
	side, amount := l.Requirement(model.Terms{
		Kind: model.KindSpread, Amount: oneEth, Strike: p(1600), ShortStrike: p(1700),
	})
	assert.Equal(t, model.SideBase, side)
	assert.Equal(t, "58823529411764706", amount.String())
	assert.True(t, amount.LessThan(oneEth))
}

func TestLockRelease_RoundTrip(t *testing.T) {
	l := newLedger()
	pl := pool.New(model.SideQuote, "USDC")
	_, err := pool.Deposit(&pl, d(2_000_000_000))
	require.NoError(t, err)

	pos := model.Position{ID: 1, LockedPool: model.SideQuote, LockedAmount: d(1_600_000_000)}
	require.NoError(t, l.Lock(&pl, pos))
	assert.True(t, pl.LockedAssets.Equal(d(1_600_000_000)))

	// A second identical lock does not fit.
	err = l.Lock(&pl, model.Position{ID: 2, LockedPool: model.SideQuote, LockedAmount: d(1_600_000_000)})
	require.ErrorIs(t, err, pool.ErrInsufficientLiquidity)
	assert.True(t, pl.LockedAssets.Equal(d(1_600_000_000)), "failed lock must not change the pool")

	require.NoError(t, l.Release(&pl, pos))
	assert.True(t, pl.LockedAssets.IsZero())
}

func TestLock_WrongPool(t *testing.T) {
	l := newLedger()
	pl := pool.New(model.SideBase, "WETH")
	_, _ = pool.Deposit(&pl, oneEth)

	err := l.Lock(&pl, model.Position{ID: 1, LockedPool: model.SideQuote, LockedAmount: d(1)})
	require.ErrorIs(t, err, ErrWrongPool)
	err = l.Release(&pl, model.Position{ID: 1, LockedPool: model.SideQuote, LockedAmount: d(1)})
	require.ErrorIs(t, err, ErrWrongPool)
}

func TestVerify(t *testing.T) {
	positions := []model.Position{
		{ID: 1, LockedPool: model.SideBase, LockedAmount: d(10)},
		{ID: 2, LockedPool: model.SideQuote, LockedAmount: d(300)},
		{ID: 3, LockedPool: model.SideBase, LockedAmount: d(5)},
		{ID: 4, LockedPool: model.SideBase, LockedAmount: d(99), Settled: true},
	}
	pools := []model.Pool{
		{Side: model.SideBase, TotalAssets: d(100), TotalShares: d(100), LockedAssets: d(15)},
		{Side: model.SideQuote, TotalAssets: d(1000), TotalShares: d(1000), LockedAssets: d(300)},
	}
	require.NoError(t, Verify(pools, positions))

	pools[0].LockedAssets = d(16)
	require.ErrorIs(t, Verify(pools, positions), ErrLockMismatch)

	pools[0].LockedAssets = d(15)
	pools[0].TotalAssets = d(14)
	require.ErrorIs(t, Verify(pools, positions), ErrLockMismatch)
}

func TestLocked_IgnoresSettled(t *testing.T) {
	locked := Locked([]model.Position{
		{LockedPool: model.SideQuote, LockedAmount: d(7)},
		{LockedPool: model.SideQuote, LockedAmount: d(9), Settled: true},
	})
	assert.True(t, locked[model.SideQuote].Equal(d(7)))
	assert.True(t, locked[model.SideBase].IsZero())
}
