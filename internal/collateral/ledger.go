// Package collateral tracks the pool assets reserved against open option
// positions.
//
// Every position locks exactly its maximum possible payout, from the pool
// that pays it: long calls and call spreads lock base asset, long puts and
// put spreads lock quote asset. The lock is taken once at open and released
// once at settlement, never partially.
package collateral

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/payoff"
	"github.com/atmx/zdte-vault/internal/pool"
)

var (
	// ErrLockMismatch is returned when a pool's locked assets differ from
	// the sum of its open positions' locks.
	ErrLockMismatch = errors.New("collateral: locked assets do not match open positions")

	// ErrWrongPool is returned when lock or release targets a pool other
	// than the position's collateral pool.
	ErrWrongPool = errors.New("collateral: position is not collateralized by this pool")
)

// Ledger applies the locking policy.
type Ledger struct {
	calc *payoff.Calculator
}

// NewLedger creates a ledger that sizes locks with calc.MaxPayout.
func NewLedger(calc *payoff.Calculator) *Ledger {
	return &Ledger{calc: calc}
}

// Requirement returns the pool and amount a position with these terms must
// lock.
func (l *Ledger) Requirement(t model.Terms) (model.PoolSide, decimal.Decimal) {
	side := model.SideBase
	if t.IsPut {
		side = model.SideQuote
	}
	return side, l.calc.MaxPayout(t)
}

// Lock reserves pos.LockedAmount in p.
func (l *Ledger) Lock(p *model.Pool, pos model.Position) error {
	if p.Side != pos.LockedPool {
		return fmt.Errorf("%w: position %d locks %s, got %s", ErrWrongPool, pos.ID, pos.LockedPool, p.Side)
	}
	if err := pool.Lock(p, pos.LockedAmount); err != nil {
		return fmt.Errorf("collateral: lock position %d: %w", pos.ID, err)
	}
	return nil
}

// Release returns pos.LockedAmount to p's available assets.
func (l *Ledger) Release(p *model.Pool, pos model.Position) error {
	if p.Side != pos.LockedPool {
		return fmt.Errorf("%w: position %d locks %s, got %s", ErrWrongPool, pos.ID, pos.LockedPool, p.Side)
	}
	if err := pool.Release(p, pos.LockedAmount); err != nil {
		return fmt.Errorf("collateral: release position %d: %w", pos.ID, err)
	}
	return nil
}

// Locked sums the locks of unsettled positions per pool.
func Locked(positions []model.Position) map[model.PoolSide]decimal.Decimal {
	out := map[model.PoolSide]decimal.Decimal{
		model.SideQuote: decimal.Zero,
		model.SideBase:  decimal.Zero,
	}
	for _, pos := range positions {
		if pos.Settled {
			continue
		}
		out[pos.LockedPool] = out[pos.LockedPool].Add(pos.LockedAmount)
	}
	return out
}

// Verify checks that every pool's LockedAssets equals the sum over its open
// positions and never exceeds its TotalAssets.
func Verify(pools []model.Pool, positions []model.Position) error {
	want := Locked(positions)
	for _, p := range pools {
		if !p.LockedAssets.Equal(want[p.Side]) {
			return fmt.Errorf("%w: %s pool locked %s, positions lock %s",
				ErrLockMismatch, p.Side, p.LockedAssets, want[p.Side])
		}
		if p.LockedAssets.GreaterThan(p.TotalAssets) {
			return fmt.Errorf("%w: %s pool locked %s exceeds total %s",
				ErrLockMismatch, p.Side, p.LockedAssets, p.TotalAssets)
		}
	}
	return nil
}
