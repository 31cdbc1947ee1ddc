package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/metrics"
	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/pool"
)

// SettlementResult is the outcome of settling one position in ExpireAll.
type SettlementResult struct {
	PositionID uint64          `json:"position_id"`
	Payout     decimal.Decimal `json:"payout"`
	Err        error           `json:"-"`
}

// ExpirePosition settles a position at the current oracle price: the lock
// is released, the payout is paid to the position's owner from the locked
// pool, and the position is marked settled. Anyone may call it once the
// position has expired.
func (v *Vault) ExpirePosition(ctx context.Context, id uint64) (payout decimal.Decimal, err error) {
	defer track("expire", time.Now(), &err)

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expire(ctx, id)
}

// ExpireAll settles every open position in id order, one at a time. A
// failure on one position does not stop the rest.
func (v *Vault) ExpireAll(ctx context.Context) ([]SettlementResult, error) {
	if v.clock.Now().Before(v.cfg.Expiry) {
		return nil, ErrNotYetExpired
	}

	v.mu.Lock()
	open := v.book.open()
	v.mu.Unlock()

	results := make([]SettlementResult, 0, len(open))
	for _, pos := range open {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		payout, err := v.ExpirePosition(ctx, pos.ID)
		results = append(results, SettlementResult{PositionID: pos.ID, Payout: payout, Err: err})
	}

	v.log.Info("expired all positions", "count", len(results))
	return results, nil
}

func (v *Vault) expire(ctx context.Context, id uint64) (decimal.Decimal, error) {
	pos, ok := v.book.get(id)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	if pos.Settled {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrAlreadySettled, id)
	}
	now := v.clock.Now()
	if now.Before(pos.Expiry) {
		return decimal.Zero, fmt.Errorf("%w: %d expires at %s", ErrNotYetExpired, id, pos.Expiry.Format(time.RFC3339))
	}

	spot, err := v.spot(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	payout := v.payoff.Payout(pos.Terms, spot)
	if payout.GreaterThan(pos.LockedAmount) {
		metrics.SettlementOverruns.Inc()
		v.log.Error("settlement payout exceeds locked collateral",
			"position_id", id,
			"payout", payout.String(),
			"locked_amount", pos.LockedAmount.String(),
			"spot", spot.String(),
		)
		return decimal.Zero, fmt.Errorf("%w: position %d pays %s, locked %s",
			ErrSettlementOverrun, id, payout, pos.LockedAmount)
	}

	before := v.pools[pos.LockedPool]
	p := before
	if err := v.collateral.Release(&p, pos); err != nil {
		return decimal.Zero, err
	}
	if err := pool.Debit(&p, payout); err != nil {
		return decimal.Zero, err
	}

	settled := pos
	settled.Settled = true
	settled.SettlementPrice = spot
	settled.Payout = payout
	settled.SettledAt = &now

	delta := model.StateDelta{Pools: []model.Pool{p}, Positions: []model.Position{settled}}
	undo := model.StateDelta{Pools: []model.Pool{before}, Positions: []model.Position{pos}}
	out := &transfer{side: pos.LockedPool, account: pos.Owner, amount: payout}
	if err := v.commit(ctx, nil, out, delta, undo); err != nil {
		return decimal.Zero, err
	}

	v.pools[pos.LockedPool] = p
	v.book.put(settled)
	v.observe()
	metrics.PayoutsTotal.WithLabelValues(string(pos.LockedPool)).Add(payout.InexactFloat64())
	v.record(ctx, model.EntryExpire, pos.Owner, pos.LockedPool, payout.Neg(), decimal.Zero, id)

	v.log.Info("position settled",
		"position_id", id,
		"owner", pos.Owner,
		"spot", spot.String(),
		"payout", payout.String(),
		"pool", pos.LockedPool,
	)
	return payout, nil
}
