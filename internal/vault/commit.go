package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/asset"
	"github.com/atmx/zdte-vault/internal/collateral"
	"github.com/atmx/zdte-vault/internal/contract"
	"github.com/atmx/zdte-vault/internal/metrics"
	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/oracle"
	"github.com/atmx/zdte-vault/internal/payoff"
	"github.com/atmx/zdte-vault/internal/pool"
)

// transfer is one asset movement between an account and a pool's custody.
type transfer struct {
	side    model.PoolSide
	account string
	amount  decimal.Decimal
}

// commit moves funds and persists delta as one unit. Zero-amount transfers
// are skipped. When the outflow fails, undo is persisted to restore the
// previous records and the inflow is refunded. Callers hold v.mu and apply
// delta in memory only after commit succeeds.
func (v *Vault) commit(ctx context.Context, in, out *transfer, delta, undo model.StateDelta) error {
	if in != nil && in.amount.IsPositive() {
		if err := v.transfers[in.side].TransferIn(ctx, in.account, in.amount); err != nil {
			return fmt.Errorf("vault: collect %s %s from %s: %w", in.amount, in.side, in.account, err)
		}
	}

	if err := v.store.CommitState(ctx, delta); err != nil {
		v.refund(ctx, in)
		return fmt.Errorf("vault: commit state: %w", err)
	}

	if out != nil && out.amount.IsPositive() {
		if err := v.transfers[out.side].TransferOut(ctx, out.account, out.amount); err != nil {
			if uerr := v.store.CommitState(ctx, undo); uerr != nil {
				v.log.Error("failed to roll back state after transfer failure",
					"error", uerr, "transfer_error", err)
			}
			v.refund(ctx, in)
			return fmt.Errorf("vault: pay %s %s to %s: %w", out.amount, out.side, out.account, err)
		}
	}
	return nil
}

func (v *Vault) refund(ctx context.Context, in *transfer) {
	if in == nil || !in.amount.IsPositive() {
		return
	}
	if err := v.transfers[in.side].TransferOut(ctx, in.account, in.amount); err != nil {
		v.log.Error("failed to refund inflow",
			"account", in.account,
			"side", in.side,
			"amount", in.amount.String(),
			"error", err,
		)
	}
}

// record appends a ledger entry. The operation has already committed, so a
// failure is logged and not returned.
func (v *Vault) record(ctx context.Context, kind, holder string, side model.PoolSide, amount, shares decimal.Decimal, positionID uint64) {
	entry := &model.LedgerEntry{
		ID:         uuid.New().String(),
		Kind:       kind,
		Holder:     holder,
		Side:       side,
		Amount:     amount,
		Shares:     shares,
		PositionID: positionID,
		Timestamp:  v.clock.Now(),
	}
	if err := v.store.InsertLedgerEntry(ctx, entry); err != nil {
		v.log.Error("failed to insert ledger entry",
			"kind", kind,
			"holder", holder,
			"position_id", positionID,
			"error", err,
		)
	}
}

// track records the outcome and latency of an operation. Use with defer and
// a named error result.
func track(op string, start time.Time, err *error) {
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if *err != nil {
		metrics.OperationsTotal.WithLabelValues(op, "error").Inc()
		metrics.Rejections.WithLabelValues(op, reasonOf(*err)).Inc()
		return
	}
	metrics.OperationsTotal.WithLabelValues(op, "ok").Inc()
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, asset.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, pool.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, pool.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, pool.ErrInvalidAmount), errors.Is(err, payoff.ErrInvalidTerms):
		return "invalid_amount"
	case errors.Is(err, pool.ErrZeroShares), errors.Is(err, pool.ErrPoolInsolvent):
		return "unmintable"
	case errors.Is(err, contract.ErrInvalidLongStrike):
		return "invalid_long_strike"
	case errors.Is(err, contract.ErrInvalidStrike):
		return "invalid_strike"
	case errors.Is(err, ErrNotYetExpired):
		return "not_yet_expired"
	case errors.Is(err, ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, ErrSettlementOverrun):
		return "settlement_overrun"
	case errors.Is(err, ErrMarketExpired):
		return "market_expired"
	case errors.Is(err, ErrPositionNotFound):
		return "not_found"
	case errors.Is(err, ErrNoLiquidityProviders):
		return "no_liquidity_providers"
	case errors.Is(err, oracle.ErrNoPrice), errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrInvalidVolatility), errors.Is(err, oracle.ErrStalePrice):
		return "oracle"
	case errors.Is(err, collateral.ErrLockMismatch), errors.Is(err, collateral.ErrWrongPool):
		return "collateral"
	default:
		return "internal"
	}
}

// spot reads and checks the oracle price.
func (v *Vault) spot(ctx context.Context) (decimal.Decimal, error) {
	s, err := v.prices.SpotPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("vault: spot price: %w", err)
	}
	if !s.IsPositive() {
		return decimal.Zero, fmt.Errorf("vault: spot price %s: %w", s, oracle.ErrInvalidPrice)
	}
	return s, nil
}
