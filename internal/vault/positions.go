package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/contract"
	"github.com/atmx/zdte-vault/internal/metrics"
	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/payoff"
	"github.com/atmx/zdte-vault/internal/pool"
)

const year = 365 * 24 * time.Hour

// quote is a validated, priced position ready to be opened.
type quote struct {
	terms   model.Terms
	spot    decimal.Decimal
	premium decimal.Decimal
	now     time.Time
}

// OpenLongPosition buys a single-leg call or put of amount base units at
// strike. The premium is collected from owner into the quote pool and the
// maximum payout is locked. Returns the new position id.
//
// The quote pool must have shares outstanding, calls included, since the
// premium accrues to quote LPs; otherwise ErrNoLiquidityProviders.
func (v *Vault) OpenLongPosition(ctx context.Context, owner string, isPut bool, amount, strike decimal.Decimal) (id uint64, err error) {
	defer track("open_long", time.Now(), &err)
	return v.open(ctx, owner, model.Terms{
		Kind:        model.KindLong,
		IsPut:       isPut,
		Amount:      amount,
		Strike:      strike,
		ShortStrike: decimal.Zero,
	})
}

// OpenSpreadPosition buys a vertical spread: long the longStrike leg, short
// the shortStrike leg. Only the strike width is locked. Like
// OpenLongPosition it requires quote LPs.
func (v *Vault) OpenSpreadPosition(ctx context.Context, owner string, isPut bool, amount, longStrike, shortStrike decimal.Decimal) (id uint64, err error) {
	defer track("open_spread", time.Now(), &err)
	return v.open(ctx, owner, model.Terms{
		Kind:        model.KindSpread,
		IsPut:       isPut,
		Amount:      amount,
		Strike:      longStrike,
		ShortStrike: shortStrike,
	})
}

// QuoteLong returns the premium OpenLongPosition would charge now.
func (v *Vault) QuoteLong(ctx context.Context, isPut bool, amount, strike decimal.Decimal) (decimal.Decimal, error) {
	q, err := v.price(ctx, model.Terms{Kind: model.KindLong, IsPut: isPut, Amount: amount, Strike: strike})
	if err != nil {
		return decimal.Zero, err
	}
	return q.premium, nil
}

// QuoteSpread returns the net premium OpenSpreadPosition would charge now.
func (v *Vault) QuoteSpread(ctx context.Context, isPut bool, amount, longStrike, shortStrike decimal.Decimal) (decimal.Decimal, error) {
	q, err := v.price(ctx, model.Terms{Kind: model.KindSpread, IsPut: isPut, Amount: amount, Strike: longStrike, ShortStrike: shortStrike})
	if err != nil {
		return decimal.Zero, err
	}
	return q.premium, nil
}

// price validates terms against the market and prices them. It reads only
// oracles and configuration.
func (v *Vault) price(ctx context.Context, t model.Terms) (*quote, error) {
	now := v.clock.Now()
	if !now.Before(v.cfg.Expiry) {
		return nil, ErrMarketExpired
	}
	if !t.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount %s", payoff.ErrInvalidTerms, t.Amount)
	}

	spot, err := v.spot(ctx)
	if err != nil {
		return nil, err
	}
	if t.Kind == model.KindSpread {
		err = v.strikes.ValidateSpread(spot, t.Strike, t.ShortStrike, t.IsPut)
	} else {
		err = v.strikes.Validate(spot, t.Strike, t.IsPut)
	}
	if err != nil {
		return nil, err
	}

	vol, err := v.volatility.ImpliedVolatility(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: implied volatility: %w", err)
	}
	premium, err := v.payoff.Premium(t, payoff.Inputs{
		Spot:         spot,
		Volatility:   vol,
		TimeToExpiry: float64(v.cfg.Expiry.Sub(now)) / float64(year),
	})
	if err != nil {
		return nil, err
	}
	return &quote{terms: t, spot: spot, premium: premium, now: now}, nil
}

func (v *Vault) open(ctx context.Context, owner string, t model.Terms) (uint64, error) {
	if owner == "" {
		return 0, ErrInvalidAccount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	q, err := v.price(ctx, t)
	if err != nil {
		return 0, err
	}
	if v.pools[model.SideQuote].TotalShares.IsZero() {
		return 0, ErrNoLiquidityProviders
	}

	lockSide, lockAmount := v.collateral.Requirement(t)
	pos := model.Position{
		ID:           v.book.nextID,
		Owner:        owner,
		Symbol:       contract.FormatSymbol(v.cfg.Label, v.cfg.Expiry, t.IsPut, t.Strike, t.ShortStrike, v.cfg.Scale.PriceDecimals),
		Terms:        t,
		Premium:      q.premium,
		LockedAmount: lockAmount,
		LockedPool:   lockSide,
		OpenedAt:     q.now,
		Expiry:       v.cfg.Expiry,
	}

	// The lock is taken before the premium is credited so a position is
	// never backed by its own premium.
	staged := map[model.PoolSide]model.Pool{lockSide: v.pools[lockSide]}
	locked := staged[lockSide]
	if err := v.collateral.Lock(&locked, pos); err != nil {
		return 0, err
	}
	staged[lockSide] = locked

	qp, ok := staged[model.SideQuote]
	if !ok {
		qp = v.pools[model.SideQuote]
	}
	if err := pool.Credit(&qp, q.premium); err != nil {
		return 0, err
	}
	staged[model.SideQuote] = qp

	delta := model.StateDelta{
		Pools:          poolList(withDefaults(staged, v.pools)),
		Positions:      []model.Position{pos},
		NextPositionID: pos.ID + 1,
	}
	in := &transfer{side: model.SideQuote, account: owner, amount: q.premium}
	if err := v.commit(ctx, in, nil, delta, model.StateDelta{}); err != nil {
		return 0, err
	}

	for side, p := range staged {
		v.pools[side] = p
	}
	v.book.put(pos)
	v.observe()
	metrics.PremiumsTotal.WithLabelValues(string(t.Kind)).Add(q.premium.InexactFloat64())
	v.record(ctx, model.EntryOpen, owner, model.SideQuote, q.premium, decimal.Zero, pos.ID)

	v.log.Info("position opened",
		"position_id", pos.ID,
		"owner", owner,
		"symbol", pos.Symbol,
		"amount", t.Amount.String(),
		"spot", q.spot.String(),
		"premium", q.premium.String(),
		"locked_pool", lockSide,
		"locked_amount", lockAmount.String(),
	)
	return pos.ID, nil
}

// withDefaults overlays staged pools on current ones.
func withDefaults(staged, current map[model.PoolSide]model.Pool) map[model.PoolSide]model.Pool {
	out := make(map[model.PoolSide]model.Pool, len(current))
	for side, p := range current {
		out[side] = p
	}
	for side, p := range staged {
		out[side] = p
	}
	return out
}
