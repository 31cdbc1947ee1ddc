// Package payoff computes option premiums at open time and intrinsic-value
// payouts at expiry. It is stateless: position terms and market inputs are
// passed as arguments.
//
// All monetary values use shopspring/decimal. Premiums round up and payouts
// round down, so the vault never collects too little nor pays too much.
package payoff

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/pricing"
)

var (
	// ErrNegativePremium is returned when a spread's short leg prices above
	// its long leg.
	ErrNegativePremium = errors.New("payoff: net spread premium is negative")

	// ErrInvalidTerms is returned for a non-positive amount or strike, or a
	// spread whose legs coincide.
	ErrInvalidTerms = errors.New("payoff: invalid position terms")
)

// Inputs are the market conditions at open time.
type Inputs struct {
	Spot         decimal.Decimal
	Volatility   decimal.Decimal
	TimeToExpiry float64 // years
}

// Calculator prices positions through a pricing.Engine and values them at
// settlement.
type Calculator struct {
	engine pricing.Engine
	scale  model.Scale
}

// NewCalculator creates a calculator over the given engine.
func NewCalculator(engine pricing.Engine, scale model.Scale) *Calculator {
	return &Calculator{engine: engine, scale: scale}
}

// Scale returns the unit scale the calculator works in.
func (c *Calculator) Scale() model.Scale {
	return c.scale
}

// Premium returns the amount the buyer pays, in quote smallest units. For a
// spread it is the long-leg premium minus the short-leg premium.
func (c *Calculator) Premium(t model.Terms, in Inputs) (decimal.Decimal, error) {
	if err := checkTerms(t); err != nil {
		return decimal.Zero, err
	}

	long, err := c.leg(t.Strike, t, in)
	if err != nil {
		return decimal.Zero, err
	}
	if t.Kind != model.KindSpread {
		return long, nil
	}

	short, err := c.leg(t.ShortStrike, t, in)
	if err != nil {
		return decimal.Zero, err
	}
	net := long.Sub(short)
	if net.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: long %s, short %s", ErrNegativePremium, long, short)
	}
	return net, nil
}

func (c *Calculator) leg(strike decimal.Decimal, t model.Terms, in Inputs) (decimal.Decimal, error) {
	premium, err := c.engine.Price(pricing.Quote{
		Spot:         in.Spot,
		Strike:       strike,
		TimeToExpiry: in.TimeToExpiry,
		Volatility:   in.Volatility,
		Amount:       t.Amount,
		IsPut:        t.IsPut,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("payoff: price leg %s: %w", strike, err)
	}
	if premium.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: leg %s priced at %s", ErrNegativePremium, strike, premium)
	}
	return premium, nil
}

// Payout returns the settlement value of a position at settlement price s,
// in units of the position's collateral asset (base for calls, quote for
// puts). Spread payouts are clipped at MaxPayout.
//
//	long call:   floor(max(0, s-K) * amount / s)
//	long put:    floor(max(0, K-s) * amount)
//	call spread: floor(max(0, min(s, short)-long) * amount / s)
//	put spread:  floor(max(0, long-max(s, short)) * amount)
func (c *Calculator) Payout(t model.Terms, s decimal.Decimal) decimal.Decimal {
	if !s.IsPositive() || !t.Amount.IsPositive() {
		return decimal.Zero
	}

	var intrinsic decimal.Decimal
	switch {
	case t.Kind == model.KindSpread && t.IsPut:
		intrinsic = t.Strike.Sub(decimal.Max(s, t.ShortStrike))
	case t.Kind == model.KindSpread:
		intrinsic = decimal.Min(s, t.ShortStrike).Sub(t.Strike)
	case t.IsPut:
		intrinsic = t.Strike.Sub(s)
	default:
		intrinsic = s.Sub(t.Strike)
	}
	if !intrinsic.IsPositive() {
		return decimal.Zero
	}

	var payout decimal.Decimal
	if t.IsPut {
		payout = c.scale.QuoteValue(intrinsic, t.Amount, false)
	} else {
		// Quote-denominated value converted to base units at the settlement price.
		payout = model.DivInt(intrinsic.Mul(t.Amount), s, false)
	}

	if t.Kind == model.KindSpread {
		if limit := c.MaxPayout(t); payout.GreaterThan(limit) {
			payout = limit
		}
	}
	return payout
}

// MaxPayout is the largest value Payout can return for the terms over all
// settlement prices, rounded up. It is the collateral a position must lock.
//
//	long call:   amount base units (as s grows without bound)
//	long put:    ceil(K * amount) quote units (at s = 0)
//	call spread: ceil((short-long) * amount / short) base units (at s = short)
//	put spread:  ceil((long-short) * amount) quote units
func (c *Calculator) MaxPayout(t model.Terms) decimal.Decimal {
	switch {
	case t.Kind == model.KindSpread && t.IsPut:
		return c.scale.QuoteValue(t.Width(), t.Amount, true)
	case t.Kind == model.KindSpread:
		if !t.ShortStrike.IsPositive() {
			return decimal.Zero
		}
		return model.DivInt(t.Width().Mul(t.Amount), t.ShortStrike, true)
	case t.IsPut:
		return c.scale.QuoteValue(t.Strike, t.Amount, true)
	default:
		return t.Amount
	}
}

func checkTerms(t model.Terms) error {
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount %s", ErrInvalidTerms, t.Amount)
	}
	if !t.Strike.IsPositive() {
		return fmt.Errorf("%w: strike %s", ErrInvalidTerms, t.Strike)
	}
	if t.Kind == model.KindSpread && (!t.ShortStrike.IsPositive() || t.Width().IsZero()) {
		return fmt.Errorf("%w: spread %s/%s", ErrInvalidTerms, t.Strike, t.ShortStrike)
	}
	return nil
}
