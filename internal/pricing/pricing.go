// Package pricing prices single option legs. The vault treats the engine as a
// black box: it hands over market inputs and receives a premium in quote
// smallest units.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
)

// ErrInvalidInput is returned for non-positive spot, strike or volatility.
var ErrInvalidInput = errors.New("pricing: invalid input")

// Quote is the input to a single-leg pricing call.
type Quote struct {
	Spot         decimal.Decimal // fixed-point price
	Strike       decimal.Decimal // fixed-point price
	TimeToExpiry float64         // years
	Volatility   decimal.Decimal // annualized, percent (100 = 100%)
	Amount       decimal.Decimal // base smallest units
	IsPut        bool
}

// Engine returns the premium for one option leg in quote smallest units.
type Engine interface {
	Price(q Quote) (decimal.Decimal, error)
}

// EngineFunc adapts a plain function to Engine.
type EngineFunc func(q Quote) (decimal.Decimal, error)

// Price calls f(q).
func (f EngineFunc) Price(q Quote) (decimal.Decimal, error) {
	return f(q)
}

// BlackScholes prices European options with the Black-Scholes formula.
// Premiums are rounded up to the next quote unit.
type BlackScholes struct {
	Scale        model.Scale
	RiskFreeRate float64
}

// NewBlackScholes creates a Black-Scholes engine.
func NewBlackScholes(scale model.Scale, riskFreeRate float64) *BlackScholes {
	return &BlackScholes{Scale: scale, RiskFreeRate: riskFreeRate}
}

// Price implements Engine.
func (b *BlackScholes) Price(q Quote) (decimal.Decimal, error) {
	if !q.Spot.IsPositive() || !q.Strike.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: spot %s, strike %s", ErrInvalidInput, q.Spot, q.Strike)
	}
	if !q.Volatility.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: volatility %s", ErrInvalidInput, q.Volatility)
	}
	if q.Amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount %s", ErrInvalidInput, q.Amount)
	}

	s := q.Spot.Shift(-b.Scale.PriceDecimals).InexactFloat64()
	k := q.Strike.Shift(-b.Scale.PriceDecimals).InexactFloat64()
	v := q.Volatility.InexactFloat64() / 100

	perUnit := blackScholes(q.IsPut, s, k, q.TimeToExpiry, b.RiskFreeRate, v)
	if perUnit <= 0 || math.IsNaN(perUnit) {
		return decimal.Zero, nil
	}

	// perUnit is in whole quote per whole base; scale both sides to smallest units.
	premium := decimal.NewFromFloat(perUnit).
		Shift(b.Scale.QuoteDecimals).
		Mul(q.Amount).
		Shift(-b.Scale.BaseDecimals)
	return premium.Ceil(), nil
}

// blackScholes returns the option value per unit of underlying. At or past
// expiry it degrades to intrinsic value.
func blackScholes(isPut bool, s, k, t, r, v float64) float64 {
	if t <= 0 {
		if isPut {
			return math.Max(k-s, 0)
		}
		return math.Max(s-k, 0)
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*v*v)*t) / (v * sqrtT)
	d2 := d1 - v*sqrtT
	discount := math.Exp(-r * t)

	if isPut {
		return k*discount*normCdf(-d2) - s*normCdf(-d1)
	}
	return s*normCdf(d1) - k*discount*normCdf(d2)
}

func normCdf(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
