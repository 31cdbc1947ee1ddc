package contract

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// StrikeValidator enforces strike quantization and the maximum
// out-of-the-money band around the current spot price.
//
// A call strike must lie in [spot, spot*(1+maxOtm/100)] and a put strike in
// [spot*(1-maxOtm/100), spot]. Both bounds are inclusive.
type StrikeValidator struct {
	// Increment is the strike grid step, in fixed-point price units.
	Increment decimal.Decimal

	// MaxOTMPercent bounds how far out of the money a strike may be.
	MaxOTMPercent decimal.Decimal
}

// NewStrikeValidator creates a validator for the given grid step and band.
func NewStrikeValidator(increment, maxOTMPercent decimal.Decimal) *StrikeValidator {
	return &StrikeValidator{
		Increment:     increment,
		MaxOTMPercent: maxOTMPercent,
	}
}

// Band returns the inclusive strike range allowed for the option side.
func (v *StrikeValidator) Band(spot decimal.Decimal, isPut bool) (lo, hi decimal.Decimal) {
	offset := spot.Mul(v.MaxOTMPercent).Div(hundred)
	if isPut {
		return spot.Sub(offset), spot
	}
	return spot, spot.Add(offset)
}

// Validate checks a single strike.
func (v *StrikeValidator) Validate(spot, strike decimal.Decimal, isPut bool) error {
	if !strike.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidStrike, strike)
	}
	if v.Increment.IsPositive() && !strike.Mod(v.Increment).IsZero() {
		return fmt.Errorf("%w: %s is not a multiple of %s", ErrInvalidStrike, strike, v.Increment)
	}
	lo, hi := v.Band(spot, isPut)
	if strike.LessThan(lo) || strike.GreaterThan(hi) {
		return fmt.Errorf("%w: %s outside [%s, %s]", ErrInvalidStrike, strike, lo, hi)
	}
	return nil
}

// ValidateSpread checks leg ordering first, then each leg individually.
// A call spread's long strike must be below its short strike; a put
// spread's long strike must be above it.
func (v *StrikeValidator) ValidateSpread(spot, longStrike, shortStrike decimal.Decimal, isPut bool) error {
	ordered := longStrike.LessThan(shortStrike)
	if isPut {
		ordered = longStrike.GreaterThan(shortStrike)
	}
	if !ordered {
		return fmt.Errorf("%w: long %s, short %s", ErrInvalidLongStrike, longStrike, shortStrike)
	}
	if err := v.Validate(spot, longStrike, isPut); err != nil {
		return err
	}
	return v.Validate(spot, shortStrike, isPut)
}
