// Package oracle supplies the spot price and implied volatility the vault
// reads when opening and settling positions.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPrice is returned for a non-positive spot price.
	ErrInvalidPrice = errors.New("oracle: price must be positive")

	// ErrInvalidVolatility is returned for a non-positive volatility.
	ErrInvalidVolatility = errors.New("oracle: volatility must be positive")

	// ErrNoPrice is returned when a feed has not published a value yet.
	ErrNoPrice = errors.New("oracle: no value published")
)

// PriceOracle reports the underlying spot price as a fixed-point integer
// (8 decimals in the default scale: 160000000000 = $1600).
type PriceOracle interface {
	SpotPrice(ctx context.Context) (decimal.Decimal, error)
}

// VolatilityOracle reports annualized implied volatility in percent.
type VolatilityOracle interface {
	ImpliedVolatility(ctx context.Context) (decimal.Decimal, error)
}

// Static is an in-process oracle holding values set by the operator. It
// serves development and tests.
type Static struct {
	mu   sync.RWMutex
	spot decimal.Decimal
	vol  decimal.Decimal
}

// NewStatic creates a static oracle with initial values.
func NewStatic(spot, vol decimal.Decimal) *Static {
	return &Static{spot: spot, vol: vol}
}

// Set updates the spot price.
func (s *Static) Set(spot decimal.Decimal) error {
	if !spot.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, spot)
	}
	s.mu.Lock()
	s.spot = spot
	s.mu.Unlock()
	return nil
}

// SetVolatility updates the implied volatility.
func (s *Static) SetVolatility(vol decimal.Decimal) error {
	if !vol.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidVolatility, vol)
	}
	s.mu.Lock()
	s.vol = vol
	s.mu.Unlock()
	return nil
}

// SpotPrice implements PriceOracle.
func (s *Static) SpotPrice(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.spot.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return s.spot, nil
}

// ImpliedVolatility implements VolatilityOracle.
func (s *Static) ImpliedVolatility(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.vol.IsPositive() {
		return decimal.Zero, ErrNoPrice
	}
	return s.vol, nil
}
