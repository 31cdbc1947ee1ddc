// Package pool implements fungible-share accounting over a single asset
// balance. Operations take a *model.Pool and either fully apply or return an
// error leaving the pool untouched; callers that need to stage several
// operations work on a copy.
//
// Share math always rounds in the pool's favour: mints and redemptions use
// floor division.
package pool

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
)

var (
	// ErrInvalidAmount is returned for zero or negative amounts and shares.
	ErrInvalidAmount = errors.New("pool: amount must be positive")

	// ErrInsufficientLiquidity is returned when a withdrawal, lock or payout
	// would exceed the pool's available (unlocked) assets.
	ErrInsufficientLiquidity = errors.New("pool: not enough available assets to satisfy withdrawal")

	// ErrInsufficientShares is returned when a holder redeems more shares
	// than they own.
	ErrInsufficientShares = errors.New("pool: insufficient share balance")

	// ErrZeroShares is returned when a deposit is too small to mint a share.
	ErrZeroShares = errors.New("pool: deposit too small to mint shares")

	// ErrPoolInsolvent is returned for deposits into a pool whose assets were
	// fully paid out while shares are still outstanding.
	ErrPoolInsolvent = errors.New("pool: pool has outstanding shares but no assets")

	// ErrOverRelease is returned when releasing more than is locked.
	ErrOverRelease = errors.New("pool: release exceeds locked assets")
)

// New returns an empty pool for the given side and asset symbol.
func New(side model.PoolSide, asset string) model.Pool {
	return model.Pool{
		Side:         side,
		Asset:        asset,
		TotalAssets:  decimal.Zero,
		TotalShares:  decimal.Zero,
		LockedAssets: decimal.Zero,
	}
}

// PreviewDeposit returns the shares a deposit of amount would mint:
//
//	shares = totalShares == 0 ? amount : floor(amount * totalShares / totalAssets)
func PreviewDeposit(p model.Pool, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if p.TotalShares.IsZero() {
		return amount, nil
	}
	if !p.TotalAssets.IsPositive() {
		return decimal.Zero, ErrPoolInsolvent
	}
	shares := model.DivInt(amount.Mul(p.TotalShares), p.TotalAssets, false)
	if !shares.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s %s", ErrZeroShares, amount, p.Asset)
	}
	return shares, nil
}

// Deposit adds amount to the pool and mints shares for it.
func Deposit(p *model.Pool, amount decimal.Decimal) (decimal.Decimal, error) {
	shares, err := PreviewDeposit(*p, amount)
	if err != nil {
		return decimal.Zero, err
	}
	p.TotalAssets = p.TotalAssets.Add(amount)
	p.TotalShares = p.TotalShares.Add(shares)
	return shares, nil
}

// PreviewWithdraw returns the assets paid for redeeming shares out of a
// holder balance of balance:
//
//	amount = floor(shares * totalAssets / totalShares)
//
// Fails with ErrInsufficientLiquidity when the amount exceeds the unlocked
// assets, checked before the holder's balance; partial fills are never made.
func PreviewWithdraw(p model.Pool, shares, balance decimal.Decimal) (decimal.Decimal, error) {
	if !shares.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if !p.TotalShares.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s exceeds supply %s", ErrInsufficientShares, shares, p.TotalShares)
	}
	amount := model.DivInt(shares.Mul(p.TotalAssets), p.TotalShares, false)
	if amount.GreaterThan(p.Available()) {
		return decimal.Zero, fmt.Errorf("%w: need %s, available %s", ErrInsufficientLiquidity, amount, p.Available())
	}
	if shares.GreaterThan(balance) {
		return decimal.Zero, fmt.Errorf("%w: have %s, want %s", ErrInsufficientShares, balance, shares)
	}
	if shares.GreaterThan(p.TotalShares) {
		return decimal.Zero, fmt.Errorf("%w: %s exceeds supply %s", ErrInsufficientShares, shares, p.TotalShares)
	}
	return amount, nil
}

// Withdraw burns shares and removes the corresponding assets from the pool.
// balance is the redeeming holder's current share balance.
func Withdraw(p *model.Pool, shares, balance decimal.Decimal) (decimal.Decimal, error) {
	amount, err := PreviewWithdraw(*p, shares, balance)
	if err != nil {
		return decimal.Zero, err
	}
	p.TotalShares = p.TotalShares.Sub(shares)
	p.TotalAssets = p.TotalAssets.Sub(amount)
	return amount, nil
}

// Lock reserves amount of the pool's assets against an open obligation.
func Lock(p *model.Pool, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	next := p.LockedAssets.Add(amount)
	if next.GreaterThan(p.TotalAssets) {
		return fmt.Errorf("%w: lock %s, available %s", ErrInsufficientLiquidity, amount, p.Available())
	}
	p.LockedAssets = next
	return nil
}

// Release returns previously locked assets to the available balance.
func Release(p *model.Pool, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(p.LockedAssets) {
		return fmt.Errorf("%w: release %s, locked %s", ErrOverRelease, amount, p.LockedAssets)
	}
	p.LockedAssets = p.LockedAssets.Sub(amount)
	return nil
}

// Credit adds revenue (premium) to the pool without minting shares, raising
// the value of every outstanding share.
func Credit(p *model.Pool, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	p.TotalAssets = p.TotalAssets.Add(amount)
	return nil
}

// Debit pays amount out of the pool's available assets.
func Debit(p *model.Pool, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(p.Available()) {
		return fmt.Errorf("%w: pay %s, available %s", ErrInsufficientLiquidity, amount, p.Available())
	}
	p.TotalAssets = p.TotalAssets.Sub(amount)
	return nil
}

// AssetsPerShare returns the pool's exchange rate rounded to scale decimal
// places, or one when the pool has no shares.
func AssetsPerShare(p model.Pool, scale int32) decimal.Decimal {
	if p.TotalShares.IsZero() {
		return decimal.NewFromInt(1)
	}
	return p.TotalAssets.DivRound(p.TotalShares, scale)
}
