// Package asset moves tokens between holders and the vault's custody.
//
// The vault only depends on the Transfer interface; Ledger is the in-memory
// custody used by the server and by tests.
package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when the sender lacks funds.
	ErrInsufficientBalance = errors.New("asset: transfer amount exceeds balance")

	// ErrInvalidAmount is returned for negative transfer amounts.
	ErrInvalidAmount = errors.New("asset: transfer amount must not be negative")
)

// Transfer moves one asset between an external account and the vault.
// Each call either moves the full amount or fails without effect.
type Transfer interface {
	// TransferIn pulls amount from account into the vault.
	TransferIn(ctx context.Context, from string, amount decimal.Decimal) error

	// TransferOut pays amount from the vault to account.
	TransferOut(ctx context.Context, to string, amount decimal.Decimal) error
}

// Ledger is an in-memory token ledger for a single asset. The vault's own
// holdings are tracked as custody.
type Ledger struct {
	symbol string

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	custody  decimal.Decimal
}

// NewLedger creates an empty ledger for the asset symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:   symbol,
		balances: make(map[string]decimal.Decimal),
		custody:  decimal.Zero,
	}
}

// Symbol returns the asset symbol.
func (l *Ledger) Symbol() string {
	return l.symbol
}

// Mint credits account with newly created tokens.
func (l *Ledger) Mint(account string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balances[account].Add(amount)
	return nil
}

// Balance returns account's balance.
func (l *Ledger) Balance(account string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Custody returns the amount held by the vault.
func (l *Ledger) Custody() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.custody
}

// SetCustody restores the vault's holdings, e.g. after reloading pool state.
func (l *Ledger) SetCustody(amount decimal.Decimal) {
	l.mu.Lock()
	l.custody = amount
	l.mu.Unlock()
}

// TransferIn implements Transfer.
func (l *Ledger) TransferIn(_ context.Context, from string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, bal, l.symbol, amount)
	}
	l.balances[from] = bal.Sub(amount)
	l.custody = l.custody.Add(amount)
	return nil
}

// TransferOut implements Transfer.
func (l *Ledger) TransferOut(_ context.Context, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.custody.LessThan(amount) {
		return fmt.Errorf("%w: custody has %s %s, needs %s", ErrInsufficientBalance, l.custody, l.symbol, amount)
	}
	l.custody = l.custody.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}
