// Package model defines the core domain types shared across the vault engine.
// All monetary values use shopspring/decimal, never float64 for money.
// Amounts, shares and prices are integers in the smallest unit.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolSide identifies one of the two asset pools.
type PoolSide string

const (
	SideQuote PoolSide = "quote"
	SideBase  PoolSide = "base"
)

// SideOf maps the isQuote flag used by the public operations to a PoolSide.
func SideOf(isQuote bool) PoolSide {
	if isQuote {
		return SideQuote
	}
	return SideBase
}

// Valid reports whether s names a known pool.
func (s PoolSide) Valid() bool {
	return s == SideQuote || s == SideBase
}

// Pool is the share accounting state of one asset pool.
// Invariant: TotalShares == 0 ⇔ TotalAssets == 0 (except after a full payout,
// see pool.ErrPoolInsolvent), and LockedAssets <= TotalAssets.
type Pool struct {
	Side         PoolSide        `json:"side" db:"side"`
	Asset        string          `json:"asset" db:"asset"`
	TotalAssets  decimal.Decimal `json:"total_assets" db:"total_assets"`
	TotalShares  decimal.Decimal `json:"total_shares" db:"total_shares"`
	LockedAssets decimal.Decimal `json:"locked_assets" db:"locked_assets"`
}

// Available returns the unlocked, withdrawable portion of the pool.
func (p Pool) Available() decimal.Decimal {
	return p.TotalAssets.Sub(p.LockedAssets)
}

// Holding is one holder's share balance in one pool. Holdings are zeroed,
// never removed, on full withdrawal.
type Holding struct {
	Side   PoolSide        `json:"side" db:"side"`
	Holder string          `json:"holder" db:"holder"`
	Shares decimal.Decimal `json:"shares" db:"shares"`
}

// PositionKind distinguishes single-leg longs from vertical spreads.
type PositionKind string

const (
	KindLong   PositionKind = "long"
	KindSpread PositionKind = "spread"
)

// Terms are the economic terms of an option position. ShortStrike is zero
// for long positions.
type Terms struct {
	Kind        PositionKind    `json:"kind"`
	IsPut       bool            `json:"is_put"`
	Amount      decimal.Decimal `json:"amount"`
	Strike      decimal.Decimal `json:"strike"`
	ShortStrike decimal.Decimal `json:"short_strike"`
}

// Width returns the absolute distance between the spread legs.
func (t Terms) Width() decimal.Decimal {
	return t.Strike.Sub(t.ShortStrike).Abs()
}

// Position is an option position recorded by the vault. Once Settled is true
// the record is immutable and excluded from collateral accounting.
type Position struct {
	ID     uint64 `json:"id" db:"id"`
	Owner  string `json:"owner" db:"owner"`
	Symbol string `json:"symbol" db:"symbol"`
	Terms
	Premium      decimal.Decimal `json:"premium" db:"premium"` // quote units, net for spreads
	LockedAmount decimal.Decimal `json:"locked_amount" db:"locked_amount"`
	LockedPool   PoolSide        `json:"locked_pool" db:"locked_pool"`
	OpenedAt     time.Time       `json:"opened_at" db:"opened_at"`
	Expiry       time.Time       `json:"expiry" db:"expiry"`

	Settled         bool            `json:"settled" db:"settled"`
	SettlementPrice decimal.Decimal `json:"settlement_price" db:"settlement_price"`
	Payout          decimal.Decimal `json:"payout" db:"payout"` // units of LockedPool's asset
	SettledAt       *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}

// State is the entire durable state of a vault.
type State struct {
	Pools          []Pool     `json:"pools"`
	Holdings       []Holding  `json:"holdings"`
	Positions      []Position `json:"positions"`
	NextPositionID uint64     `json:"next_position_id"`
}

// StateDelta is the set of records touched by one vault operation. Stores
// persist it atomically.
type StateDelta struct {
	Pools          []Pool
	Holdings       []Holding
	Positions      []Position
	NextPositionID uint64 // zero means unchanged
}

// Ledger entry kinds.
const (
	EntryDeposit  = "deposit"
	EntryWithdraw = "withdraw"
	EntryOpen     = "open"
	EntryExpire   = "expire"
)

// LedgerEntry is an immutable record of a completed vault operation.
// Once created, these are never modified or deleted.
type LedgerEntry struct {
	ID         string          `json:"id" db:"id"`
	Kind       string          `json:"kind" db:"kind"`
	Holder     string          `json:"holder" db:"holder"`
	Side       PoolSide        `json:"side" db:"side"`
	Amount     decimal.Decimal `json:"amount" db:"amount"` // assets moved, signed from the pool's view
	Shares     decimal.Decimal `json:"shares" db:"shares"` // shares minted (+) or burned (-)
	PositionID uint64          `json:"position_id,omitempty" db:"position_id"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// Scale holds the decimal precision of the base asset, quote asset and
// oracle prices.
type Scale struct {
	BaseDecimals  int32 `json:"base_decimals"`
	QuoteDecimals int32 `json:"quote_decimals"`
	PriceDecimals int32 `json:"price_decimals"`
}

// DefaultScale matches WETH (18), USDC (6) and an 8-decimal price feed.
var DefaultScale = Scale{BaseDecimals: 18, QuoteDecimals: 6, PriceDecimals: 8}

// QuoteValue converts price × base amount into quote smallest units,
// rounding down, or up when roundUp is set.
func (s Scale) QuoteValue(price, amount decimal.Decimal, roundUp bool) decimal.Decimal {
	product := price.Mul(amount)
	exp := s.PriceDecimals + s.BaseDecimals - s.QuoteDecimals
	if exp <= 0 {
		return product.Mul(decimal.New(1, -exp))
	}
	return DivInt(product, decimal.New(1, exp), roundUp)
}

// PriceUnit is one whole unit of price (10^PriceDecimals).
func (s Scale) PriceUnit() decimal.Decimal {
	return decimal.New(1, s.PriceDecimals)
}

// DivInt divides two integer-valued decimals and returns an integer,
// truncated for non-negative operands or rounded up when roundUp is set.
func DivInt(num, den decimal.Decimal, roundUp bool) decimal.Decimal {
	q, r := num.QuoRem(den, 0)
	if roundUp && r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q
}
