// Package contract handles option instrument symbols and strike validation
// against the live spot price.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Option sides as they appear in symbols.
const (
	TypeCall = "C"
	TypePut  = "P"
)

// symbolRegex matches: {LABEL}-{YYYYMMDD}-{strike}[/{shortStrike}]-{C|P}
// Examples: ETH-USD-ZDTE-20250815-1600-C, ETH-USD-ZDTE-20250815-1600/1500-P
var symbolRegex = regexp.MustCompile(
	`^([A-Z0-9]+(?:-[A-Z0-9]+)*)-(\d{8})-([0-9]+(?:\.[0-9]+)?)(?:/([0-9]+(?:\.[0-9]+)?))?-([CP])$`,
)

var (
	ErrInvalidSymbol = errors.New("contract: invalid option symbol")

	// ErrInvalidStrike is returned when a strike is not a multiple of the
	// strike increment or lies outside the allowed OTM band.
	ErrInvalidStrike = errors.New("contract: invalid strike")

	// ErrInvalidLongStrike is returned when spread legs are not ordered
	// long-nearer-the-money, short-further-out.
	ErrInvalidLongStrike = errors.New("contract: invalid long strike")
)

// Option is a parsed option symbol. Strikes are in whole price units.
type Option struct {
	Symbol      string          `json:"symbol"`
	Label       string          `json:"label"`
	Expiry      time.Time       `json:"expiry"`
	Strike      decimal.Decimal `json:"strike"`
	ShortStrike decimal.Decimal `json:"short_strike"`
	IsPut       bool            `json:"is_put"`
	IsSpread    bool            `json:"is_spread"`
}

// FormatSymbol builds the symbol for a position. strike and shortStrike are
// fixed-point prices with priceDecimals places; shortStrike is ignored when
// zero.
func FormatSymbol(label string, expiry time.Time, isPut bool, strike, shortStrike decimal.Decimal, priceDecimals int32) string {
	typ := TypeCall
	if isPut {
		typ = TypePut
	}
	legs := strike.Shift(-priceDecimals).String()
	if !shortStrike.IsZero() {
		legs += "/" + shortStrike.Shift(-priceDecimals).String()
	}
	return fmt.Sprintf("%s-%s-%s-%s", label, expiry.UTC().Format("20060102"), legs, typ)
}

// ParseSymbol parses and validates an option symbol.
// Format: {LABEL}-{YYYYMMDD}-{strike}[/{shortStrike}]-{C|P}
func ParseSymbol(symbol string) (*Option, error) {
	matches := symbolRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {LABEL}-{YYYYMMDD}-{strike}[/{short}]-{C|P})",
			ErrInvalidSymbol, symbol)
	}

	expiry, err := time.Parse("20060102", matches[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidSymbol, matches[2])
	}

	strike, err := decimal.NewFromString(matches[3])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidSymbol, matches[3])
	}

	opt := &Option{
		Symbol: symbol,
		Label:  matches[1],
		Expiry: expiry,
		Strike: strike,
		IsPut:  matches[5] == TypePut,
	}
	if matches[4] != "" {
		short, err := decimal.NewFromString(matches[4])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid short strike %s", ErrInvalidSymbol, matches[4])
		}
		opt.ShortStrike = short
		opt.IsSpread = true
	}
	return opt, nil
}
