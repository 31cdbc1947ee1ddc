package contract

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// p converts a whole-dollar price into 8-decimal fixed point.
func p(dollars int64) decimal.Decimal {
	return decimal.NewFromInt(dollars).Shift(8)
}

func newValidator() *StrikeValidator {
	return NewStrikeValidator(p(50), decimal.NewFromInt(10))
}

func TestParseSymbol_Long(t *testing.T) {
	o, err := ParseSymbol("ETH-USD-ZDTE-20250815-1600-C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Label != "ETH-USD-ZDTE" {
		t.Errorf("expected label=ETH-USD-ZDTE, got %s", o.Label)
	}
	if !o.Strike.Equal(decimal.NewFromInt(1600)) {
		t.Errorf("expected strike=1600, got %s", o.Strike)
	}
	if o.IsPut || o.IsSpread {
		t.Errorf("expected long call, got put=%v spread=%v", o.IsPut, o.IsSpread)
	}
	expected := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	if !o.Expiry.Equal(expected) {
		t.Errorf("expected expiry=%v, got %v", expected, o.Expiry)
	}
}

func TestParseSymbol_Spread(t *testing.T) {
	o, err := ParseSymbol("ETH-USD-ZDTE-20250815-1600/1500-P")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.IsPut || !o.IsSpread {
		t.Errorf("expected put spread, got put=%v spread=%v", o.IsPut, o.IsSpread)
	}
	if !o.ShortStrike.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("expected short strike=1500, got %s", o.ShortStrike)
	}
}

func TestParseSymbol_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"INVALID",
		"ETH-USD-ZDTE-20250815",
		"ETH-USD-ZDTE-20250815-1600",
		"ETH-USD-ZDTE-20250815-1600-X",
		"ETH-USD-ZDTE-notadate-1600-C",
		"eth-usd-20250815-1600-C", // lower-case label
		"ETH-USD-ZDTE-20251345-1600-C",
	}
	for _, symbol := range tests {
		if _, err := ParseSymbol(symbol); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("expected ErrInvalidSymbol for %q, got %v", symbol, err)
		}
	}
}

func TestFormatSymbol_RoundTrip(t *testing.T) {
	expiry := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	symbol := FormatSymbol("ETH-USD-ZDTE", expiry, true, p(1600), p(1500), 8)
	if symbol != "ETH-USD-ZDTE-20250815-1600/1500-P" {
		t.Fatalf("unexpected symbol %s", symbol)
	}
	o, err := ParseSymbol(symbol)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !o.Strike.Shift(8).Equal(p(1600)) || !o.ShortStrike.Shift(8).Equal(p(1500)) {
		t.Errorf("strikes did not survive round trip: %s/%s", o.Strike, o.ShortStrike)
	}

	long := FormatSymbol("ETH-USD-ZDTE", expiry, false, p(1650), decimal.Zero, 8)
	if long != "ETH-USD-ZDTE-20250815-1650-C" {
		t.Errorf("unexpected symbol %s", long)
	}
}

func TestValidate_CallBand(t *testing.T) {
	v := newValidator()
	spot := p(1600)

	tests := []struct {
		strike int64
		ok     bool
	}{
		{1600, true},  // at the money
		{1650, true},  // 3.1% OTM
		{1750, true},  // band is [spot, spot*(1+10/100)] = [1600, 1760]
		{1800, false}, // 12.5% OTM
		{1550, false}, // in the money
	}
	for _, tt := range tests {
		err := v.Validate(spot, p(tt.strike), false)
		if tt.ok && err != nil {
			t.Errorf("call strike %d: unexpected error %v", tt.strike, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidStrike) {
			t.Errorf("call strike %d: expected ErrInvalidStrike, got %v", tt.strike, err)
		}
	}
}

func TestValidate_PutBand(t *testing.T) {
	v := newValidator()
	spot := p(1600)

	tests := []struct {
		strike int64
		ok     bool
	}{
		{1600, true},
		{1450, true},
		{1400, false}, // 12.5% OTM
		{1650, false}, // in the money
	}
	for _, tt := range tests {
		err := v.Validate(spot, p(tt.strike), true)
		if tt.ok && err != nil {
			t.Errorf("put strike %d: unexpected error %v", tt.strike, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidStrike) {
			t.Errorf("put strike %d: expected ErrInvalidStrike, got %v", tt.strike, err)
		}
	}
}

func TestValidate_BandEdgesInclusive(t *testing.T) {
	v := NewStrikeValidator(p(10), decimal.NewFromInt(10))
	spot := p(1600)

	if err := v.Validate(spot, p(1760), false); err != nil {
		t.Errorf("upper edge should be accepted, got %v", err)
	}
	if err := v.Validate(spot, p(1770), false); !errors.Is(err, ErrInvalidStrike) {
		t.Errorf("just past upper edge should be rejected, got %v", err)
	}
	if err := v.Validate(spot, p(1440), true); err != nil {
		t.Errorf("lower edge should be accepted, got %v", err)
	}
}

func TestValidate_Quantization(t *testing.T) {
	v := newValidator()
	err := v.Validate(p(1600), p(1625), false)
	if !errors.Is(err, ErrInvalidStrike) {
		t.Errorf("expected ErrInvalidStrike for off-grid strike, got %v", err)
	}
	err = v.Validate(p(1600), decimal.Zero, false)
	if !errors.Is(err, ErrInvalidStrike) {
		t.Errorf("expected ErrInvalidStrike for zero strike, got %v", err)
	}
}

func TestValidateSpread_Ordering(t *testing.T) {
	v := newValidator()
	spot := p(1600)

	if err := v.ValidateSpread(spot, p(1600), p(1700), false); err != nil {
		t.Errorf("call spread 1600/1700 should be accepted, got %v", err)
	}
	if err := v.ValidateSpread(spot, p(1600), p(1500), true); err != nil {
		t.Errorf("put spread 1600/1500 should be accepted, got %v", err)
	}

	bad := []struct {
		name        string
		long, short int64
		isPut       bool
	}{
		{"call short below long", 1600, 1500, false},
		{"call equal legs", 1600, 1600, false},
		{"put short above long", 1400, 1500, true},
		{"put equal legs", 1550, 1550, true},
	}
	for _, tt := range bad {
		err := v.ValidateSpread(spot, p(tt.long), p(tt.short), tt.isPut)
		if !errors.Is(err, ErrInvalidLongStrike) {
			t.Errorf("%s: expected ErrInvalidLongStrike, got %v", tt.name, err)
		}
	}
}

func TestValidateSpread_LegOutsideBand(t *testing.T) {
	v := newValidator()
	err := v.ValidateSpread(p(1600), p(1600), p(1800), false)
	if !errors.Is(err, ErrInvalidStrike) {
		t.Errorf("expected ErrInvalidStrike for short leg outside band, got %v", err)
	}
}
