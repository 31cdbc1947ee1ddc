package payoff

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/pricing"
)

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

// p converts whole dollars into 8-decimal fixed point.
func p(dollars int64) decimal.Decimal {
	return d(dollars).Shift(8)
}

var oneEth = decimal.New(1, 18)

// strikeEngine charges one quote unit per dollar of strike distance below
// 2000, so lower strikes are always more expensive.
var strikeEngine = pricing.EngineFunc(func(q pricing.Quote) (decimal.Decimal, error) {
	return p(2000).Sub(q.Strike).Shift(-8).Mul(d(1_000_000)), nil
})

func newCalc() *Calculator {
	return NewCalculator(strikeEngine, model.DefaultScale)
}

func long(isPut bool, strike int64) model.Terms {
	return model.Terms{Kind: model.KindLong, IsPut: isPut, Amount: oneEth, Strike: p(strike)}
}

func spread(isPut bool, longStrike, shortStrike int64) model.Terms {
	return model.Terms{
		Kind:        model.KindSpread,
		IsPut:       isPut,
		Amount:      oneEth,
		Strike:      p(longStrike),
		ShortStrike: p(shortStrike),
	}
}

// --- Payout scenarios ---

func TestPayout_LongCallInBaseUnits(t *testing.T) {
	c := newCalc()
	payout := c.Payout(long(false, 1600), p(1650))

	// (1650-1600) * 1e18 / 1650 = 30303030303030303.03...
	want, _ := decimal.NewFromString("30303030303030303")
	if !payout.Equal(want) {
		t.Errorf("expected payout=%s, got %s", want, payout)
	}
}

func TestPayout_LongPutInQuoteUnits(t *testing.T) {
	c := newCalc()
	payout := c.Payout(long(true, 1600), p(1550))
	if !payout.Equal(d(50_000_000)) {
		t.Errorf("expected payout=50 USDC (50000000), got %s", payout)
	}
}

func TestPayout_OutOfTheMoneyIsZero(t *testing.T) {
	c := newCalc()
	tests := []struct {
		name  string
		terms model.Terms
		spot  int64
	}{
		{"call below strike", long(false, 1600), 1550},
		{"call at strike", long(false, 1600), 1600},
		{"put above strike", long(true, 1600), 1650},
		{"call spread below long", spread(false, 1600, 1700), 1590},
		{"put spread above long", spread(true, 1600, 1500), 1620},
	}
	for _, tt := range tests {
		if got := c.Payout(tt.terms, p(tt.spot)); !got.IsZero() {
			t.Errorf("%s: expected zero payout, got %s", tt.name, got)
		}
	}
}

func TestPayout_CallSpreadNetsLegs(t *testing.T) {
	c := newCalc()
	terms := spread(false, 1600, 1700)

	// Between the strikes only the long leg pays.
	mid := c.Payout(terms, p(1650))
	if !mid.Equal(c.Payout(long(false, 1600), p(1650))) {
		t.Errorf("expected spread payout to equal long leg between strikes, got %s", mid)
	}

	// Above the short strike the net is (short-long)*amount/s.
	above := c.Payout(terms, p(2000))
	want := model.DivInt(p(100).Mul(oneEth), p(2000), false)
	if !above.Equal(want) {
		t.Errorf("expected payout=%s above short strike, got %s", want, above)
	}
}

func TestPayout_PutSpreadCappedAtWidth(t *testing.T) {
	c := newCalc()
	terms := spread(true, 1600, 1500)

	if got := c.Payout(terms, p(1550)); !got.Equal(d(50_000_000)) {
		t.Errorf("expected 50 USDC at 1550, got %s", got)
	}
	if got := c.Payout(terms, p(100)); !got.Equal(d(100_000_000)) {
		t.Errorf("expected width cap of 100 USDC far below, got %s", got)
	}
}

func TestPayout_NeverExceedsMaxPayout(t *testing.T) {
	c := newCalc()
	terms := []model.Terms{
		long(false, 1600),
		long(true, 1600),
		spread(false, 1600, 1700),
		spread(true, 1600, 1500),
		{Kind: model.KindSpread, Amount: d(7), Strike: p(1650), ShortStrike: p(1750)},
		{Kind: model.KindSpread, IsPut: true, Amount: d(3), Strike: p(1550), ShortStrike: p(1450)},
	}
	for _, tm := range terms {
		limit := c.MaxPayout(tm)
		for spot := int64(1); spot <= 4000; spot += 7 {
			if got := c.Payout(tm, p(spot)); got.GreaterThan(limit) {
				t.Fatalf("payout %s exceeds max %s for %+v at %d", got, limit, tm, spot)
			}
		}
	}
}

func TestPayout_NonPositiveSpot(t *testing.T) {
	c := newCalc()
	if got := c.Payout(long(false, 1600), decimal.Zero); !got.IsZero() {
		t.Errorf("expected zero for zero spot, got %s", got)
	}
}

// --- MaxPayout ---

func TestMaxPayout(t *testing.T) {
	c := newCalc()
	callSpread, _ := decimal.NewFromString("58823529411764706") // ceil(100e18/1700)

	tests := []struct {
		name  string
		terms model.Terms
		want  decimal.Decimal
	}{
		{"long call locks notional", long(false, 1600), oneEth},
		{"long put locks strike value", long(true, 1600), d(1_600_000_000)},
		{"call spread", spread(false, 1600, 1700), callSpread},
		{"put spread", spread(true, 1600, 1500), d(100_000_000)},
	}
	for _, tt := range tests {
		if got := c.MaxPayout(tt.terms); !got.Equal(tt.want) {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestMaxPayout_SpreadBelowLong(t *testing.T) {
	c := newCalc()
	if !c.MaxPayout(spread(false, 1600, 1700)).LessThan(c.MaxPayout(long(false, 1600))) {
		t.Error("call spread should lock less than a long call")
	}
	if !c.MaxPayout(spread(true, 1600, 1500)).LessThan(c.MaxPayout(long(true, 1600))) {
		t.Error("put spread should lock less than a long put")
	}
}

// --- Premium ---

func TestPremium_Long(t *testing.T) {
	c := newCalc()
	premium, err := c.Premium(long(false, 1600), Inputs{Spot: p(1600)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !premium.Equal(d(400_000_000)) {
		t.Errorf("expected premium=400000000, got %s", premium)
	}
}

func TestPremium_SpreadIsNet(t *testing.T) {
	c := newCalc()
	premium, err := c.Premium(spread(false, 1600, 1700), Inputs{Spot: p(1600)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (2000-1600) - (2000-1700) = 100 USDC
	if !premium.Equal(d(100_000_000)) {
		t.Errorf("expected net premium=100000000, got %s", premium)
	}
}

func TestPremium_NegativeNetRejected(t *testing.T) {
	c := newCalc()
	// A put spread priced by an engine that favours higher strikes going
	// the wrong way yields a negative net.
	_, err := c.Premium(spread(true, 1600, 1500), Inputs{Spot: p(1600)})
	if !errors.Is(err, ErrNegativePremium) {
		t.Errorf("expected ErrNegativePremium, got %v", err)
	}
}

func TestPremium_EngineError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCalculator(pricing.EngineFunc(func(pricing.Quote) (decimal.Decimal, error) {
		return decimal.Zero, boom
	}), model.DefaultScale)

	_, err := c.Premium(long(true, 1600), Inputs{Spot: p(1600)})
	if !errors.Is(err, boom) {
		t.Errorf("expected engine error to propagate, got %v", err)
	}
}

func TestPremium_InvalidTerms(t *testing.T) {
	c := newCalc()
	tests := []model.Terms{
		{Kind: model.KindLong, Amount: decimal.Zero, Strike: p(1600)},
		{Kind: model.KindLong, Amount: oneEth, Strike: decimal.Zero},
		{Kind: model.KindSpread, Amount: oneEth, Strike: p(1600), ShortStrike: p(1600)},
	}
	for _, tm := range tests {
		if _, err := c.Premium(tm, Inputs{Spot: p(1600)}); !errors.Is(err, ErrInvalidTerms) {
			t.Errorf("expected ErrInvalidTerms for %+v, got %v", tm, err)
		}
	}
}
