// Package vault is the public face of the options vault: liquidity
// provision into the quote and base pools, opening long and spread option
// positions against them, and settling positions at expiry.
//
// Every mutating operation runs under one mutex and is all-or-nothing: it
// is staged on copies of the touched records, persisted in a single store
// transaction, and only then applied in memory.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/asset"
	"github.com/atmx/zdte-vault/internal/collateral"
	"github.com/atmx/zdte-vault/internal/contract"
	"github.com/atmx/zdte-vault/internal/metrics"
	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/oracle"
	"github.com/atmx/zdte-vault/internal/payoff"
	"github.com/atmx/zdte-vault/internal/pool"
	"github.com/atmx/zdte-vault/internal/pricing"
	"github.com/atmx/zdte-vault/internal/store"
)

var (
	ErrNotYetExpired    = errors.New("vault: position has not expired yet")
	ErrAlreadySettled   = errors.New("vault: position already settled")
	ErrPositionNotFound = errors.New("vault: position not found")
	ErrMarketExpired    = errors.New("vault: market has expired, no new positions")

	// ErrSettlementOverrun means a payout exceeded the collateral locked for
	// it. It signals a collateral accounting bug, never a user error.
	ErrSettlementOverrun = errors.New("vault: payout exceeds locked collateral")

	// ErrNoLiquidityProviders is returned when opening a position while the
	// quote pool has no shares to accrue the premium to.
	ErrNoLiquidityProviders = errors.New("vault: quote pool has no liquidity providers")

	ErrInvalidAccount = errors.New("vault: account is required")
	ErrInvalidConfig  = errors.New("vault: invalid configuration")
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = systemClock{}

// Config is fixed at construction.
type Config struct {
	Label           string          `json:"label"`
	BaseAsset       string          `json:"base_asset"`
	QuoteAsset      string          `json:"quote_asset"`
	Scale           model.Scale     `json:"scale"`
	StrikeIncrement decimal.Decimal `json:"strike_increment"`
	MaxOTMPercent   decimal.Decimal `json:"max_otm_percent"`
	Expiry          time.Time       `json:"expiry"`
}

func (c Config) validate() error {
	switch {
	case c.Label == "":
		return fmt.Errorf("%w: label is required", ErrInvalidConfig)
	case c.BaseAsset == "" || c.QuoteAsset == "":
		return fmt.Errorf("%w: base and quote assets are required", ErrInvalidConfig)
	case !c.StrikeIncrement.IsPositive():
		return fmt.Errorf("%w: strike increment must be positive", ErrInvalidConfig)
	case !c.MaxOTMPercent.IsPositive():
		return fmt.Errorf("%w: max OTM percent must be positive", ErrInvalidConfig)
	case c.Expiry.IsZero():
		return fmt.Errorf("%w: expiry is required", ErrInvalidConfig)
	}
	return nil
}

// Deps are the vault's collaborators.
type Deps struct {
	Store      store.Store
	Base       asset.Transfer
	Quote      asset.Transfer
	Prices     oracle.PriceOracle
	Volatility oracle.VolatilityOracle
	Pricer     pricing.Engine
	Clock      Clock        // defaults to SystemClock
	Logger     *slog.Logger // defaults to slog.Default()
}

// Vault holds both pools, every share balance and the position book.
type Vault struct {
	cfg        Config
	store      store.Store
	transfers  map[model.PoolSide]asset.Transfer
	prices     oracle.PriceOracle
	volatility oracle.VolatilityOracle
	strikes    *contract.StrikeValidator
	payoff     *payoff.Calculator
	collateral *collateral.Ledger
	clock      Clock
	log        *slog.Logger

	mu       sync.Mutex
	pools    map[model.PoolSide]model.Pool
	holdings map[model.PoolSide]map[string]decimal.Decimal
	book     *book
}

// New creates a vault with empty pools. Call Restore to load persisted
// state.
func New(cfg Config, deps Deps) (*Vault, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Base == nil || deps.Quote == nil ||
		deps.Prices == nil || deps.Volatility == nil || deps.Pricer == nil {
		return nil, fmt.Errorf("%w: missing dependency", ErrInvalidConfig)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	calc := payoff.NewCalculator(deps.Pricer, cfg.Scale)
	v := &Vault{
		cfg:   cfg,
		store: deps.Store,
		transfers: map[model.PoolSide]asset.Transfer{
			model.SideBase:  deps.Base,
			model.SideQuote: deps.Quote,
		},
		prices:     deps.Prices,
		volatility: deps.Volatility,
		strikes:    contract.NewStrikeValidator(cfg.StrikeIncrement, cfg.MaxOTMPercent),
		payoff:     calc,
		collateral: collateral.NewLedger(calc),
		clock:      deps.Clock,
		log:        deps.Logger.With("component", "vault", "market", cfg.Label),
		pools: map[model.PoolSide]model.Pool{
			model.SideBase:  pool.New(model.SideBase, cfg.BaseAsset),
			model.SideQuote: pool.New(model.SideQuote, cfg.QuoteAsset),
		},
		holdings: map[model.PoolSide]map[string]decimal.Decimal{
			model.SideBase:  {},
			model.SideQuote: {},
		},
		book: newBook(),
	}
	return v, nil
}

// Restore replaces the in-memory state with the store's and verifies the
// collateral invariant over it.
func (v *Vault) Restore(ctx context.Context) error {
	st, err := v.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("vault: restore: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	pools := map[model.PoolSide]model.Pool{
		model.SideBase:  pool.New(model.SideBase, v.cfg.BaseAsset),
		model.SideQuote: pool.New(model.SideQuote, v.cfg.QuoteAsset),
	}
	for _, p := range st.Pools {
		if !p.Side.Valid() {
			return fmt.Errorf("vault: restore: unknown pool side %q", p.Side)
		}
		pools[p.Side] = p
	}
	if err := collateral.Verify(poolList(pools), st.Positions); err != nil {
		return fmt.Errorf("vault: restore: %w", err)
	}

	holdings := map[model.PoolSide]map[string]decimal.Decimal{
		model.SideBase:  {},
		model.SideQuote: {},
	}
	for _, h := range st.Holdings {
		if !h.Side.Valid() {
			return fmt.Errorf("vault: restore: unknown holding side %q", h.Side)
		}
		holdings[h.Side][h.Holder] = h.Shares
	}

	v.pools = pools
	v.holdings = holdings
	v.book.load(st.Positions, st.NextPositionID)
	v.observe()

	v.log.Info("vault restored",
		"positions", len(st.Positions),
		"open", len(v.book.open()),
		"holdings", len(st.Holdings),
		"next_position_id", v.book.nextID,
	)
	return nil
}

// --- Views ---

// Config returns the vault configuration.
func (v *Vault) Config() Config {
	return v.cfg
}

// Pool returns a copy of the quote or base pool.
func (v *Vault) Pool(isQuote bool) model.Pool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pools[model.SideOf(isQuote)]
}

// ShareBalance returns a holder's shares in the quote or base pool.
func (v *Vault) ShareBalance(isQuote bool, holder string) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.holdings[model.SideOf(isQuote)][holder]
}

// PreviewWithdraw returns what redeeming shares would pay the holder now,
// or the error Withdraw would fail with.
func (v *Vault) PreviewWithdraw(isQuote bool, holder string, shares decimal.Decimal) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	side := model.SideOf(isQuote)
	return pool.PreviewWithdraw(v.pools[side], shares, v.holdings[side][holder])
}

// HolderValue returns the assets a holder's full share balance is worth at
// the current exchange rate, ignoring locks.
func (v *Vault) HolderValue(isQuote bool, holder string) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	side := model.SideOf(isQuote)
	p := v.pools[side]
	shares := v.holdings[side][holder]
	if p.TotalShares.IsZero() || shares.IsZero() {
		return decimal.Zero
	}
	return model.DivInt(shares.Mul(p.TotalAssets), p.TotalShares, false)
}

// Position returns a position by id.
func (v *Vault) Position(id uint64) (model.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.book.get(id)
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	return pos, nil
}

// Positions returns an owner's positions in id order, or every position
// when owner is empty.
func (v *Vault) Positions(owner string) []model.Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.book.byOwner(owner)
}

// Snapshot returns a copy of the entire vault state.
func (v *Vault) Snapshot() model.State {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := model.State{
		Pools:          poolList(v.pools),
		Positions:      v.book.all(),
		NextPositionID: v.book.nextID,
	}
	for _, side := range []model.PoolSide{model.SideBase, model.SideQuote} {
		for holder, shares := range v.holdings[side] {
			st.Holdings = append(st.Holdings, model.Holding{Side: side, Holder: holder, Shares: shares})
		}
	}
	return st
}

// CheckInvariants verifies that each pool's locked assets equal the locks
// of its open positions.
func (v *Vault) CheckInvariants() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return collateral.Verify(poolList(v.pools), v.book.all())
}

// poolList returns the pools in a fixed order: base, quote.
func poolList(pools map[model.PoolSide]model.Pool) []model.Pool {
	return []model.Pool{pools[model.SideBase], pools[model.SideQuote]}
}

// observe publishes pool and position gauges. Callers hold v.mu.
func (v *Vault) observe() {
	for side, p := range v.pools {
		metrics.PoolAssets.WithLabelValues(string(side)).Set(p.TotalAssets.InexactFloat64())
		metrics.PoolLocked.WithLabelValues(string(side)).Set(p.LockedAssets.InexactFloat64())
		metrics.PoolShares.WithLabelValues(string(side)).Set(p.TotalShares.InexactFloat64())
	}
	metrics.OpenPositions.Set(float64(len(v.book.open())))
}
