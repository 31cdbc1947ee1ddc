package vault

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
	"github.com/atmx/zdte-vault/internal/pool"
)

// Deposit pulls amount of the pool's asset from holder and mints shares for
// it at the current exchange rate.
func (v *Vault) Deposit(ctx context.Context, holder string, isQuote bool, amount decimal.Decimal) (shares decimal.Decimal, err error) {
	defer track("deposit", time.Now(), &err)
	if holder == "" {
		return decimal.Zero, ErrInvalidAccount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	side := model.SideOf(isQuote)
	p := v.pools[side]
	shares, err = pool.Deposit(&p, amount)
	if err != nil {
		return decimal.Zero, err
	}
	balance := v.holdings[side][holder].Add(shares)

	delta := model.StateDelta{
		Pools:    []model.Pool{p},
		Holdings: []model.Holding{{Side: side, Holder: holder, Shares: balance}},
	}
	in := &transfer{side: side, account: holder, amount: amount}
	if err = v.commit(ctx, in, nil, delta, model.StateDelta{}); err != nil {
		return decimal.Zero, err
	}

	v.pools[side] = p
	v.holdings[side][holder] = balance
	v.observe()
	v.record(ctx, model.EntryDeposit, holder, side, amount, shares, 0)

	v.log.Info("deposit",
		"holder", holder,
		"side", side,
		"amount", amount.String(),
		"shares", shares.String(),
	)
	return shares, nil
}

// Withdraw burns shares from holder and pays out their value. It fails
// with pool.ErrInsufficientLiquidity, without a partial fill, when the value
// exceeds the pool's unlocked assets.
func (v *Vault) Withdraw(ctx context.Context, holder string, isQuote bool, shares decimal.Decimal) (amount decimal.Decimal, err error) {
	defer track("withdraw", time.Now(), &err)
	if holder == "" {
		return decimal.Zero, ErrInvalidAccount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	side := model.SideOf(isQuote)
	before := v.pools[side]
	held := v.holdings[side][holder]

	p := before
	amount, err = pool.Withdraw(&p, shares, held)
	if err != nil {
		return decimal.Zero, err
	}
	balance := held.Sub(shares)

	delta := model.StateDelta{
		Pools:    []model.Pool{p},
		Holdings: []model.Holding{{Side: side, Holder: holder, Shares: balance}},
	}
	undo := model.StateDelta{
		Pools:    []model.Pool{before},
		Holdings: []model.Holding{{Side: side, Holder: holder, Shares: held}},
	}
	out := &transfer{side: side, account: holder, amount: amount}
	if err = v.commit(ctx, nil, out, delta, undo); err != nil {
		return decimal.Zero, err
	}

	v.pools[side] = p
	v.holdings[side][holder] = balance
	v.observe()
	v.record(ctx, model.EntryWithdraw, holder, side, amount.Neg(), shares.Neg(), 0)

	v.log.Info("withdraw",
		"holder", holder,
		"side", side,
		"shares", shares.String(),
		"amount", amount.String(),
	)
	return amount, nil
}
