package asset

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

func TestTransferIn_MovesToCustody(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("USDC")
	require.NoError(t, l.Mint("alice", d(100)))

	require.NoError(t, l.TransferIn(ctx, "alice", d(60)))
	assert.True(t, l.Balance("alice").Equal(d(40)))
	assert.True(t, l.Custody().Equal(d(60)))
}

func TestTransferIn_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("USDC")
	require.NoError(t, l.Mint("alice", d(100)))

	err := l.TransferIn(ctx, "alice", d(101))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "transfer amount exceeds balance")
	assert.True(t, l.Balance("alice").Equal(d(100)), "failed transfer must not move funds")
	assert.True(t, l.Custody().IsZero())
}

func TestTransferOut(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("WETH")
	require.NoError(t, l.Mint("alice", d(10)))
	require.NoError(t, l.TransferIn(ctx, "alice", d(10)))

	require.NoError(t, l.TransferOut(ctx, "bob", d(4)))
	assert.True(t, l.Balance("bob").Equal(d(4)))
	assert.True(t, l.Custody().Equal(d(6)))

	require.ErrorIs(t, l.TransferOut(ctx, "bob", d(7)), ErrInsufficientBalance)
}

func TestTransfer_ZeroAndNegative(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("WETH")

	require.NoError(t, l.TransferIn(ctx, "nobody", decimal.Zero))
	require.ErrorIs(t, l.TransferIn(ctx, "nobody", d(-1)), ErrInvalidAmount)
	require.ErrorIs(t, l.TransferOut(ctx, "nobody", d(-1)), ErrInvalidAmount)
	require.ErrorIs(t, l.Mint("nobody", decimal.Zero), ErrInvalidAmount)
}

func TestTransfer_ConcurrentConservesSupply(t *testing.T) {
	ctx := context.Background()
	l := NewLedger("USDC")
	for _, a := range []string{"a", "b", "c", "d"} {
		require.NoError(t, l.Mint(a, d(1000)))
	}

	var wg sync.WaitGroup
	for _, a := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(account string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = l.TransferIn(ctx, account, d(7))
				_ = l.TransferOut(ctx, account, d(3))
			}
		}(a)
	}
	wg.Wait()

	total := l.Custody()
	for _, a := range []string{"a", "b", "c", "d"} {
		total = total.Add(l.Balance(a))
	}
	assert.True(t, total.Equal(d(4000)), "supply=%s", total)
}
