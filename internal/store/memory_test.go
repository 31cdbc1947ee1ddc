package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/zdte-vault/internal/model"
)

func TestMemoryStore_EmptyState(t *testing.T) {
	st, err := NewMemoryStore().LoadState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Pools)
	assert.Empty(t, st.Positions)
	assert.Equal(t, uint64(1), st.NextPositionID)
}

func TestMemoryStore_CommitUpserts(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	pool := model.Pool{Side: model.SideQuote, Asset: "USDC", TotalAssets: decimal.NewFromInt(100), TotalShares: decimal.NewFromInt(100)}
	pos := model.Position{ID: 1, Owner: "alice", LockedPool: model.SideQuote, LockedAmount: decimal.NewFromInt(40)}

	require.NoError(t, ms.CommitState(ctx, model.StateDelta{
		Pools:          []model.Pool{pool},
		Holdings:       []model.Holding{{Side: model.SideQuote, Holder: "alice", Shares: decimal.NewFromInt(100)}},
		Positions:      []model.Position{pos},
		NextPositionID: 2,
	}))

	pos.Settled = true
	now := time.Now().UTC()
	pos.SettledAt = &now
	require.NoError(t, ms.CommitState(ctx, model.StateDelta{Positions: []model.Position{pos}}))

	st, err := ms.LoadState(ctx)
	require.NoError(t, err)
	require.Len(t, st.Pools, 1)
	require.Len(t, st.Holdings, 1)
	require.Len(t, st.Positions, 1)
	assert.True(t, st.Positions[0].Settled)
	assert.Equal(t, uint64(2), st.NextPositionID, "zero NextPositionID leaves the counter unchanged")
}

func TestMemoryStore_LedgerQueries(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	entries := []model.LedgerEntry{
		{ID: "1", Kind: model.EntryDeposit, Holder: "alice"},
		{ID: "2", Kind: model.EntryOpen, Holder: "bob", PositionID: 1},
		{ID: "3", Kind: model.EntryExpire, Holder: "bob", PositionID: 1},
		{ID: "4", Kind: model.EntryWithdraw, Holder: "alice"},
	}
	for i := range entries {
		require.NoError(t, ms.InsertLedgerEntry(ctx, &entries[i]))
	}

	alice, err := ms.GetLedgerEntriesByHolder(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "1", alice[0].ID)
	assert.Equal(t, "4", alice[1].ID)

	pos, err := ms.GetLedgerEntriesByPosition(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, model.EntryExpire, pos[1].Kind)
}
