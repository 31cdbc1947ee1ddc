package store

import (
	"context"
	"sort"
	"sync"

	"github.com/atmx/zdte-vault/internal/model"
)

type holdingKey struct {
	side   model.PoolSide
	holder string
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	pools     map[model.PoolSide]model.Pool
	holdings  map[holdingKey]model.Holding
	positions map[uint64]model.Position
	nextID    uint64
	ledger    []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:     make(map[model.PoolSide]model.Pool),
		holdings:  make(map[holdingKey]model.Holding),
		positions: make(map[uint64]model.Position),
		nextID:    1,
	}
}

func (s *MemoryStore) LoadState(_ context.Context) (*model.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &model.State{NextPositionID: s.nextID}
	for _, p := range s.pools {
		st.Pools = append(st.Pools, p)
	}
	sort.Slice(st.Pools, func(i, j int) bool { return st.Pools[i].Side < st.Pools[j].Side })

	for _, h := range s.holdings {
		st.Holdings = append(st.Holdings, h)
	}
	sort.Slice(st.Holdings, func(i, j int) bool {
		if st.Holdings[i].Side != st.Holdings[j].Side {
			return st.Holdings[i].Side < st.Holdings[j].Side
		}
		return st.Holdings[i].Holder < st.Holdings[j].Holder
	})

	for _, p := range s.positions {
		st.Positions = append(st.Positions, p)
	}
	sort.Slice(st.Positions, func(i, j int) bool { return st.Positions[i].ID < st.Positions[j].ID })
	return st, nil
}

func (s *MemoryStore) CommitState(_ context.Context, delta model.StateDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range delta.Pools {
		s.pools[p.Side] = p
	}
	for _, h := range delta.Holdings {
		s.holdings[holdingKey{h.Side, h.Holder}] = h
	}
	for _, p := range delta.Positions {
		s.positions[p.ID] = p
	}
	if delta.NextPositionID != 0 {
		s.nextID = delta.NextPositionID
	}
	return nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByHolder(_ context.Context, holder string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.Holder == holder {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByPosition(_ context.Context, positionID uint64) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.PositionID == positionID {
			result = append(result, e)
		}
	}
	return result, nil
}
