package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/zdte-vault/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for ledger history. Writes go to the primary store and invalidate
// the cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := s.primary.InsertLedgerEntry(ctx, entry); err != nil {
		return err
	}
	keys := []string{holderKey(entry.Holder)}
	if entry.PositionID != 0 {
		keys = append(keys, positionKey(entry.PositionID))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetLedgerEntriesByHolder(ctx context.Context, holder string) ([]model.LedgerEntry, error) {
	key := holderKey(holder)
	if entries, ok := s.cached(ctx, key); ok {
		return entries, nil
	}

	entries, err := s.primary.GetLedgerEntriesByHolder(ctx, holder)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, entries)
	return entries, nil
}

func (s *CachedStore) GetLedgerEntriesByPosition(ctx context.Context, positionID uint64) ([]model.LedgerEntry, error) {
	key := positionKey(positionID)
	if entries, ok := s.cached(ctx, key); ok {
		return entries, nil
	}

	entries, err := s.primary.GetLedgerEntriesByPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, entries)
	return entries, nil
}

// --- Passthrough (not cached) ---

// LoadState is only called at startup and always reads the primary.
func (s *CachedStore) LoadState(ctx context.Context) (*model.State, error) {
	return s.primary.LoadState(ctx)
}

func (s *CachedStore) CommitState(ctx context.Context, delta model.StateDelta) error {
	return s.primary.CommitState(ctx, delta)
}

// --- Cache helpers ---

func (s *CachedStore) cached(ctx context.Context, key string) ([]model.LedgerEntry, bool) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []model.LedgerEntry
	if json.Unmarshal(data, &entries) != nil {
		return nil, false
	}
	return entries, true
}

func (s *CachedStore) fill(ctx context.Context, key string, entries []model.LedgerEntry) {
	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func holderKey(holder string) string { return fmt.Sprintf("ledger:holder:%s", holder) }
func positionKey(id uint64) string    { return fmt.Sprintf("ledger:position:%d", id) }
