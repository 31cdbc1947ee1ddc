// Package store defines the persistence interface for the vault.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/zdte-vault/internal/model"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Vault state ---

	// LoadState returns every pool, holding and position, and the next
	// position id. An empty store returns an empty state with
	// NextPositionID 1.
	LoadState(ctx context.Context) (*model.State, error)

	// CommitState upserts every record in delta in one transaction.
	CommitState(ctx context.Context, delta model.StateDelta) error

	// --- Immutable ledger ---

	// InsertLedgerEntry appends an immutable operation record.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByHolder returns a holder's records, oldest first.
	GetLedgerEntriesByHolder(ctx context.Context, holder string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByPosition returns the records of one position.
	GetLedgerEntriesByPosition(ctx context.Context, positionID uint64) ([]model.LedgerEntry, error)
}
