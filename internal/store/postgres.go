package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/zdte-vault/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded SQL migrations in lexicographic order and
// records each one in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("store: check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", name, err)
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("store: apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadState(ctx context.Context) (*model.State, error) {
	st := &model.State{NextPositionID: 1}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if st.Pools, err = loadPools(ctx, tx); err != nil {
			return err
		}
		if st.Holdings, err = loadHoldings(ctx, tx); err != nil {
			return err
		}
		if st.Positions, err = loadPositions(ctx, tx); err != nil {
			return err
		}

		var next int64
		err = tx.QueryRow(ctx, `SELECT value FROM vault_meta WHERE key = 'next_position_id'`).Scan(&next)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("next position id: %w", err)
		}
		if next > 0 {
			st.NextPositionID = uint64(next)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: load state: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) CommitState(ctx context.Context, delta model.StateDelta) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range delta.Pools {
			_, err := tx.Exec(ctx,
				`INSERT INTO vault_pools (side, asset, total_assets, total_shares, locked_assets, updated_at)
				 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, NOW())
				 ON CONFLICT (side) DO UPDATE
				 SET total_assets = EXCLUDED.total_assets,
				     total_shares = EXCLUDED.total_shares,
				     locked_assets = EXCLUDED.locked_assets,
				     updated_at = NOW()`,
				string(p.Side), p.Asset,
				p.TotalAssets.String(), p.TotalShares.String(), p.LockedAssets.String(),
			)
			if err != nil {
				return fmt.Errorf("upsert pool %s: %w", p.Side, err)
			}
		}

		for _, h := range delta.Holdings {
			_, err := tx.Exec(ctx,
				`INSERT INTO vault_holdings (side, holder, shares, updated_at)
				 VALUES ($1, $2, $3::NUMERIC, NOW())
				 ON CONFLICT (side, holder) DO UPDATE
				 SET shares = EXCLUDED.shares, updated_at = NOW()`,
				string(h.Side), h.Holder, h.Shares.String(),
			)
			if err != nil {
				return fmt.Errorf("upsert holding %s/%s: %w", h.Side, h.Holder, err)
			}
		}

		for _, p := range delta.Positions {
			_, err := tx.Exec(ctx,
				`INSERT INTO vault_positions (id, owner, symbol, kind, is_put, amount, strike, short_strike,
				                              premium, locked_amount, locked_pool, opened_at, expiry,
				                              settled, settlement_price, payout, settled_at)
				 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
				         $9::NUMERIC, $10::NUMERIC, $11, $12, $13,
				         $14, $15::NUMERIC, $16::NUMERIC, $17)
				 ON CONFLICT (id) DO UPDATE
				 SET settled = EXCLUDED.settled,
				     settlement_price = EXCLUDED.settlement_price,
				     payout = EXCLUDED.payout,
				     settled_at = EXCLUDED.settled_at`,
				int64(p.ID), p.Owner, p.Symbol, string(p.Kind), p.IsPut,
				p.Amount.String(), p.Strike.String(), p.ShortStrike.String(),
				p.Premium.String(), p.LockedAmount.String(), string(p.LockedPool), p.OpenedAt, p.Expiry,
				p.Settled, p.SettlementPrice.String(), p.Payout.String(), p.SettledAt,
			)
			if err != nil {
				return fmt.Errorf("upsert position %d: %w", p.ID, err)
			}
		}

		if delta.NextPositionID != 0 {
			_, err := tx.Exec(ctx,
				`INSERT INTO vault_meta (key, value) VALUES ('next_position_id', $1)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
				int64(delta.NextPositionID),
			)
			if err != nil {
				return fmt.Errorf("next position id: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: commit state: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries (id, kind, holder, side, amount, shares, position_id, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		e.ID, e.Kind, e.Holder, string(e.Side),
		e.Amount.String(), e.Shares.String(), int64(e.PositionID),
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetLedgerEntriesByHolder(ctx context.Context, holder string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, kind, holder, side, amount::TEXT, shares::TEXT, position_id, timestamp
		 FROM ledger_entries WHERE holder = $1 ORDER BY timestamp`, holder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByPosition(ctx context.Context, positionID uint64) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, kind, holder, side, amount::TEXT, shares::TEXT, position_id, timestamp
		 FROM ledger_entries WHERE position_id = $1 ORDER BY timestamp`, int64(positionID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func loadPools(ctx context.Context, tx pgx.Tx) ([]model.Pool, error) {
	rows, err := tx.Query(ctx,
		`SELECT side, asset, total_assets::TEXT, total_shares::TEXT, locked_assets::TEXT
		 FROM vault_pools ORDER BY side`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		var p model.Pool
		var side, total, shares, locked string
		if err := rows.Scan(&side, &p.Asset, &total, &shares, &locked); err != nil {
			return nil, err
		}
		p.Side = model.PoolSide(side)
		if err := parseNumerics(
			numeric{&p.TotalAssets, total},
			numeric{&p.TotalShares, shares},
			numeric{&p.LockedAssets, locked},
		); err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func loadHoldings(ctx context.Context, tx pgx.Tx) ([]model.Holding, error) {
	rows, err := tx.Query(ctx,
		`SELECT side, holder, shares::TEXT FROM vault_holdings ORDER BY side, holder`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var side, shares string
		if err := rows.Scan(&side, &h.Holder, &shares); err != nil {
			return nil, err
		}
		h.Side = model.PoolSide(side)
		if err := parseNumerics(numeric{&h.Shares, shares}); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func loadPositions(ctx context.Context, tx pgx.Tx) ([]model.Position, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, owner, symbol, kind, is_put,
		        amount::TEXT, strike::TEXT, short_strike::TEXT, premium::TEXT,
		        locked_amount::TEXT, locked_pool, opened_at, expiry,
		        settled, settlement_price::TEXT, payout::TEXT, settled_at
		 FROM vault_positions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var id int64
		var kind, lockedPool string
		var amount, strike, short, premium, locked, settlement, payout string
		if err := rows.Scan(&id, &p.Owner, &p.Symbol, &kind, &p.IsPut,
			&amount, &strike, &short, &premium,
			&locked, &lockedPool, &p.OpenedAt, &p.Expiry,
			&p.Settled, &settlement, &payout, &p.SettledAt); err != nil {
			return nil, err
		}
		p.ID = uint64(id)
		p.Kind = model.PositionKind(kind)
		p.LockedPool = model.PoolSide(lockedPool)
		if err := parseNumerics(
			numeric{&p.Amount, amount},
			numeric{&p.Strike, strike},
			numeric{&p.ShortStrike, short},
			numeric{&p.Premium, premium},
			numeric{&p.LockedAmount, locked},
			numeric{&p.SettlementPrice, settlement},
			numeric{&p.Payout, payout},
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// scanLedgerEntries reads pgx rows into LedgerEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var side, amount, shares string
		var positionID int64

		if err := rows.Scan(&e.ID, &e.Kind, &e.Holder, &side,
			&amount, &shares, &positionID, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Side = model.PoolSide(side)
		e.PositionID = uint64(positionID)
		if err := parseNumerics(numeric{&e.Amount, amount}, numeric{&e.Shares, shares}); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// numeric pairs a NUMERIC column read as text with its destination.
type numeric struct {
	dst *decimal.Decimal
	src string
}

func parseNumerics(ns ...numeric) error {
	for _, n := range ns {
		v, err := decimal.NewFromString(n.src)
		if err != nil {
			return fmt.Errorf("store: parse numeric %q: %w", n.src, err)
		}
		*n.dst = v
	}
	return nil
}
