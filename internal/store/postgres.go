package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS balances (
    id         BIGSERIAL PRIMARY KEY,
    entity_id  BIGINT      NOT NULL,
    wallet     TEXT        NOT NULL,
    amount     NUMERIC     NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS balances_entity_wallet_idx ON balances (entity_id, wallet);`

// Postgres persists balances in PostgreSQL. Amounts travel as text so no
// precision is lost between NUMERIC and decimal.Decimal.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the balances table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure balances schema: %w", err)
	}
	return nil
}

func (p *Postgres) Balance(ctx context.Context, entityID uint64, wallet string) (decimal.Decimal, bool, error) {
	const query = `SELECT amount::text FROM balances WHERE entity_id = $1 AND wallet = $2`
	var raw string
	if err := p.db.QueryRow(ctx, query, dbID(entityID), wallet).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("select balance: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return amount, true, nil
}

func (p *Postgres) Balances(ctx context.Context, entityID uint64) ([]Record, error) {
	const query = `SELECT wallet, amount::text, created_at, updated_at
        FROM balances WHERE entity_id = $1 ORDER BY wallet`
	rows, err := p.db.Query(ctx, query, dbID(entityID))
	if err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			raw       string
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(&rec.Wallet, &raw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", raw, err)
		}
		rec.EntityID = entityID
		rec.CreatedAt = createdAt.UTC()
		rec.UpdatedAt = updatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return out, nil
}

func (p *Postgres) Upsert(ctx context.Context, entityID uint64, wallet string, amount decimal.Decimal) error {
	if wallet == "" {
		return ErrInvalidWallet
	}
	const query = `INSERT INTO balances (entity_id, wallet, amount, created_at, updated_at)
        VALUES ($1, $2, $3::text::numeric, now(), now())
        ON CONFLICT (entity_id, wallet) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()`
	if _, err := p.db.Exec(ctx, query, dbID(entityID), wallet, amount.String()); err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// Ping checks connectivity to the database.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}
