package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS balances (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id  INTEGER NOT NULL,
    wallet     TEXT    NOT NULL,
    amount     TEXT    NOT NULL DEFAULT '0',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS balances_entity_wallet_idx ON balances (entity_id, wallet);`

// SQLite persists balances in a SQLite database opened with the modernc
// driver. Amounts are stored as canonical decimal text.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite wraps an open SQLite handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// EnsureSchema creates the balances table when missing.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure balances schema: %w", err)
	}
	return nil
}

func (s *SQLite) Balance(ctx context.Context, entityID uint64, wallet string) (decimal.Decimal, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE entity_id = ? AND wallet = ?`, dbID(entityID), wallet).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("select balance: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return amount, true, nil
}

func (s *SQLite) Balances(ctx context.Context, entityID uint64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, wallet, amount, created_at, updated_at FROM balances WHERE entity_id = ? ORDER BY wallet`,
		dbID(entityID))
	if err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id                   int64
			raw                  string
			createdAt, updatedAt int64
			rec                  Record
		)
		if err := rows.Scan(&id, &rec.Wallet, &raw, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", raw, err)
		}
		rec.EntityID = fromDBID(id)
		rec.CreatedAt = fromMillis(createdAt)
		rec.UpdatedAt = fromMillis(updatedAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return out, nil
}

func (s *SQLite) Upsert(ctx context.Context, entityID uint64, wallet string, amount decimal.Decimal) error {
	if wallet == "" {
		return ErrInvalidWallet
	}
	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx, `INSERT INTO balances (entity_id, wallet, amount, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (entity_id, wallet) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		dbID(entityID), wallet, amount.String(), now, now)
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
