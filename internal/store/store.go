// Package store persists absolute wallet balances per entity. Stores never do
// delta math; callers read, compute and upsert.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidWallet is returned when a row is addressed with an empty wallet id.
var ErrInvalidWallet = errors.New("wallet id is required")

// Record is one persisted balance row, unique on (EntityID, Wallet).
type Record struct {
	EntityID  uint64
	Wallet    string
	Amount    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Gateway is the persistence capability the balance cache consumes.
type Gateway interface {
	// Balance returns the stored amount, or false when no row exists.
	Balance(ctx context.Context, entityID uint64, wallet string) (decimal.Decimal, bool, error)
	// Balances returns every row stored for the entity.
	Balances(ctx context.Context, entityID uint64) ([]Record, error)
	// Upsert stores amount as the absolute balance for (entityID, wallet).
	Upsert(ctx context.Context, entityID uint64, wallet string, amount decimal.Decimal) error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// dbID maps an entity id onto a signed BIGINT column. The conversion is a
// bit-for-bit reinterpretation so ids above MaxInt64 round-trip unchanged.
func dbID(id uint64) int64 { return int64(id) }

func fromDBID(id int64) uint64 { return uint64(id) }
