package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryKey struct {
	entity uint64
	wallet string
}

// Memory keeps balance rows in process memory.
type Memory struct {
	mu   sync.RWMutex
	rows map[memoryKey]Record
	now  func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[memoryKey]Record), now: func() time.Time { return time.Now().UTC() }}
}

func (m *Memory) Balance(ctx context.Context, entityID uint64, wallet string) (decimal.Decimal, bool, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[memoryKey{entityID, wallet}]
	if !ok {
		return decimal.Zero, false, nil
	}
	return rec.Amount, true, nil
}

func (m *Memory) Balances(ctx context.Context, entityID uint64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Record, 0, 2)
	for k, rec := range m.rows {
		if k.entity == entityID {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, entityID uint64, wallet string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if wallet == "" {
		return ErrInvalidWallet
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{entityID, wallet}
	rec, ok := m.rows[key]
	if !ok {
		rec = Record{EntityID: entityID, Wallet: wallet, CreatedAt: now}
	}
	rec.Amount = amount
	rec.UpdatedAt = now
	m.rows[key] = rec
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
