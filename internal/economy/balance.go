package economy

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/economy/internal/events"
)

// mutation computes a wallet's new value from its current one.
type mutation func(old decimal.Decimal) decimal.Decimal

// Balance returns the entity's balance in wallet. Resident entities are
// served from memory; others are read from the store.
func (s *Service) Balance(ctx context.Context, id uint64, wallet string) (decimal.Decimal, error) {
	if !s.wallets.Exists(wallet) {
		return decimal.Zero, unknownWallet(wallet)
	}
	for {
		if v, ok := s.residentBalance(id, wallet); ok {
			return v, nil
		}
		v, redirected, err := s.offlineBalance(ctx, id, wallet)
		if !redirected {
			return v, err
		}
	}
}

// Balances returns every registered wallet's balance for the entity.
func (s *Service) Balances(ctx context.Context, id uint64) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, w := range s.wallets.List() {
		v, err := s.Balance(ctx, id, w)
		if err != nil {
			return nil, err
		}
		out[w] = v
	}
	return out, nil
}

// HasSufficientFunds reports whether the balance covers amount.
func (s *Service) HasSufficientFunds(ctx context.Context, id uint64, wallet string, amount decimal.Decimal) (bool, error) {
	v, err := s.Balance(ctx, id, wallet)
	if err != nil {
		return false, err
	}
	return v.GreaterThanOrEqual(amount), nil
}

// SetBalance replaces the balance with amount, clamped at zero when
// negative balances are disallowed.
func (s *Service) SetBalance(ctx context.Context, id uint64, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.mutate(ctx, id, wallet, "set", func(decimal.Decimal) decimal.Decimal {
		return s.clamp(amount)
	})
}

// AddBalance adds amount to the balance.
func (s *Service) AddBalance(ctx context.Context, id uint64, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.mutate(ctx, id, wallet, "add", func(old decimal.Decimal) decimal.Decimal {
		return s.clamp(old.Add(amount))
	})
}

// SubtractBalance subtracts amount from the balance. The result is clamped at
// zero when negative balances are disallowed.
func (s *Service) SubtractBalance(ctx context.Context, id uint64, wallet string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.mutate(ctx, id, wallet, "subtract", func(old decimal.Decimal) decimal.Decimal {
		return s.clamp(old.Sub(amount))
	})
}

func (s *Service) mutate(ctx context.Context, id uint64, wallet, op string, fn mutation) (decimal.Decimal, error) {
	if !s.wallets.Exists(wallet) {
		return decimal.Zero, unknownWallet(wallet)
	}
	for {
		if v, ok := s.mutateResident(id, wallet, fn); ok {
			return v, nil
		}
		v, redirected, err := s.mutateOffline(ctx, id, wallet, op, fn)
		if !redirected {
			return v, err
		}
	}
}

func (s *Service) residentBalance(id uint64, wallet string) (decimal.Decimal, bool) {
	l := s.ledger(id)
	if l == nil {
		return decimal.Zero, false
	}
	mu := s.locks.Sync(id)
	mu.Lock()
	defer mu.Unlock()
	if l.evicted {
		return decimal.Zero, false
	}
	return l.balance(wallet), true
}

// mutateResident applies fn in memory. It reports false when the entity is
// not resident.
func (s *Service) mutateResident(id uint64, wallet string, fn mutation) (decimal.Decimal, bool) {
	l := s.ledger(id)
	if l == nil {
		return decimal.Zero, false
	}
	mu := s.locks.Sync(id)
	mu.Lock()
	if l.evicted {
		mu.Unlock()
		return decimal.Zero, false
	}
	next := fn(l.balance(wallet))
	old := l.set(wallet, next)
	s.markChanged(id)
	mu.Unlock()

	s.publish(events.BalanceChanged{EntityID: id, Wallet: wallet, New: next, Old: old})
	return next, true
}

// acquireOffline takes the entity's async lock. It reports redirected when
// the entity became resident while waiting, in which case the lock is not held.
func (s *Service) acquireOffline(ctx context.Context, id uint64) (release func(), redirected bool, err error) {
	sem := s.locks.Async(id)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	if s.ledger(id) != nil {
		sem.Release(1)
		return nil, true, nil
	}
	return func() { sem.Release(1) }, false, nil
}

func (s *Service) offlineBalance(ctx context.Context, id uint64, wallet string) (decimal.Decimal, bool, error) {
	release, redirected, err := s.acquireOffline(ctx, id)
	if err != nil || redirected {
		return decimal.Zero, redirected, err
	}
	defer release()

	v, _, err := s.store.Balance(ctx, id, wallet)
	if err != nil {
		s.metrics.PersistError("fetch")
		return decimal.Zero, false, persistenceError("fetch balance", err)
	}
	return v, false, nil
}

// mutateOffline applies fn directly against the store under the entity's
// async lock. The event is published after the lock is released.
func (s *Service) mutateOffline(ctx context.Context, id uint64, wallet, op string, fn mutation) (decimal.Decimal, bool, error) {
	release, redirected, err := s.acquireOffline(ctx, id)
	if err != nil || redirected {
		return decimal.Zero, redirected, err
	}

	old, next, err := s.applyOffline(ctx, id, wallet, op, fn)
	release()
	if err != nil {
		return decimal.Zero, false, err
	}

	s.metrics.OfflineMutation(op)
	s.publish(events.BalanceChanged{EntityID: id, Wallet: wallet, New: next, Old: old})
	return next, false, nil
}

func (s *Service) applyOffline(ctx context.Context, id uint64, wallet, op string, fn mutation) (old, next decimal.Decimal, err error) {
	logger := s.logger.With(slog.Uint64("entity_id", id), slog.String("wallet", wallet), slog.String("op", op))

	old, _, err = s.store.Balance(ctx, id, wallet)
	if err != nil {
		s.metrics.PersistError("fetch")
		logger.Error("offline balance read failed", slog.Any("error", err))
		return old, next, persistenceError("fetch balance", err)
	}
	next = fn(old)
	if err := s.store.Upsert(ctx, id, wallet, next); err != nil {
		s.metrics.PersistError("upsert")
		logger.Error("offline balance write failed", slog.Any("error", err))
		return old, next, persistenceError("upsert balance", err)
	}
	return old, next, nil
}
