package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/economy/internal/events"
)

// OnEntityBecameResident loads the entity's ledger from the store. An entity
// without rows is initialized with a zero row per registered wallet. On store
// failure the entity stays non-resident.
func (s *Service) OnEntityBecameResident(ctx context.Context, id uint64) error {
	sem := s.locks.Async(id)
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	if l := s.ledger(id); l != nil {
		mu := s.locks.Sync(id)
		mu.Lock()
		l.leaving = false
		mu.Unlock()
		return nil
	}

	logger := s.logger.With(slog.Uint64("entity_id", id))

	loaded, err := s.load(ctx, id)
	if err != nil {
		logger.Error("load ledger failed", slog.Any("error", err))
		return err
	}

	s.mu.Lock()
	s.ledgers[id] = newLedger(loaded)
	n := len(s.ledgers)
	s.mu.Unlock()
	s.metrics.Residents(n)

	logger.Debug("ledger loaded", slog.Int("wallets", len(loaded)))
	s.publish(events.EntityLoaded{EntityID: id})
	return nil
}

func (s *Service) load(ctx context.Context, id uint64) (map[string]decimal.Decimal, error) {
	rows, err := s.store.Balances(ctx, id)
	if err != nil {
		s.metrics.PersistError("fetch_all")
		return nil, persistenceError("fetch balances", err)
	}

	loaded := make(map[string]decimal.Decimal)
	if len(rows) == 0 {
		for _, w := range s.wallets.List() {
			if err := s.store.Upsert(ctx, id, w, decimal.Zero); err != nil {
				s.metrics.PersistError("upsert")
				return nil, persistenceError("create balance", err)
			}
			loaded[w] = decimal.Zero
		}
		return loaded, nil
	}
	for _, r := range rows {
		// Rows for wallets this process does not know are left untouched.
		if s.wallets.Exists(r.Wallet) {
			loaded[r.Wallet] = r.Amount
		}
	}
	return loaded, nil
}

// OnEntityBecameNonResident runs the final reconciliation for the entity and
// discards its ledger. When the final flush fails the ledger stays resident,
// marked as leaving, so the flusher can retry and evict it later.
func (s *Service) OnEntityBecameNonResident(ctx context.Context, id uint64) error {
	if s.ledger(id) == nil {
		return nil
	}
	sem := s.locks.Async(id)
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	l := s.ledger(id)
	if l == nil {
		return nil
	}
	return s.evictLocked(ctx, id, l)
}

// evictLocked detaches l and flushes it. The caller holds id's async lock.
func (s *Service) evictLocked(ctx context.Context, id uint64, l *Ledger) error {
	s.mu.Lock()
	delete(s.ledgers, id)
	s.mu.Unlock()

	mu := s.locks.Sync(id)
	mu.Lock()
	l.evicted = true
	mu.Unlock()

	if _, err := s.flushLocked(ctx, id, l); err != nil {
		mu.Lock()
		l.evicted = false
		l.leaving = true
		mu.Unlock()

		s.mu.Lock()
		s.ledgers[id] = l
		s.mu.Unlock()
		s.markChanged(id)

		s.logger.Error("eviction flush failed, ledger kept resident",
			slog.Uint64("entity_id", id), slog.Any("error", err))
		return err
	}

	s.metrics.Residents(len(s.Resident()))
	s.logger.Debug("ledger evicted", slog.Uint64("entity_id", id))
	return nil
}

// Save flushes one resident entity. It reports false without touching the
// store when the entity is not resident or has nothing to persist.
func (s *Service) Save(ctx context.Context, id uint64) (bool, error) {
	if s.ledger(id) == nil {
		return false, nil
	}
	if s.opts.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.FlushTimeout)
		defer cancel()
	}

	sem := s.locks.Async(id)
	if err := sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer sem.Release(1)

	l := s.ledger(id)
	if l == nil {
		return false, nil
	}
	saved, err := s.flushLocked(ctx, id, l)
	if err != nil {
		return saved, err
	}

	mu := s.locks.Sync(id)
	mu.Lock()
	finishLeave := l.leaving && !l.dirty
	mu.Unlock()
	if finishLeave {
		return saved, s.evictLocked(ctx, id, l)
	}
	return saved, nil
}

// FlushAllResident saves every resident entity and returns how many were
// written. Failures are logged per entity and do not stop the others.
func (s *Service) FlushAllResident(ctx context.Context) int {
	saved := 0
	for _, id := range s.Resident() {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.Save(ctx, id)
		if err != nil {
			s.logger.Warn("flush failed", slog.Uint64("entity_id", id), slog.Any("error", err))
			continue
		}
		if ok {
			saved++
		}
	}
	return saved
}

// Checkpoint handles a batch checkpoint such as the end of a round. It
// flushes all resident entities when FlushOnCheckpoint is set.
func (s *Service) Checkpoint(ctx context.Context) int {
	if !s.opts.FlushOnCheckpoint {
		return 0
	}
	return s.FlushAllResident(ctx)
}

// flushLocked reconciles l and publishes EntitySaved when anything was
// written. The caller holds id's async lock.
func (s *Service) flushLocked(ctx context.Context, id uint64, l *Ledger) (bool, error) {
	start := time.Now()
	saved, err := s.reconcile(ctx, id, l)
	switch {
	case err != nil:
		s.metrics.Flush("failed", time.Since(start).Seconds())
	case saved:
		s.metrics.Flush("saved", time.Since(start).Seconds())
		s.publish(events.EntitySaved{EntityID: id})
	default:
		s.metrics.Flush("clean", 0)
	}
	return saved, err
}

type reconciled struct {
	wallet   string
	snapshot decimal.Decimal
	value    decimal.Decimal
}

// reconcile applies each wallet's net delta on top of the store's current
// value instead of overwriting it, so writes made by others in the meantime
// survive. Deltas are snapshotted under the sync lock, store I/O runs without
// it, and results are applied under the lock again. Mutations made during the
// I/O are kept on top of the reconciled value and keep the ledger dirty.
func (s *Service) reconcile(ctx context.Context, id uint64, l *Ledger) (bool, error) {
	mu := s.locks.Sync(id)

	mu.Lock()
	if !l.dirty {
		mu.Unlock()
		return false, nil
	}
	version := l.version
	deltas := l.deltas()
	mu.Unlock()

	done := make([]reconciled, 0, len(deltas))
	var errs []error
	for _, d := range deltas {
		current, _, err := s.store.Balance(ctx, id, d.wallet)
		if err != nil {
			s.metrics.PersistError("fetch")
			errs = append(errs, fmt.Errorf("wallet %q: %w", d.wallet, err))
			continue
		}
		value := s.clamp(current.Add(d.delta))
		if err := s.store.Upsert(ctx, id, d.wallet, value); err != nil {
			s.metrics.PersistError("upsert")
			errs = append(errs, fmt.Errorf("wallet %q: %w", d.wallet, err))
			continue
		}
		done = append(done, reconciled{wallet: d.wallet, snapshot: d.cached, value: value})
	}

	mu.Lock()
	for _, r := range done {
		drift := l.cached[r.wallet].Sub(r.snapshot)
		l.baseline[r.wallet] = r.value
		l.cached[r.wallet] = s.clamp(r.value.Add(drift))
	}
	if len(errs) == 0 && l.version == version {
		l.dirty = false
	}
	retry := len(errs) > 0 && !l.evicted
	mu.Unlock()

	if retry {
		s.markChanged(id)
	}
	if len(errs) > 0 {
		return len(done) > 0, persistenceError("reconcile", errors.Join(errs...))
	}
	return len(done) > 0, nil
}
