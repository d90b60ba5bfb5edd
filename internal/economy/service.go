// Package economy keeps per-entity wallet balances in memory while entities
// are resident and reconciles them with the backing store by delta.
package economy

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/economy/internal/events"
	"github.com/congo-pay/economy/internal/observability"
	"github.com/congo-pay/economy/internal/store"
	"github.com/congo-pay/economy/internal/wallet"
)

// Options tunes the balance cache.
type Options struct {
	// AllowNegative permits balances below zero. When false every write is
	// clamped at zero.
	AllowNegative bool
	// FlushOnCheckpoint makes Checkpoint flush all resident entities.
	FlushOnCheckpoint bool
	// FlushTimeout bounds the store I/O of a single entity flush. Zero means
	// no bound beyond the caller's context.
	FlushTimeout time.Duration

	Bus     *events.Bus
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Service is the process-scoped balance cache. It owns the resident ledgers,
// the lock table and the save queue.
type Service struct {
	store   store.Gateway
	wallets *wallet.Registry
	bus     *events.Bus
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options

	locks *LockManager
	queue *SaveQueue

	mu      sync.RWMutex
	ledgers map[uint64]*Ledger

	flusherMu sync.Mutex
	flusher   *Flusher
}

// New builds a Service over gw using wallets as the wallet gate.
func New(gw store.Gateway, wallets *wallet.Registry, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   gw,
		wallets: wallets,
		bus:     opts.Bus,
		logger:  logger,
		metrics: opts.Metrics,
		opts:    opts,
		locks:   NewLockManager(),
		queue:   NewSaveQueue(),
		ledgers: make(map[uint64]*Ledger),
	}
}

// EnsureWallet registers a wallet kind. Registering a known wallet is a no-op
// and never touches balances.
func (s *Service) EnsureWallet(id string) error {
	return s.wallets.Ensure(id)
}

// WalletExists reports whether id is a registered wallet.
func (s *Service) WalletExists(id string) bool {
	return s.wallets.Exists(id)
}

// Wallets lists the registered wallet kinds.
func (s *Service) Wallets() []string {
	return s.wallets.List()
}

// IsResident reports whether the entity's ledger is loaded.
func (s *Service) IsResident(id uint64) bool {
	return s.ledger(id) != nil
}

// Resident returns the ids of all resident entities in ascending order.
func (s *Service) Resident() []uint64 {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.ledgers))
	for id := range s.ledgers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PendingSaves returns the number of entities waiting for the flusher.
func (s *Service) PendingSaves() int {
	return s.queue.Len()
}

func (s *Service) ledger(id uint64) *Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgers[id]
}

func (s *Service) clamp(v decimal.Decimal) decimal.Decimal {
	if !s.opts.AllowNegative && v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// markChanged records a mutation applied under the entity's sync lock.
func (s *Service) markChanged(id uint64) {
	s.queue.Enqueue(id)
	s.metrics.QueueDepth(s.queue.Len())
}

func (s *Service) publish(e events.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
