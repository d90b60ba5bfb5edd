package economy

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

type entityLocks struct {
	sync  sync.Mutex
	async *semaphore.Weighted
}

// LockManager hands out per-entity locks. Entries are created on first use
// and never removed, so a lock obtained for an id stays valid for the life of
// the process.
type LockManager struct {
	mu    sync.Mutex
	locks map[uint64]*entityLocks
}

// NewLockManager constructs an empty lock table.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[uint64]*entityLocks)}
}

func (m *LockManager) entry(id uint64) *entityLocks {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &entityLocks{async: semaphore.NewWeighted(1)}
		m.locks[id] = l
	}
	return l
}

// Sync returns the mutex guarding the entity's in-memory ledger.
func (m *LockManager) Sync(id uint64) *sync.Mutex {
	return &m.entry(id).sync
}

// Async returns the binary semaphore serializing store I/O for the entity.
func (m *LockManager) Async(id uint64) *semaphore.Weighted {
	return m.entry(id).async
}

// LockPair acquires the sync locks of a and b in ascending id order and
// returns a function releasing both.
func (m *LockManager) LockPair(a, b uint64) (unlock func()) {
	if a == b {
		mu := m.Sync(a)
		mu.Lock()
		return mu.Unlock
	}
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	first, second := m.Sync(lo), m.Sync(hi)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}

// size reports how many entities have a lock entry.
func (m *LockManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
