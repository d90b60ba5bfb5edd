package economy

import "sync"

// SaveQueue is a deduplicated set of entities waiting to be flushed. It has
// its own lock and never takes entity locks.
type SaveQueue struct {
	mu      sync.Mutex
	pending map[uint64]struct{}
}

// NewSaveQueue constructs an empty queue.
func NewSaveQueue() *SaveQueue {
	return &SaveQueue{pending: make(map[uint64]struct{})}
}

// Enqueue adds id and reports whether it was not already pending.
func (q *SaveQueue) Enqueue(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; ok {
		return false
	}
	q.pending[id] = struct{}{}
	return true
}

// DequeueOne removes and returns an arbitrary pending entity.
func (q *SaveQueue) DequeueOne() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id := range q.pending {
		delete(q.pending, id)
		return id, true
	}
	return 0, false
}

// Len returns the number of pending entities.
func (q *SaveQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
