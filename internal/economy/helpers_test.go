package economy

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/economy/internal/events"
	"github.com/congo-pay/economy/internal/logging"
	"github.com/congo-pay/economy/internal/store"
	"github.com/congo-pay/economy/internal/wallet"
)

// fakeStore wraps the memory store with call counting and failure injection.
type fakeStore struct {
	*store.Memory

	mu         sync.Mutex
	reads      int
	writes     int
	failFetch  error
	failUpsert error
	onBalance  func(entityID uint64, wallet string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{Memory: store.NewMemory()}
}

func (f *fakeStore) Balance(ctx context.Context, entityID uint64, w string) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	f.reads++
	hook := f.onBalance
	f.mu.Unlock()
	if hook != nil {
		hook(entityID, w)
	}
	f.mu.Lock()
	err := f.failFetch
	f.mu.Unlock()
	if err != nil {
		return decimal.Zero, false, err
	}
	return f.Memory.Balance(ctx, entityID, w)
}

func (f *fakeStore) Balances(ctx context.Context, entityID uint64) ([]store.Record, error) {
	f.mu.Lock()
	f.reads++
	err := f.failFetch
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Memory.Balances(ctx, entityID)
}

func (f *fakeStore) Upsert(ctx context.Context, entityID uint64, w string, amount decimal.Decimal) error {
	f.mu.Lock()
	f.writes++
	err := f.failUpsert
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.Upsert(ctx, entityID, w, amount)
}

func (f *fakeStore) setFailUpsert(err error) {
	f.mu.Lock()
	f.failUpsert = err
	f.mu.Unlock()
}

func (f *fakeStore) setFailFetch(err error) {
	f.mu.Lock()
	f.failFetch = err
	f.mu.Unlock()
}

func (f *fakeStore) counts() (reads, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads, f.writes
}

func (f *fakeStore) resetCounts() {
	f.mu.Lock()
	f.reads, f.writes = 0, 0
	f.mu.Unlock()
}

// seed writes a row directly, bypassing counters and failure injection.
func (f *fakeStore) seed(t *testing.T, entityID uint64, w string, amount int64) {
	t.Helper()
	require.NoError(t, f.Memory.Upsert(context.Background(), entityID, w, decimal.NewFromInt(amount)))
}

func (f *fakeStore) stored(t *testing.T, entityID uint64, w string) decimal.Decimal {
	t.Helper()
	v, _, err := f.Memory.Balance(context.Background(), entityID, w)
	require.NoError(t, err)
	return v
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind())
	}
	return out
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type fixture struct {
	svc   *Service
	store *fakeStore
	rec   *recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	wallets, err := wallet.NewRegistry("credits")
	require.NoError(t, err)

	fs := newFakeStore()
	rec := &recorder{}
	bus := events.NewBus(logging.Discard())
	bus.Subscribe(rec.handle)

	opts.Bus = bus
	opts.Logger = logging.Discard()
	svc := New(fs, wallets, opts)
	t.Cleanup(svc.StopFlusher)
	return &fixture{svc: svc, store: fs, rec: rec}
}

func (f *fixture) join(t *testing.T, ids ...uint64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.svc.OnEntityBecameResident(context.Background(), id))
	}
	f.rec.reset()
	f.store.resetCounts()
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requireAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "expected %d, got %s", want, got)
}
