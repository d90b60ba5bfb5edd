package economy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/economy/internal/events"
)

func TestTransferMovesFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.store.seed(t, 111, "credits", 150)
	f.join(t, 111, 222)

	ok, err := f.svc.Transfer(ctx, 111, 222, "credits", dec(30))
	require.NoError(t, err)
	require.True(t, ok)

	from, _ := f.svc.Balance(ctx, 111, "credits")
	to, _ := f.svc.Balance(ctx, 222, "credits")
	requireAmount(t, 120, from)
	requireAmount(t, 30, to)

	assert.Equal(t, []string{
		events.KindBalanceChanged,
		events.KindBalanceChanged,
		events.KindFundsTransferred,
	}, f.rec.kinds())
	transferred := f.rec.all()[2].(events.FundsTransferred)
	assert.Equal(t, uint64(111), transferred.From)
	assert.Equal(t, uint64(222), transferred.To)
	requireAmount(t, 30, transferred.Amount)

	assert.Equal(t, 2, f.svc.PendingSaves())
	for _, id := range []uint64{111, 222} {
		l := f.svc.ledger(id)
		assert.True(t, l.dirty, "entity %d should be dirty", id)
	}
}

func TestTransferSeesPartyReloadedWhileWaitingForLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.store.seed(t, 111, "credits", 10)
	f.store.seed(t, 222, "credits", 5)
	f.join(t, 111, 222)

	// Block the transfer on 111's lock after it has looked up both ledgers.
	mu := f.svc.locks.Sync(111)
	mu.Lock()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := f.svc.Transfer(ctx, 111, 222, "credits", dec(4))
		done <- result{ok, err}
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, f.svc.OnEntityBecameNonResident(ctx, 222))
	require.NoError(t, f.svc.OnEntityBecameResident(ctx, 222))
	mu.Unlock()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.True(t, r.ok)
	case <-time.After(2 * time.Second):
		t.Fatal("transfer did not complete")
	}

	from, _ := f.svc.Balance(ctx, 111, "credits")
	to, _ := f.svc.Balance(ctx, 222, "credits")
	requireAmount(t, 6, from)
	requireAmount(t, 9, to)
}

func TestTransferRejectsNonResidentParty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.store.seed(t, 111, "credits", 150)
	f.store.seed(t, 222, "credits", 5)
	f.join(t, 111)

	ok, err := f.svc.Transfer(ctx, 111, 222, "credits", dec(30))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotResident)

	from, _ := f.svc.Balance(ctx, 111, "credits")
	requireAmount(t, 150, from)
	requireAmount(t, 5, f.store.stored(t, 222, "credits"))
	assert.Empty(t, f.rec.kinds())
	assert.Zero(t, f.svc.PendingSaves())
}

func TestTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.store.seed(t, 111, "credits", 20)
	f.join(t, 111, 222)

	ok, err := f.svc.Transfer(ctx, 111, 222, "credits", dec(30))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	from, _ := f.svc.Balance(ctx, 111, "credits")
	requireAmount(t, 20, from)
	assert.Empty(t, f.rec.kinds())
}

func TestTransferAllowsOverdraftWhenNegativeAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AllowNegative: true})
	f.join(t, 111, 222)

	ok, err := f.svc.Transfer(ctx, 111, 222, "credits", dec(30))
	require.NoError(t, err)
	require.True(t, ok)

	from, _ := f.svc.Balance(ctx, 111, "credits")
	requireAmount(t, -30, from)
}

func TestTransferValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.join(t, 111, 222)

	_, err := f.svc.Transfer(ctx, 111, 222, "gems", dec(1))
	assert.ErrorIs(t, err, ErrUnknownWallet)
	_, err = f.svc.Transfer(ctx, 111, 222, "credits", dec(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Transfer(ctx, 111, 222, "credits", dec(-5))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.Transfer(ctx, 111, 111, "credits", dec(5))
	assert.ErrorIs(t, err, ErrSelfTransfer)

	assert.Empty(t, f.rec.kinds())
}

func TestConcurrentOppositeTransfersConserveTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.store.seed(t, 111, "credits", 1000)
	f.store.seed(t, 222, "credits", 1000)
	f.join(t, 111, 222)

	const rounds = 200
	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan string, 1)

	// Observer: both balances are read under the same pair lock, so a torn
	// transfer would show up as a total other than 2000.
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			unlock := f.svc.locks.LockPair(111, 222)
			total := f.svc.ledger(111).balance("credits").Add(f.svc.ledger(222).balance("credits"))
			unlock()
			if !total.Equal(dec(2000)) {
				select {
				case violations <- total.String():
				default:
				}
				return
			}
		}
	}()

	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Transfer(ctx, 111, 222, "credits", dec(3))
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.Transfer(ctx, 222, 111, "credits", dec(2))
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfers deadlocked")
	}
	close(stop)

	select {
	case total := <-violations:
		t.Fatalf("observed torn transfer, total=%s", total)
	default:
	}

	a, _ := f.svc.Balance(ctx, 111, "credits")
	b, _ := f.svc.Balance(ctx, 222, "credits")
	requireAmount(t, 2000, a.Add(b))
}

func TestOverlappingTransfersDoNotDeadlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{AllowNegative: true})
	ids := []uint64{1, 2, 3, 4}
	f.join(t, ids...)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				from := ids[(w+i)%len(ids)]
				to := ids[(w+i+1+w%3)%len(ids)]
				if from == to {
					continue
				}
				_, err := f.svc.Transfer(ctx, from, to, "credits", dec(1))
				assert.NoError(t, err)
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("transfers deadlocked")
	}

	total := dec(0)
	for _, id := range ids {
		v, err := f.svc.Balance(ctx, id, "credits")
		require.NoError(t, err)
		total = total.Add(v)
	}
	requireAmount(t, 0, total)
}
