package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives published events.
type Handler func(Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Bus delivers events synchronously to every subscriber. Delivery order
// between subscribers is not guaranteed and a panicking subscriber does not
// prevent the others from running.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
	logger *slog.Logger
}

// NewBus constructs an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers fn and returns a function removing it again.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// OnBalanceChanged subscribes to BalanceChanged events only.
func (b *Bus) OnBalanceChanged(fn func(BalanceChanged)) func() {
	return b.Subscribe(func(e Event) {
		if ev, ok := e.(BalanceChanged); ok {
			fn(ev)
		}
	})
}

// OnFundsTransferred subscribes to FundsTransferred events only.
func (b *Bus) OnFundsTransferred(fn func(FundsTransferred)) func() {
	return b.Subscribe(func(e Event) {
		if ev, ok := e.(FundsTransferred); ok {
			fn(ev)
		}
	})
}

// OnEntityLoaded subscribes to EntityLoaded events only.
func (b *Bus) OnEntityLoaded(fn func(EntityLoaded)) func() {
	return b.Subscribe(func(e Event) {
		if ev, ok := e.(EntityLoaded); ok {
			fn(ev)
		}
	})
}

// OnEntitySaved subscribes to EntitySaved events only.
func (b *Bus) OnEntitySaved(fn func(EntitySaved)) func() {
	return b.Subscribe(func(e Event) {
		if ev, ok := e.(EntitySaved); ok {
			fn(ev)
		}
	})
}

// Publish delivers e to a snapshot of the current subscribers. A nil bus
// drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				slog.String("kind", e.Kind()),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	s.fn(e)
}
