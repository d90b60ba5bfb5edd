package economy

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ledger is the in-memory balance state of one resident entity. All fields
// are guarded by the entity's sync lock.
type Ledger struct {
	cached   map[string]decimal.Decimal
	baseline map[string]decimal.Decimal
	dirty    bool
	// version increments on every mutation so a flush can tell whether the
	// ledger changed while its store I/O was running.
	version uint64
	// evicted is set once the ledger left the resident map; callers holding a
	// stale pointer must fall back to the store path.
	evicted bool
	// leaving marks a ledger whose eviction flush failed. It is evicted by the
	// first flush that leaves it clean.
	leaving bool
}

func newLedger(loaded map[string]decimal.Decimal) *Ledger {
	l := &Ledger{
		cached:   make(map[string]decimal.Decimal, len(loaded)),
		baseline: make(map[string]decimal.Decimal, len(loaded)),
	}
	for w, v := range loaded {
		l.cached[w] = v
		l.baseline[w] = v
	}
	return l
}

func (l *Ledger) balance(wallet string) decimal.Decimal {
	return l.cached[wallet]
}

// set stores v, marks the ledger dirty and returns the previous value.
func (l *Ledger) set(wallet string, v decimal.Decimal) decimal.Decimal {
	old := l.cached[wallet]
	l.cached[wallet] = v
	l.dirty = true
	l.version++
	return old
}

type walletDelta struct {
	wallet string
	delta  decimal.Decimal
	cached decimal.Decimal
}

// deltas returns the net change of every wallet since the last successful
// reconciliation, skipping unchanged wallets.
func (l *Ledger) deltas() []walletDelta {
	out := make([]walletDelta, 0, len(l.cached))
	for w, v := range l.cached {
		d := v.Sub(l.baseline[w])
		if d.IsZero() {
			continue
		}
		out = append(out, walletDelta{wallet: w, delta: d, cached: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].wallet < out[j].wallet })
	return out
}

func (l *Ledger) snapshot() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.cached))
	for w, v := range l.cached {
		out[w] = v
	}
	return out
}
