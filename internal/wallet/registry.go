package wallet

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrEmptyID is returned when a wallet is registered with a blank identifier.
var ErrEmptyID = errors.New("wallet id must not be empty")

// Registry is the set of wallet kinds balances may be kept in. Wallets are
// additive for the lifetime of the process.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]struct{}
}

// NewRegistry builds a registry seeded with the provided wallet kinds.
func NewRegistry(kinds ...string) (*Registry, error) {
	r := &Registry{kinds: make(map[string]struct{}, len(kinds))}
	for _, k := range kinds {
		if err := r.Ensure(k); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Normalize returns the form under which id is registered.
func Normalize(id string) string {
	return strings.TrimSpace(id)
}

// Ensure registers the normalized id. Registering a known wallet is a no-op.
func (r *Registry) Ensure(id string) error {
	id = Normalize(id)
	if id == "" {
		return ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[id] = struct{}{}
	return nil
}

// Exists reports whether id has been registered. Lookups are exact; callers
// holding user input pass it through Normalize first.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[id]
	return ok
}

// List returns the registered wallet kinds in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
