// Package events carries balance notifications from the economy core to any
// number of independent subscribers.
package events

import (
	"github.com/shopspring/decimal"
)

const (
	// KindBalanceChanged is emitted after any balance mutation.
	KindBalanceChanged = "balance_changed"
	// KindFundsTransferred is emitted once per successful transfer.
	KindFundsTransferred = "funds_transferred"
	// KindEntityLoaded is emitted when an entity's ledger becomes resident.
	KindEntityLoaded = "entity_loaded"
	// KindEntitySaved is emitted after an entity's ledger was written to the store.
	KindEntitySaved = "entity_saved"
)

// Event is any notification published on the bus.
type Event interface {
	Kind() string
}

// BalanceChanged reports a wallet moving from Old to New.
type BalanceChanged struct {
	EntityID uint64          `json:"entity_id"`
	Wallet   string          `json:"wallet"`
	New      decimal.Decimal `json:"new"`
	Old      decimal.Decimal `json:"old"`
}

func (BalanceChanged) Kind() string { return KindBalanceChanged }

// FundsTransferred reports a completed two-party transfer.
type FundsTransferred struct {
	From   uint64          `json:"from"`
	To     uint64          `json:"to"`
	Wallet string          `json:"wallet"`
	Amount decimal.Decimal `json:"amount"`
}

func (FundsTransferred) Kind() string { return KindFundsTransferred }

// EntityLoaded reports that an entity's ledger was read from the store.
type EntityLoaded struct {
	EntityID uint64 `json:"entity_id"`
}

func (EntityLoaded) Kind() string { return KindEntityLoaded }

// EntitySaved reports a flush that wrote at least one wallet.
type EntitySaved struct {
	EntityID uint64 `json:"entity_id"`
}

func (EntitySaved) Kind() string { return KindEntitySaved }
