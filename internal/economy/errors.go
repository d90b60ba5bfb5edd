package economy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownWallet is returned when an operation names a wallet that was
	// never registered. No state is read or written.
	ErrUnknownWallet = errors.New("unknown wallet")

	// ErrInvalidAmount is returned for non-positive transfer amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds is returned when a transfer would leave the source
	// wallet negative while negative balances are disallowed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotResident is returned by operations that require the entity's
	// ledger to be loaded in memory.
	ErrNotResident = errors.New("entity not resident")

	// ErrSelfTransfer is returned when source and destination are the same entity.
	ErrSelfTransfer = errors.New("cannot transfer to the same entity")

	// ErrPersistence wraps any failure reading from or writing to the store.
	ErrPersistence = errors.New("persistence failure")
)

func unknownWallet(wallet string) error {
	return fmt.Errorf("%w: %q", ErrUnknownWallet, wallet)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
