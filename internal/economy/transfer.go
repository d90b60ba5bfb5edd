package economy

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/economy/internal/events"
)

// Transfer moves amount from one resident entity to another. Both sync locks
// are taken in ascending id order, so concurrent transfers in opposite
// directions cannot deadlock. Either both balances change or neither does.
//
// A false result always comes with an error explaining why nothing moved.
func (s *Service) Transfer(ctx context.Context, from, to uint64, wallet string, amount decimal.Decimal) (bool, error) {
	if !s.wallets.Exists(wallet) {
		return false, unknownWallet(wallet)
	}
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}
	if from == to {
		return false, ErrSelfTransfer
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	logger := s.logger.With(slog.Uint64("from", from), slog.Uint64("to", to), slog.String("wallet", wallet))

	fromLedger, toLedger, unlock, err := s.lockParties(from, to)
	if err != nil {
		s.metrics.Transfer("not_resident")
		logger.Warn("transfer rejected: party not resident")
		return false, err
	}

	fromOld := fromLedger.balance(wallet)
	toOld := toLedger.balance(wallet)
	if !s.opts.AllowNegative && fromOld.LessThan(amount) {
		unlock()
		s.metrics.Transfer("insufficient_funds")
		return false, ErrInsufficientFunds
	}

	fromNew := s.clamp(fromOld.Sub(amount))
	toNew := s.clamp(toOld.Add(amount))
	fromLedger.set(wallet, fromNew)
	toLedger.set(wallet, toNew)
	s.markChanged(from)
	s.markChanged(to)
	unlock()

	s.metrics.Transfer("ok")
	s.publish(events.BalanceChanged{EntityID: from, Wallet: wallet, New: fromNew, Old: fromOld})
	s.publish(events.BalanceChanged{EntityID: to, Wallet: wallet, New: toNew, Old: toOld})
	s.publish(events.FundsTransferred{From: from, To: to, Wallet: wallet, Amount: amount})
	return true, nil
}

// lockParties takes both sync locks and returns the ledgers that are resident
// while the locks are held. A ledger replaced by a reload between lookup and
// locking is looked up again.
func (s *Service) lockParties(from, to uint64) (fromLedger, toLedger *Ledger, unlock func(), err error) {
	for {
		fromLedger, toLedger = s.ledger(from), s.ledger(to)
		if fromLedger == nil || toLedger == nil {
			return nil, nil, nil, ErrNotResident
		}
		unlock = s.locks.LockPair(from, to)
		if !fromLedger.evicted && !toLedger.evicted {
			return fromLedger, toLedger, unlock, nil
		}
		unlock()
	}
}
