package marketplace

import (
	"context"
	"fmt"
	"log/slog"
)

// GetBalance returns the funds ledger entry for an account.
func (s *Server) GetBalance(ctx context.Context, account string) (*Balance, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return getBalance(txn, account)
}

// Withdraw pays out an account's full credited balance. The balance is zeroed
// and committed before the treasury transfer, so a nested withdrawal
// triggered by the transfer observes a zero balance and fails with
// ErrNothingToClaim. If the transfer fails the balance is restored and
// ErrTransferFailed surfaced; nothing is retried here.
func (s *Server) Withdraw(ctx context.Context, account string) (uint64, error) {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	balance, err := getBalance(txn, account)
	if err != nil {
		return 0, err
	}

	if balance.Amount == 0 {
		return 0, ErrNothingToClaim
	}

	amount := balance.Amount
	balance.Amount = 0

	if err := saveBalance(txn, balance); err != nil {
		return 0, err
	}

	if err := addProperty(txn, propTotalWithdrawn, amount); err != nil {
		return 0, err
	}

	if err := txn.Commit(); err != nil {
		return 0, err
	}

	if err := s.treasury.Transfer(ctx, account, amount); err != nil {
		if rerr := s.restoreBalance(account, amount); rerr != nil {
			slog.Error("restore balance failed", "account", account, "amount", amount, "err", rerr)
		}

		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := s.emitEvent(fundsClaimedEvent(account, amount)); err != nil {
		return 0, err
	}

	slog.Info("funds claimed", "account", account, "amount", amount)
	return amount, nil
}

func (s *Server) restoreBalance(account string, amount uint64) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := creditBalance(txn, account, amount); err != nil {
		return err
	}

	if err := subProperty(txn, propTotalWithdrawn, amount); err != nil {
		return err
	}

	return txn.Commit()
}
