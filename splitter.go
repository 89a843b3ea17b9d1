package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
)

// Payee is one shareholder in the payment splitter.
type Payee struct {
	Account string `json:"account"`
	Shares  uint64 `json:"shares"`

	// Accrued is entitlement folded at past checkpoints, Released the value
	// already paid out.
	Accrued  uint64 `json:"accrued"`
	Released uint64 `json:"released"`
}

// Splitter distributes a growing pool of receipts across payees in proportion
// to fixed share weights. Payees may join mid-stream without gaining any claim
// on past receipts: before TotalShares changes, each existing payee's share of
// the receipts since the last checkpoint is folded into Accrued at the old
// ratio, so Releasable never moves for a payee that did nothing.
type Splitter struct {
	Payees        []Payee `json:"payees"`
	TotalShares   uint64  `json:"total_shares"`
	TotalReceived uint64  `json:"total_received"`
	TotalReleased uint64  `json:"total_released"`

	// Checkpoint is the TotalReceived value already folded into Accrued.
	Checkpoint uint64 `json:"checkpoint"`
}

func newSplitter() *Splitter {
	return &Splitter{}
}

// mulDiv computes a*b/d with a 128-bit intermediate product and floor
// division. Fractional remainders are dust and stay undistributed.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrInvalidShares
	}

	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrAmountOverflow
	}

	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

func (s *Splitter) find(account string) *Payee {
	for i := range s.Payees {
		if s.Payees[i].Account == account {
			return &s.Payees[i]
		}
	}

	return nil
}

// fold snapshots every payee's pending entitlement at the current share
// ratio. Receipts that arrive before any payee exists become permanent dust.
func (s *Splitter) fold() error {
	delta := s.TotalReceived - s.Checkpoint
	if delta > 0 && s.TotalShares > 0 {
		for i := range s.Payees {
			p := &s.Payees[i]

			accrued, err := mulDiv(delta, p.Shares, s.TotalShares)
			if err != nil {
				return err
			}

			if p.Accrued+accrued < p.Accrued {
				return ErrAmountOverflow
			}
			p.Accrued += accrued
		}
	}

	s.Checkpoint = s.TotalReceived
	return nil
}

// AddPayee registers a new shareholder. Past receipts stay with the existing
// payees; the newcomer accrues only from future receipts.
func (s *Splitter) AddPayee(account string, shares uint64) error {
	if shares == 0 {
		return ErrInvalidShares
	}

	if s.find(account) != nil {
		return ErrDuplicatePayee
	}

	if err := s.fold(); err != nil {
		return err
	}

	if s.TotalShares+shares < s.TotalShares {
		return ErrAmountOverflow
	}

	s.TotalShares += shares
	s.Payees = append(s.Payees, Payee{Account: account, Shares: shares})
	return nil
}

// Receive records a new receipt. Pure accounting, nothing is distributed
// eagerly.
func (s *Splitter) Receive(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}

	if s.TotalReceived+amount < s.TotalReceived {
		return ErrAmountOverflow
	}

	s.TotalReceived += amount
	return nil
}

// Releasable returns the value the payee may withdraw right now.
func (s *Splitter) Releasable(account string) (uint64, error) {
	p := s.find(account)
	if p == nil {
		return 0, ErrNoShares
	}

	pending, err := mulDiv(s.TotalReceived-s.Checkpoint, p.Shares, s.TotalShares)
	if err != nil {
		return 0, err
	}

	if p.Accrued+pending < p.Accrued {
		return 0, ErrAmountOverflow
	}

	return p.Accrued + pending - p.Released, nil
}

// release moves the payee's releasable value into the released counters and
// returns it. Callers transfer the value out only after this bookkeeping is
// committed.
func (s *Splitter) release(account string) (uint64, error) {
	amount, err := s.Releasable(account)
	if err != nil {
		return 0, err
	}

	if amount == 0 {
		return 0, ErrNothingDue
	}

	p := s.find(account)
	p.Released += amount
	s.TotalReleased += amount
	return amount, nil
}

// AddSplitterPayee registers a payee on the royalties pool. Only the admin
// account may change the registry.
func (s *Server) AddSplitterPayee(ctx context.Context, caller, payee string, shares uint64) error {
	if caller != s.cfg.AdminAccount {
		return ErrUnauthorized
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	splitter, err := loadSplitter(txn)
	if err != nil {
		return err
	}

	if err := splitter.AddPayee(payee, shares); err != nil {
		return err
	}

	if err := saveSplitter(txn, splitter); err != nil {
		return err
	}

	if err := appendEvent(txn, payeeAddedEvent(payee, shares)); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return err
	}

	slog.Info("payee added", "payee", payee, "shares", shares)
	return nil
}

// ReceivePayment records a direct receipt into the royalties pool.
func (s *Server) ReceivePayment(ctx context.Context, amount uint64) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	splitter, err := loadSplitter(txn)
	if err != nil {
		return err
	}

	if err := splitter.Receive(amount); err != nil {
		return err
	}

	if err := saveSplitter(txn, splitter); err != nil {
		return err
	}

	if err := appendEvent(txn, paymentReceivedEvent(amount)); err != nil {
		return err
	}

	return txn.Commit()
}

// ReleasePayment pays out a payee's releasable value. The released counters
// are committed before the treasury transfer; a nested release triggered by
// the transfer sees nothing due. On transfer failure the counters are
// restored and the error surfaced.
func (s *Server) ReleasePayment(ctx context.Context, payee string) (uint64, error) {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	splitter, err := loadSplitter(txn)
	if err != nil {
		return 0, err
	}

	amount, err := splitter.release(payee)
	if err != nil {
		return 0, err
	}

	if err := saveSplitter(txn, splitter); err != nil {
		return 0, err
	}

	if err := txn.Commit(); err != nil {
		return 0, err
	}

	if err := s.treasury.Transfer(ctx, payee, amount); err != nil {
		if rerr := s.restoreRelease(payee, amount); rerr != nil {
			slog.Error("restore release failed", "payee", payee, "amount", amount, "err", rerr)
		}

		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := s.emitEvent(paymentReleasedEvent(payee, amount)); err != nil {
		return 0, err
	}

	slog.Info("payment released", "payee", payee, "amount", amount)
	return amount, nil
}

func (s *Server) restoreRelease(payee string, amount uint64) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	splitter, err := loadSplitter(txn)
	if err != nil {
		return err
	}

	p := splitter.find(payee)
	if p == nil {
		return ErrNoShares
	}

	p.Released -= amount
	splitter.TotalReleased -= amount

	if err := saveSplitter(txn, splitter); err != nil {
		return err
	}

	return txn.Commit()
}

// SplitterState returns a snapshot of the royalties pool.
func (s *Server) SplitterState(ctx context.Context) (*Splitter, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return loadSplitter(txn)
}
