package marketplace

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d uint64
		want    uint64
		wantErr error
	}{
		{"exact", 1000, 500, 10000, 50, nil},
		{"floor", 999, 500, 10000, 49, nil},
		{"zero amount", 0, 500, 10000, 0, nil},
		{"wide product", math.MaxUint64, 2, 4, math.MaxUint64 / 2, nil},
		{"zero denominator", 1, 1, 0, 0, ErrInvalidShares},
		{"quotient overflow", math.MaxUint64, math.MaxUint64, 1, 0, ErrAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mulDiv(tt.a, tt.b, tt.d)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitterScenario(t *testing.T) {
	a := uuid.NewString()
	b := uuid.NewString()
	c := uuid.NewString()

	s := newSplitter()
	require.NoError(t, s.AddPayee(a, 2))
	require.NoError(t, s.AddPayee(b, 98))
	require.NoError(t, s.Receive(1000))

	due, err := s.Releasable(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), due)

	due, err = s.Releasable(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), due)

	amount, err := s.release(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), amount)

	require.ErrorIs(t, s.AddPayee(c, 0), ErrInvalidShares)
	require.NoError(t, s.AddPayee(c, 10))

	// joining late grants nothing retroactively and moves nobody else
	due, err = s.Releasable(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(980), due)

	due, err = s.Releasable(c)
	require.NoError(t, err)
	assert.Zero(t, due)

	require.NoError(t, s.Receive(1100))

	due, err = s.Releasable(c)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), due)

	due, err = s.Releasable(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(1960), due)

	due, err = s.Releasable(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), due)
}

func TestSplitterErrors(t *testing.T) {
	a := uuid.NewString()

	s := newSplitter()
	require.NoError(t, s.AddPayee(a, 5))
	require.ErrorIs(t, s.AddPayee(a, 5), ErrDuplicatePayee)
	require.ErrorIs(t, s.Receive(0), ErrInvalidAmount)

	_, err := s.Releasable(uuid.NewString())
	require.ErrorIs(t, err, ErrNoShares)

	_, err = s.release(uuid.NewString())
	require.ErrorIs(t, err, ErrNoShares)

	_, err = s.release(a)
	require.ErrorIs(t, err, ErrNothingDue)
}

func TestSplitterDust(t *testing.T) {
	a := uuid.NewString()
	b := uuid.NewString()

	s := newSplitter()
	require.NoError(t, s.AddPayee(a, 3))
	require.NoError(t, s.AddPayee(b, 7))
	require.NoError(t, s.Receive(10))

	dueA, err := s.Releasable(a)
	require.NoError(t, err)
	dueB, err := s.Releasable(b)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), dueA)
	assert.Equal(t, uint64(7), dueB)

	// a receipt that does not divide evenly leaves dust behind forever
	require.NoError(t, s.Receive(5))

	dueA, err = s.Releasable(a)
	require.NoError(t, err)
	dueB, err = s.Releasable(b)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), dueA)
	assert.Equal(t, uint64(10), dueB)
	assert.LessOrEqual(t, dueA+dueB, s.TotalReceived-s.TotalReleased)
}

func TestSplitterEarlyReceiptsAreDust(t *testing.T) {
	a := uuid.NewString()

	s := newSplitter()
	require.NoError(t, s.Receive(500))
	require.NoError(t, s.AddPayee(a, 1))

	due, err := s.Releasable(a)
	require.NoError(t, err)
	assert.Zero(t, due)

	require.NoError(t, s.Receive(100))

	due, err = s.Releasable(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), due)
}

func TestSplitterInvariants(t *testing.T) {
	payees := []string{uuid.NewString(), uuid.NewString(), uuid.NewString(), uuid.NewString()}

	s := newSplitter()
	require.NoError(t, s.AddPayee(payees[0], 1))

	check := func() {
		var sum uint64
		for _, p := range s.Payees {
			due, err := s.Releasable(p.Account)
			require.NoError(t, err)
			sum += due
		}

		require.LessOrEqual(t, s.TotalReleased, s.TotalReceived)
		require.LessOrEqual(t, sum, s.TotalReceived-s.TotalReleased)
	}

	amounts := []uint64{1, 17, 1000, 3, 999999, 42}
	for i, amount := range amounts {
		require.NoError(t, s.Receive(amount))
		check()

		if i+1 < len(payees) {
			before := map[string]uint64{}
			for _, p := range s.Payees {
				due, err := s.Releasable(p.Account)
				require.NoError(t, err)
				before[p.Account] = due
			}

			require.NoError(t, s.AddPayee(payees[i+1], uint64(i+2)*3))

			for account, due := range before {
				after, err := s.Releasable(account)
				require.NoError(t, err)
				require.Equal(t, due, after, "AddPayee moved releasable for %s", account)
			}
			check()
		}

		if _, err := s.release(s.Payees[i%len(s.Payees)].Account); err != nil {
			require.ErrorIs(t, err, ErrNothingDue)
		}
		check()
	}
}

func TestReleasePayment(t *testing.T) {
	ctx := context.Background()
	s, _, treasury := newTestServer(t)

	payee := uuid.NewString()
	require.NoError(t, s.AddSplitterPayee(ctx, s.cfg.AdminAccount, payee, 10))
	require.NoError(t, s.ReceivePayment(ctx, 250))

	amount, err := s.ReleasePayment(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), amount)
	assert.Equal(t, uint64(250), treasury.PaidTo(payee))

	_, err = s.ReleasePayment(ctx, payee)
	require.ErrorIs(t, err, ErrNothingDue)
}

func TestAddSplitterPayeeUnauthorized(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestServer(t)

	err := s.AddSplitterPayee(ctx, uuid.NewString(), uuid.NewString(), 10)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestReleasePaymentTransferFailure(t *testing.T) {
	ctx := context.Background()

	treasury := &failTreasury{}
	s, _ := newTestServerWith(t, treasury)

	payee := uuid.NewString()
	require.NoError(t, s.AddSplitterPayee(ctx, s.cfg.AdminAccount, payee, 1))
	require.NoError(t, s.ReceivePayment(ctx, 100))

	_, err := s.ReleasePayment(ctx, payee)
	require.ErrorIs(t, err, ErrTransferFailed)

	// bookkeeping restored, a later release succeeds in full
	state, err := s.SplitterState(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.TotalReleased)

	due, err := state.Releasable(payee)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), due)
}

func TestReleasePaymentReentrancy(t *testing.T) {
	ctx := context.Background()

	treasury := &reentrantReleaseTreasury{}
	s, _ := newTestServerWith(t, treasury)
	treasury.server = s

	payee := uuid.NewString()
	require.NoError(t, s.AddSplitterPayee(ctx, s.cfg.AdminAccount, payee, 1))
	require.NoError(t, s.ReceivePayment(ctx, 100))

	amount, err := s.ReleasePayment(ctx, payee)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), amount)
	assert.Equal(t, 1, treasury.transfers)
	require.ErrorIs(t, treasury.nestedErr, ErrNothingDue)
}
