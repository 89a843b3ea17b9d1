package marketplace

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func testConfig() Config {
	return Config{
		EscrowAccount: uuid.NewString(),
		FeeAccount:    uuid.NewString(),
		AdminAccount:  uuid.NewString(),
		FeeRateBps:    200,
		Issuer:        "marketplace-test",
		JWTSecret:     []byte("test-secret"),
	}
}

func newTestServer(t *testing.T, opts ...func(*Config)) (*Server, *MemoryRegistry, *MemoryTreasury) {
	t.Helper()

	treasury := NewMemoryTreasury()
	s, registry := newTestServerWith(t, treasury, opts...)
	return s, registry, treasury
}

func newTestServerWith(t *testing.T, treasury Treasury, opts ...func(*Config)) (*Server, *MemoryRegistry) {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	registry := NewMemoryRegistry()
	return NewServer(newTestDB(t), registry, treasury, cfg), registry
}

// failTreasury rejects every outbound transfer.
type failTreasury struct {
	transfers int
}

func (t *failTreasury) Transfer(context.Context, string, uint64) error {
	t.transfers++
	return errors.New("recipient rejected transfer")
}

// reentrantWithdrawTreasury calls back into Withdraw for the same account
// while the outer withdrawal's transfer is still in flight.
type reentrantWithdrawTreasury struct {
	server    *Server
	transfers int
	nestedErr error
}

func (t *reentrantWithdrawTreasury) Transfer(ctx context.Context, account string, _ uint64) error {
	t.transfers++
	if t.transfers == 1 {
		_, t.nestedErr = t.server.Withdraw(ctx, account)
	}

	return nil
}

// reentrantReleaseTreasury does the same for splitter releases.
type reentrantReleaseTreasury struct {
	server    *Server
	transfers int
	nestedErr error
}

func (t *reentrantReleaseTreasury) Transfer(ctx context.Context, account string, _ uint64) error {
	t.transfers++
	if t.transfers == 1 {
		_, t.nestedErr = t.server.ReleasePayment(ctx, account)
	}

	return nil
}

func mintAsset(t *testing.T, registry *MemoryRegistry, owner, recipient string, rateBps uint64) uint64 {
	t.Helper()

	id, err := registry.Mint(owner, RoyaltyInfo{Recipient: recipient, RateBps: rateBps})
	require.NoError(t, err)
	return id
}

func countEvents(t *testing.T, s *Server) int {
	t.Helper()

	events, err := s.ListEvents(context.Background(), 0, 100)
	require.NoError(t, err)
	return len(events)
}
