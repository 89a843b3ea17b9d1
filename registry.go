package marketplace

import (
	"context"
	"sync"
)

// AssetRegistry is the upstream contract owning minted assets. The engine
// depends on this interface only, never on a concrete registry.
type AssetRegistry interface {
	// OwnerOf returns the current custodian of the asset.
	OwnerOf(ctx context.Context, assetID uint64) (string, error)

	// TransferCustody moves the asset between accounts. It fails with
	// ErrNotCustodian if from is not the current custodian.
	TransferCustody(ctx context.Context, assetID uint64, from, to string) error

	// RoyaltyInfo returns the royalty metadata fixed at mint time.
	RoyaltyInfo(ctx context.Context, assetID uint64) (*RoyaltyInfo, error)
}

// Treasury is the outbound value transfer boundary. Transfers may fail due to
// recipient-side conditions; callers decide whether to retry.
type Treasury interface {
	Transfer(ctx context.Context, account string, amount uint64) error
}

type registeredAsset struct {
	owner   string
	royalty RoyaltyInfo
}

// MemoryRegistry is an in-process AssetRegistry for the reference binary and
// tests.
type MemoryRegistry struct {
	mu     sync.Mutex
	nextID uint64
	assets map[uint64]*registeredAsset
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		assets: map[uint64]*registeredAsset{},
	}
}

// Mint registers a new asset owned by owner. The royalty rate is fixed for
// the life of the asset.
func (r *MemoryRegistry) Mint(owner string, royalty RoyaltyInfo) (uint64, error) {
	if royalty.RateBps > RateDenominator {
		return 0, ErrInvalidRate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.assets[r.nextID] = &registeredAsset{
		owner:   owner,
		royalty: royalty,
	}

	return r.nextID, nil
}

func (r *MemoryRegistry) OwnerOf(_ context.Context, assetID uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return "", ErrAssetNotFound
	}

	return asset.owner, nil
}

func (r *MemoryRegistry) TransferCustody(_ context.Context, assetID uint64, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}

	if asset.owner != from {
		return ErrNotCustodian
	}

	asset.owner = to
	return nil
}

func (r *MemoryRegistry) RoyaltyInfo(_ context.Context, assetID uint64) (*RoyaltyInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	asset, ok := r.assets[assetID]
	if !ok {
		return nil, ErrAssetNotFound
	}

	info := asset.royalty
	return &info, nil
}

// Payout is one completed outbound transfer.
type Payout struct {
	Account string
	Amount  uint64
}

// MemoryTreasury records outbound transfers instead of pushing value to a
// real payment rail.
type MemoryTreasury struct {
	mu      sync.Mutex
	payouts []Payout
}

func NewMemoryTreasury() *MemoryTreasury {
	return &MemoryTreasury{}
}

func (t *MemoryTreasury) Transfer(_ context.Context, account string, amount uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.payouts = append(t.payouts, Payout{Account: account, Amount: amount})
	return nil
}

// Payouts returns a copy of all recorded transfers.
func (t *MemoryTreasury) Payouts() []Payout {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Payout(nil), t.payouts...)
}

// PaidTo returns the total value transferred to an account.
func (t *MemoryTreasury) PaidTo(account string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sum uint64
	for _, p := range t.payouts {
		if p.Account == account {
			sum += p.Amount
		}
	}

	return sum
}
