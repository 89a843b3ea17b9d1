package marketplace

import (
	"context"
	"strconv"

	"github.com/yiplee/go-cache"
	"golang.org/x/sync/singleflight"
)

// RateDenominator is the fixed-point denominator for royalty and fee rates.
// A rate of 500 is 5% of the sale price.
const RateDenominator = 10000

// Resolver computes the royalty split for a sale. The policy is uniform: the
// royalty is always salePrice * rateBps / RateDenominator, floored; flat
// mint-time amounts are not supported.
type Resolver struct {
	registry AssetRegistry
	infos    *cache.Cache[uint64, *RoyaltyInfo]
	sf       singleflight.Group
}

func NewResolver(registry AssetRegistry) *Resolver {
	return &Resolver{
		registry: registry,
		infos:    cache.New[uint64, *RoyaltyInfo](),
	}
}

// Info returns the royalty metadata for an asset. Metadata is fixed at mint
// time, so responses are cached for the life of the process and concurrent
// lookups for the same asset are collapsed.
func (r *Resolver) Info(ctx context.Context, assetID uint64) (*RoyaltyInfo, error) {
	if info, ok := r.infos.Get(assetID); ok {
		return info, nil
	}

	v, err, _ := r.sf.Do(strconv.FormatUint(assetID, 10), func() (interface{}, error) {
		info, err := r.registry.RoyaltyInfo(ctx, assetID)
		if err != nil {
			return nil, err
		}

		if info.RateBps > RateDenominator {
			return nil, ErrInvalidRate
		}

		r.infos.Set(assetID, info)
		return info, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*RoyaltyInfo), nil
}

// Resolve returns the royalty recipient and amount for a sale at the given
// price.
func (r *Resolver) Resolve(ctx context.Context, assetID, salePrice uint64) (string, uint64, error) {
	info, err := r.Info(ctx, assetID)
	if err != nil {
		return "", 0, err
	}

	amount, err := mulDiv(salePrice, info.RateBps, RateDenominator)
	if err != nil {
		return "", 0, err
	}

	return info.Recipient, amount, nil
}
