package marketplace

import (
	"time"
)

// OfferState is the lifecycle state of an Offer.
type OfferState string

const (
	OfferStateOpen      OfferState = "open"
	OfferStateFilled    OfferState = "filled"
	OfferStateCancelled OfferState = "cancelled"
)

// Offer is a fixed-price listing of a single asset. Offers are append-only
// history: once filled or cancelled the record stays around for auditing.
type Offer struct {
	ID        uint64     `json:"id"`
	AssetID   uint64     `json:"asset_id"`
	Seller    string     `json:"seller"`
	Price     uint64     `json:"price"`
	State     OfferState `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Terminal reports whether the offer reached a final state.
func (o *Offer) Terminal() bool {
	return o.State == OfferStateFilled || o.State == OfferStateCancelled
}

// Balance is a funds ledger entry. Amounts are in the smallest currency unit
// and only ever grow by sale settlements and drop to zero by withdrawals.
type Balance struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// RoyaltyInfo is the immutable royalty metadata attached to an asset at mint
// time. The rate is a fraction of the sale price in basis points.
type RoyaltyInfo struct {
	Recipient string `json:"recipient"`
	RateBps   uint64 `json:"rate_bps"`
}

// Settlement is the value breakdown of a filled offer.
type Settlement struct {
	OfferID          uint64 `json:"offer_id"`
	Price            uint64 `json:"price"`
	SellerProceeds   uint64 `json:"seller_proceeds"`
	RoyaltyAmount    uint64 `json:"royalty_amount"`
	RoyaltyRecipient string `json:"royalty_recipient"`
	FeeAmount        uint64 `json:"fee_amount"`
}
