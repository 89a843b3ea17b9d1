package marketplace

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a state transition on the notification stream.
type EventType string

const (
	EventOfferCreated    EventType = "offer_created"
	EventOfferFilled     EventType = "offer_filled"
	EventOfferCancelled  EventType = "offer_cancelled"
	EventFundsClaimed    EventType = "funds_claimed"
	EventPaymentReceived EventType = "payment_received"
	EventPaymentReleased EventType = "payment_released"
	EventPayeeAdded      EventType = "payee_added"
)

// Event is one record on the append-only notification stream. Exactly one
// event is written per successful state-changing call, none on failure.
type Event struct {
	Seq       uint64    `json:"seq"`
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Type      EventType `json:"type"`

	OfferID uint64 `json:"offer_id,omitempty"`
	AssetID uint64 `json:"asset_id,omitempty"`
	Seller  string `json:"seller,omitempty"`
	Price   uint64 `json:"price,omitempty"`
	Account string `json:"account,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`
	Shares  uint64 `json:"shares,omitempty"`
}

func newEvent(typ EventType) *Event {
	return &Event{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		Type:      typ,
	}
}

func offerCreatedEvent(offer *Offer) *Event {
	e := newEvent(EventOfferCreated)
	e.OfferID = offer.ID
	e.AssetID = offer.AssetID
	e.Seller = offer.Seller
	e.Price = offer.Price
	return e
}

func offerFilledEvent(offer *Offer) *Event {
	e := newEvent(EventOfferFilled)
	e.OfferID = offer.ID
	return e
}

func offerCancelledEvent(offer *Offer) *Event {
	e := newEvent(EventOfferCancelled)
	e.OfferID = offer.ID
	return e
}

func fundsClaimedEvent(account string, amount uint64) *Event {
	e := newEvent(EventFundsClaimed)
	e.Account = account
	e.Amount = amount
	return e
}

func paymentReceivedEvent(amount uint64) *Event {
	e := newEvent(EventPaymentReceived)
	e.Amount = amount
	return e
}

func paymentReleasedEvent(payee string, amount uint64) *Event {
	e := newEvent(EventPaymentReleased)
	e.Account = payee
	e.Amount = amount
	return e
}

func payeeAddedEvent(payee string, shares uint64) *Event {
	e := newEvent(EventPayeeAdded)
	e.Account = payee
	e.Shares = shares
	return e
}
