package marketplace

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/zyedidia/generic/mapset"
)

// CreateOffer lists an asset for a fixed price. The asset moves into the
// marketplace escrow account before the offer record is committed; if the
// commit fails custody is returned to the seller.
func (s *Server) CreateOffer(ctx context.Context, seller string, assetID, price uint64) (*Offer, error) {
	if price == 0 {
		return nil, ErrInvalidPrice
	}

	owner, err := s.registry.OwnerOf(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if owner != seller {
		return nil, ErrNotAssetOwner
	}

	if err := s.registry.TransferCustody(ctx, assetID, seller, s.cfg.EscrowAccount); err != nil {
		return nil, err
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	offer := &Offer{
		AssetID:   assetID,
		Seller:    seller,
		Price:     price,
		State:     OfferStateOpen,
		CreatedAt: time.Now(),
	}
	offer.UpdatedAt = offer.CreatedAt

	if offer.ID, err = nextID(txn, propNextOfferID); err != nil {
		s.returnCustody(ctx, assetID, seller)
		return nil, err
	}

	if err := saveOffer(txn, offer); err != nil {
		s.returnCustody(ctx, assetID, seller)
		return nil, err
	}

	if err := appendEvent(txn, offerCreatedEvent(offer)); err != nil {
		s.returnCustody(ctx, assetID, seller)
		return nil, err
	}

	if err := txn.Commit(); err != nil {
		s.returnCustody(ctx, assetID, seller)
		return nil, err
	}

	slog.Info("offer created", "offer", offer.ID, "asset", assetID, "seller", seller, "price", price)
	return offer, nil
}

// FillOffer settles an open offer against an exact-amount deposit. The three
// ledger credits, the deposit total, the state transition and the event are
// one transaction; custody moves to the buyer just before the commit and is
// returned to escrow if the commit fails.
func (s *Server) FillOffer(ctx context.Context, buyer string, offerID, deposited uint64) (*Settlement, error) {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	offer, err := findOffer(txn, offerID)
	if err != nil {
		return nil, err
	}

	if offer.State != OfferStateOpen {
		return nil, ErrOfferNotOpen
	}

	if buyer == offer.Seller {
		return nil, ErrSelfFill
	}

	if deposited != offer.Price {
		return nil, ErrPriceMismatch
	}

	recipient, royalty, err := s.royalties.Resolve(ctx, offer.AssetID, offer.Price)
	if err != nil {
		return nil, err
	}

	fee, err := mulDiv(offer.Price, s.cfg.FeeRateBps, RateDenominator)
	if err != nil {
		return nil, err
	}

	if royalty+fee < royalty || royalty+fee > offer.Price {
		return nil, ErrFeeExceedsPrice
	}

	proceeds := offer.Price - royalty - fee

	if proceeds > 0 {
		if err := creditBalance(txn, offer.Seller, proceeds); err != nil {
			return nil, err
		}
	}

	if royalty > 0 {
		if err := s.settleRoyalty(txn, recipient, royalty); err != nil {
			return nil, err
		}
	}

	if fee > 0 {
		if err := creditBalance(txn, s.cfg.FeeAccount, fee); err != nil {
			return nil, err
		}
	}

	if err := addProperty(txn, propTotalDeposited, offer.Price); err != nil {
		return nil, err
	}

	offer.State = OfferStateFilled
	offer.UpdatedAt = time.Now()

	if err := saveOffer(txn, offer); err != nil {
		return nil, err
	}

	if err := appendEvent(txn, offerFilledEvent(offer)); err != nil {
		return nil, err
	}

	if err := s.registry.TransferCustody(ctx, offer.AssetID, s.cfg.EscrowAccount, buyer); err != nil {
		return nil, err
	}

	if err := txn.Commit(); err != nil {
		if rerr := s.registry.TransferCustody(ctx, offer.AssetID, buyer, s.cfg.EscrowAccount); rerr != nil {
			slog.Error("return custody to escrow failed", "asset", offer.AssetID, "err", rerr)
		}

		return nil, err
	}

	slog.Info("offer filled",
		"offer", offer.ID,
		"buyer", buyer,
		"proceeds", proceeds,
		"royalty", royalty,
		"fee", fee,
	)

	return &Settlement{
		OfferID:          offer.ID,
		Price:            offer.Price,
		SellerProceeds:   proceeds,
		RoyaltyAmount:    royalty,
		RoyaltyRecipient: recipient,
		FeeAmount:        fee,
	}, nil
}

// settleRoyalty credits the royalty share either to the recipient's ledger
// balance or, when the splitter backend is enabled, into the royalties pool.
func (s *Server) settleRoyalty(txn *badger.Txn, recipient string, amount uint64) error {
	if !s.cfg.SplitRoyalties {
		return creditBalance(txn, recipient, amount)
	}

	splitter, err := loadSplitter(txn)
	if err != nil {
		return err
	}

	if err := splitter.Receive(amount); err != nil {
		return err
	}

	if err := addProperty(txn, propPoolRouted, amount); err != nil {
		return err
	}

	return saveSplitter(txn, splitter)
}

// CancelOffer takes an open offer off the market and returns the asset from
// escrow to the seller.
func (s *Server) CancelOffer(ctx context.Context, caller string, offerID uint64) (*Offer, error) {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	offer, err := findOffer(txn, offerID)
	if err != nil {
		return nil, err
	}

	if caller != offer.Seller {
		return nil, ErrNotOfferOwner
	}

	if offer.State != OfferStateOpen {
		return nil, ErrOfferNotOpen
	}

	offer.State = OfferStateCancelled
	offer.UpdatedAt = time.Now()

	if err := saveOffer(txn, offer); err != nil {
		return nil, err
	}

	if err := appendEvent(txn, offerCancelledEvent(offer)); err != nil {
		return nil, err
	}

	if err := s.registry.TransferCustody(ctx, offer.AssetID, s.cfg.EscrowAccount, offer.Seller); err != nil {
		return nil, err
	}

	if err := txn.Commit(); err != nil {
		if rerr := s.registry.TransferCustody(ctx, offer.AssetID, offer.Seller, s.cfg.EscrowAccount); rerr != nil {
			slog.Error("return custody to escrow failed", "asset", offer.AssetID, "err", rerr)
		}

		return nil, err
	}

	slog.Info("offer cancelled", "offer", offer.ID, "seller", offer.Seller)
	return offer, nil
}

// GetOffer returns a single offer record.
func (s *Server) GetOffer(ctx context.Context, offerID uint64) (*Offer, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return findOffer(txn, offerID)
}

// ListOffers pages through offer history in id order, optionally filtered by
// state.
func (s *Server) ListOffers(ctx context.Context, states mapset.Set[OfferState], since uint64, limit int) ([]*Offer, error) {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return listOffers(txn, states, since, limit)
}

func (s *Server) returnCustody(ctx context.Context, assetID uint64, seller string) {
	if err := s.registry.TransferCustody(ctx, assetID, s.cfg.EscrowAccount, seller); err != nil {
		slog.Error("return custody to seller failed", "asset", assetID, "seller", seller, "err", err)
	}
}
