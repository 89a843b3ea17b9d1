package marketplace

import "errors"

var (
	// ErrOfferNotFound indicates the offer id is unknown.
	ErrOfferNotFound = errors.New("marketplace: offer not found")

	// ErrOfferNotOpen indicates the offer already reached a terminal state.
	ErrOfferNotOpen = errors.New("marketplace: offer not open")

	// ErrSelfFill indicates a seller tried to fill their own offer.
	ErrSelfFill = errors.New("marketplace: seller cannot fill own offer")

	// ErrPriceMismatch indicates the deposited value does not equal the price.
	ErrPriceMismatch = errors.New("marketplace: deposited value does not match price")

	// ErrNotOfferOwner indicates the caller did not create the offer.
	ErrNotOfferOwner = errors.New("marketplace: caller is not the offer owner")

	// ErrNotAssetOwner indicates the seller does not own the asset.
	ErrNotAssetOwner = errors.New("marketplace: seller is not the asset owner")

	// ErrAssetNotFound indicates the asset id is unknown to the registry.
	ErrAssetNotFound = errors.New("marketplace: asset not found")

	// ErrNotCustodian indicates a custody transfer from a non-custodian.
	ErrNotCustodian = errors.New("marketplace: account is not the asset custodian")

	// ErrInvalidPrice indicates a zero offer price.
	ErrInvalidPrice = errors.New("marketplace: price must be positive")

	// ErrInvalidAmount indicates a zero credit or receipt amount.
	ErrInvalidAmount = errors.New("marketplace: amount must be positive")

	// ErrInvalidAccount indicates a malformed account identifier.
	ErrInvalidAccount = errors.New("marketplace: invalid account")

	// ErrInvalidRate indicates a royalty or fee rate above the denominator.
	ErrInvalidRate = errors.New("marketplace: rate exceeds denominator")

	// ErrFeeExceedsPrice indicates royalty plus fee would exceed the price.
	ErrFeeExceedsPrice = errors.New("marketplace: royalty and fee exceed price")

	// ErrAmountOverflow indicates an accounting value would wrap uint64.
	ErrAmountOverflow = errors.New("marketplace: amount overflow")

	// ErrNothingToClaim indicates a withdrawal against a zero balance.
	ErrNothingToClaim = errors.New("marketplace: nothing to claim")

	// ErrDuplicatePayee indicates the payee is already registered.
	ErrDuplicatePayee = errors.New("marketplace: duplicate payee")

	// ErrInvalidShares indicates zero shares for a payee.
	ErrInvalidShares = errors.New("marketplace: shares must be positive")

	// ErrNoShares indicates the payee is not in the splitter registry.
	ErrNoShares = errors.New("marketplace: payee has no shares")

	// ErrNothingDue indicates a release with no releasable value.
	ErrNothingDue = errors.New("marketplace: nothing due")

	// ErrUnauthorized indicates the caller lacks permission for the operation.
	ErrUnauthorized = errors.New("marketplace: unauthorized")

	// ErrTransferFailed indicates the outbound value transfer did not succeed.
	// The ledger state is restored before this error is surfaced.
	ErrTransferFailed = errors.New("marketplace: value transfer failed")
)
