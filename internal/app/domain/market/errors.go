package market

import "errors"

// Sentinel errors returned by the exchange engine. Every failure aborts the
// whole operation with no state change; callers match with errors.Is.
var (
	// ErrNotOwner indicates the caller (or stored seller at purchase time)
	// does not currently own the asset in the external registry.
	ErrNotOwner = errors.New("caller is not the asset owner")

	// ErrNotListed indicates no active listing exists for the asset.
	ErrNotListed = errors.New("asset is not listed")

	// ErrAlreadyListed indicates an active listing already exists.
	ErrAlreadyListed = errors.New("asset is already listed")

	// ErrZeroPrice rejects listings with a non-positive price.
	ErrZeroPrice = errors.New("listing price must be positive")

	// ErrNotApproved indicates the engine holds neither single-asset nor
	// blanket transfer approval from the owner.
	ErrNotApproved = errors.New("engine is not approved to transfer the asset")

	// ErrCollectionNotAllowed indicates the collection is not allow-listed.
	ErrCollectionNotAllowed = errors.New("collection is not allowed for trading")

	// ErrInsufficientPayment indicates the attached payment does not equal
	// the listing price exactly. Overpayment is rejected the same way, so
	// value is never trapped without a refund path.
	ErrInsufficientPayment = errors.New("payment does not match listing price")

	// ErrFeeTooHigh rejects fee rates at or above 100% of proceeds.
	ErrFeeTooHigh = errors.New("fee rate must be below 1000 parts-per-thousand")

	// ErrTransferFailed indicates a settlement transfer leg failed; the
	// purchase is rejected in its entirety.
	ErrTransferFailed = errors.New("settlement transfer failed")

	// ErrWithdrawFailed indicates a fee withdrawal could not be completed;
	// accrued fees are left unchanged.
	ErrWithdrawFailed = errors.New("withdrawal failed")

	// ErrPaused indicates the market is paused; only admin operations are
	// available.
	ErrPaused = errors.New("market is paused")

	// ErrNotAdmin indicates the caller is not the market administrator.
	ErrNotAdmin = errors.New("caller is not the market admin")
)
