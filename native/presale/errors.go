package presale

import "errors"

// Engine errors. Every entry point fails closed: when one of these is
// returned no ledger mutation or transfer has been applied.
var (
	// ErrUnauthorized is returned when the caller does not match the stored
	// admin or buyer identity for the operation.
	ErrUnauthorized = errors.New("presale: unauthorized caller")

	// ErrNotFound is returned when no sale exists for the supplied identifier.
	ErrNotFound = errors.New("presale: sale not found")

	// ErrUserNotFound is returned when the buyer never contributed to the sale.
	ErrUserNotFound = errors.New("presale: no contribution recorded for buyer")

	// ErrAlreadyExists is returned when creating a sale whose identifier is
	// already taken.
	ErrAlreadyExists = errors.New("presale: sale already exists")

	// Lifecycle violations.
	ErrAlreadyLive  = errors.New("presale: sale is already live")
	ErrNotLive      = errors.New("presale: sale is not live")
	ErrSaleEnded    = errors.New("presale: sale window has ended")
	ErrSaleNotEnded = errors.New("presale: sale has not ended yet")
	ErrAlreadyEnded = errors.New("presale: sale already ended")

	// Cap violations.
	ErrHardCapExceeded = errors.New("presale: allocation would exceed hard cap")
	ErrExceedsDeposit  = errors.New("presale: allocation would exceed deposited inventory")

	// Cap preconditions on settlement.
	ErrSoftCapNotReached = errors.New("presale: soft cap not reached")
	ErrSoftCapReached    = errors.New("presale: soft cap was reached")

	// ErrAlreadySettled is returned when a buyer attempts a second claim or
	// refund, or the opposite settlement after the first one ran.
	ErrAlreadySettled = errors.New("presale: buyer already settled")

	// ErrExactPaymentRequired is returned when the payment cannot be fully
	// converted into tokens and the sale is not hard-capped. The request is
	// rejected whole rather than partially filled.
	ErrExactPaymentRequired = errors.New("presale: payment cannot be fully converted")

	// Arithmetic faults.
	ErrArithmeticOverflow = errors.New("presale: arithmetic overflow")
	ErrInvalidPrice       = errors.New("presale: invalid price configuration")

	// ErrInvalidAmount is returned for zero purchases and over-sized claims.
	ErrInvalidAmount = errors.New("presale: invalid amount")

	// ErrInsufficientBalance is returned when the buyer cannot fund the
	// realized payment, or the vault cannot cover a settlement transfer.
	ErrInsufficientBalance = errors.New("presale: insufficient balance")

	// ErrCustodyNotEmpty is returned when closing a sale whose vault still
	// holds either asset.
	ErrCustodyNotEmpty = errors.New("presale: custody not withdrawn")
)
