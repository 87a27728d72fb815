package auction

import (
	"errors"
	"fmt"

	"github.com/bidhouse/server/bidhouse/ledger"
	"github.com/shopspring/decimal"
)

// Validation errors are returned before any lock is taken; precondition
// errors after the listing lock, with nothing written.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrListingNotFound = errors.New("listing not found")
	ErrAccountNotFound = ledger.ErrAccountNotFound
	ErrWrongKind       = errors.New("listing is not an auction")
	ErrAuctionClosed   = errors.New("auction has ended")
	ErrSelfBid         = errors.New("sellers cannot bid on their own listing")
	ErrBidTooLow       = errors.New("bid too low")

	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	// ErrFreezeRaceLost means the balance check passed but the conditional
	// freeze did not. Callers see it as ErrInsufficientFunds.
	ErrFreezeRaceLost = fmt.Errorf("%w: balance changed during the bid", ledger.ErrInsufficientFunds)
)

// BidTooLowError carries the minimum acceptable amount.
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: minimum is %s", e.Minimum.StringFixed(2))
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsPrecondition reports whether err is one of the listing precondition failures.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrWrongKind) ||
		errors.Is(err, ErrAuctionClosed) ||
		errors.Is(err, ErrSelfBid) ||
		errors.Is(err, ErrBidTooLow)
}
