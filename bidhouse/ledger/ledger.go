package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a conditional freeze finds less
	// available balance than requested.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrFrozenShortfall is returned when an account holds less frozen money
	// than an unfreeze or transfer tries to release.
	ErrFrozenShortfall = errors.New("frozen balance shortfall")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

// Ledger moves money between the available and frozen balances of accounts.
// Every call runs inside the caller's transaction.
type Ledger interface {
	Freeze(ctx context.Context, accountID int64, amount decimal.Decimal) error
	Unfreeze(ctx context.Context, accountID int64, amount decimal.Decimal) error
	Transfer(ctx context.Context, buyerID, sellerID int64, amount, feeRate decimal.Decimal) (Split, error)
	Credit(ctx context.Context, accountID int64, amount decimal.Decimal) error
}

// Split is the breakdown of a settlement transfer.
type Split struct {
	Amount         decimal.Decimal
	Fee            decimal.Decimal
	SellerReceived decimal.Decimal
}

// SplitFee computes the platform fee rounded to cents; the seller keeps the rest.
func SplitFee(amount, feeRate decimal.Decimal) Split {
	fee := amount.Mul(feeRate).Round(2)
	return Split{
		Amount:         amount,
		Fee:            fee,
		SellerReceived: amount.Sub(fee),
	}
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
