package ledger

import (
	"context"
	"fmt"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// BunLedger expresses every ledger primitive as one guarded UPDATE so two
// concurrent freezes can never both pass the balance check.
type BunLedger struct {
	db bun.IDB
}

// NewBunLedger binds the ledger to db, normally a bun.Tx.
func NewBunLedger(db bun.IDB) *BunLedger {
	return &BunLedger{db: db}
}

func (l *BunLedger) Freeze(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	result, err := l.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("balance = balance - ?", amount).
		Set("frozen_balance = frozen_balance + ?", amount).
		Set("updated_at = current_timestamp").
		Where("id = ?", accountID).
		Where("balance >= ?", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to freeze balance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return l.missOrErr(ctx, accountID, ErrInsufficientFunds)
	}
	return nil
}

func (l *BunLedger) Unfreeze(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	result, err := l.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("balance = balance + ?", amount).
		Set("frozen_balance = frozen_balance - ?", amount).
		Set("updated_at = current_timestamp").
		Where("id = ?", accountID).
		Where("frozen_balance >= ?", amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to unfreeze balance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return l.missOrErr(ctx, accountID, ErrFrozenShortfall)
	}
	return nil
}

func (l *BunLedger) Transfer(ctx context.Context, buyerID, sellerID int64, amount, feeRate decimal.Decimal) (Split, error) {
	if err := validAmount(amount); err != nil {
		return Split{}, err
	}
	split := SplitFee(amount, feeRate)

	result, err := l.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("frozen_balance = frozen_balance - ?", amount).
		Set("updated_at = current_timestamp").
		Where("id = ?", buyerID).
		Where("frozen_balance >= ?", amount).
		Exec(ctx)
	if err != nil {
		return Split{}, fmt.Errorf("failed to debit buyer: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return Split{}, l.missOrErr(ctx, buyerID, ErrFrozenShortfall)
	}

	if split.SellerReceived.IsPositive() {
		if err := l.Credit(ctx, sellerID, split.SellerReceived); err != nil {
			return Split{}, fmt.Errorf("failed to credit seller: %w", err)
		}
	}
	return split, nil
}

func (l *BunLedger) Credit(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	result, err := l.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("balance = balance + ?", amount).
		Set("updated_at = current_timestamp").
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// missOrErr tells a missing account apart from a failed guard.
func (l *BunLedger) missOrErr(ctx context.Context, accountID int64, guardErr error) error {
	exists, err := l.db.NewSelect().
		Model((*models.Account)(nil)).
		Where("id = ?", accountID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return ErrAccountNotFound
	}
	return guardErr
}
