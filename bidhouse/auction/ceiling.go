package auction

import (
	"context"
	"log/slog"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

type AutoBidAck struct {
	ListingID int64           `json:"listing_id"`
	BidderID  int64           `json:"bidder_id"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	IsActive  bool            `json:"is_active"`
}

// SetAutoBidCeiling upserts and reactivates a bidder's ceiling. Funds are only
// checked here; they are frozen when a proxy bid is actually placed.
func (m *Manager) SetAutoBidCeiling(ctx context.Context, listingID, bidderID int64, maxAmount decimal.Decimal) (*AutoBidAck, error) {
	if listingID <= 0 || bidderID <= 0 {
		return nil, invalidInput("listing and bidder ids must be positive")
	}
	if !validMoney(maxAmount) {
		return nil, invalidInput("max amount must be positive with at most two decimals")
	}

	now := m.now()
	var saved *models.AutoBid
	err := m.store.WithListingLock(ctx, listingID, func(ctx context.Context, tx ListingTx) error {
		l := tx.Listing()
		if err := checkBiddable(l, bidderID, now); err != nil {
			return err
		}
		if minimum := l.MinimumBid(); maxAmount.LessThan(minimum) {
			return &BidTooLowError{Minimum: minimum}
		}

		account, err := tx.Account(ctx, bidderID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(maxAmount) {
			return ErrInsufficientFunds
		}

		saved, err = tx.UpsertAutoBid(ctx, bidderID, maxAmount, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Auto-bid ceiling set",
		slog.String("type", "bid"),
		slog.Int64("listing_id", listingID),
		slog.Int64("bidder_id", bidderID),
		slog.String("max_amount", maxAmount.StringFixed(2)))
	m.record(ctx, models.ActivityAutoBidSet, bidderID, listingID, &maxAmount,
		"Auto-bid ceiling of %s set on listing #%d", money(maxAmount), listingID)

	return &AutoBidAck{
		ListingID: saved.ListingID,
		BidderID:  saved.BidderID,
		MaxAmount: saved.MaxAmount,
		IsActive:  saved.IsActive,
	}, nil
}
