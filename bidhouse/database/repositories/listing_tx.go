package repositories

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/ledger"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// listingTx works on one listing row locked by WithListingLock.
type listingTx struct {
	tx      bun.Tx
	listing *models.Listing
	ledger  *ledger.BunLedger
}

func (t *listingTx) Listing() *models.Listing {
	return t.listing
}

func (t *listingTx) SaveListing(ctx context.Context) error {
	_, err := t.tx.NewUpdate().
		Model(t.listing).
		Column("current_price", "bid_count", "end_time", "status", "winner_id", "updated_at").
		WherePK().
		Exec(ctx)
	return wrap("update", "listing", err)
}

func (t *listingTx) Ledger() ledger.Ledger {
	return t.ledger
}

func (t *listingTx) Account(ctx context.Context, accountID int64) (*models.Account, error) {
	return getAccount(ctx, t.tx, accountID)
}

// LockAccounts locks the rows in id order so two listings touching the same
// pair of accounts cannot deadlock.
func (t *listingTx) LockAccounts(ctx context.Context, accountIDs ...int64) error {
	ids := slices.Clone(accountIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil
	}

	var locked []int64
	err := t.tx.NewSelect().
		Model((*models.Account)(nil)).
		Column("id").
		Where("id IN (?)", bun.In(ids)).
		OrderExpr("id").
		For("UPDATE").
		Scan(ctx, &locked)
	return wrap("lock", "accounts", err)
}

func (t *listingTx) AddBidVolume(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	result, err := t.tx.NewUpdate().
		Model((*models.Account)(nil)).
		Set("total_bid_amount = total_bid_amount + ?", amount).
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return wrap("update", "bid total", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (t *listingTx) ActiveBids(ctx context.Context) ([]models.Bid, error) {
	var bids []models.Bid
	err := t.tx.NewSelect().
		Model(&bids).
		Where("listing_id = ?", t.listing.ID).
		Where("status = ?", models.BidStatusActive).
		OrderExpr("amount DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list", "active bids", err)
	}
	return bids, nil
}

func (t *listingTx) SetBidStatus(ctx context.Context, bidID int64, status models.BidStatus) error {
	result, err := t.tx.NewUpdate().
		Model((*models.Bid)(nil)).
		Set("status = ?", status).
		Where("id = ?", bidID).
		Where("listing_id = ?", t.listing.ID).
		Exec(ctx)
	if err != nil {
		return wrap("update", "bid", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("bid %d not found", bidID)
	}
	return nil
}

func (t *listingTx) InsertBid(ctx context.Context, bid *models.Bid) error {
	_, err := t.tx.NewInsert().Model(bid).Returning("id").Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("listing %d already has an active bid: %w", t.listing.ID, err)
	}
	return wrap("insert", "bid", err)
}

func (t *listingTx) BestAutoBid(ctx context.Context, excludeBidderID int64, above decimal.Decimal) (*models.AutoBid, error) {
	ceiling := new(models.AutoBid)
	err := t.tx.NewSelect().
		Model(ceiling).
		Where("listing_id = ?", t.listing.ID).
		Where("is_active").
		Where("bidder_id <> ?", excludeBidderID).
		Where("max_amount > ?", above).
		OrderExpr("max_amount DESC, created_at ASC, id ASC").
		Limit(1).
		Scan(ctx)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", "auto_bid", err)
	}
	return ceiling, nil
}

// UpsertAutoBid keeps created_at on conflict so a raised ceiling keeps its
// place among equal ceilings.
func (t *listingTx) UpsertAutoBid(ctx context.Context, bidderID int64, maxAmount decimal.Decimal, now time.Time) (*models.AutoBid, error) {
	ceiling := &models.AutoBid{
		ListingID: t.listing.ID,
		BidderID:  bidderID,
		MaxAmount: maxAmount,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := t.tx.NewInsert().
		Model(ceiling).
		On("CONFLICT (listing_id, bidder_id) DO UPDATE").
		Set("max_amount = EXCLUDED.max_amount").
		Set("is_active = TRUE").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, wrap("upsert", "auto_bid", err)
	}
	return ceiling, nil
}

func (t *listingTx) DeactivateAutoBids(ctx context.Context) error {
	_, err := t.tx.NewUpdate().
		Model((*models.AutoBid)(nil)).
		Set("is_active = FALSE").
		Set("updated_at = ?", t.listing.UpdatedAt).
		Where("listing_id = ?", t.listing.ID).
		Where("is_active").
		Exec(ctx)
	return wrap("deactivate", "auto_bids", err)
}

func (t *listingTx) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := t.tx.NewInsert().Model(order).Returning("id").Exec(ctx)
	return wrap("insert", "order", err)
}
