package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/ledger"
	"github.com/bidhouse/server/bidhouse/logger"
	"github.com/shopspring/decimal"
)

// BidResult is returned to the manual bidder.
type BidResult struct {
	ListingID int64           `json:"listing_id"`
	NewPrice  decimal.Decimal `json:"new_price"`
	BidCount  int             `json:"bid_count"`
	EndTime   time.Time       `json:"end_time"`
	Extended  bool            `json:"extended"`
}

// bidOutcome is what one committed bid changed, kept for post-commit work.
type bidOutcome struct {
	bid       models.Bid
	listing   models.Listing
	displaced []models.Bid
	extended  bool
}

// PlaceBid validates and commits one manual bid, then lets standing
// ceilings respond. The result describes the manual bid only.
func (m *Manager) PlaceBid(ctx context.Context, listingID, bidderID int64, amount decimal.Decimal) (*BidResult, error) {
	if listingID <= 0 || bidderID <= 0 {
		return nil, invalidInput("listing and bidder ids must be positive")
	}
	if !validMoney(amount) {
		return nil, invalidInput("amount must be positive with at most two decimals")
	}

	now := m.now()
	var outcome *bidOutcome
	err := m.store.WithListingLock(ctx, listingID, func(ctx context.Context, tx ListingTx) error {
		l := tx.Listing()
		if err := checkBiddable(l, bidderID, now); err != nil {
			return err
		}
		if minimum := l.MinimumBid(); amount.LessThan(minimum) {
			return &BidTooLowError{Minimum: minimum}
		}

		if err := lockParticipants(ctx, tx, bidderID); err != nil {
			return err
		}
		account, err := tx.Account(ctx, bidderID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(amount) {
			return ErrInsufficientFunds
		}

		outcome, err = m.applyBid(ctx, tx, bidderID, amount, false, now)
		if err != nil {
			return err
		}
		if err := tx.AddBidVolume(ctx, bidderID, amount); err != nil {
			return fmt.Errorf("failed to update bid total: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Info("Bid rejected",
			slog.String("type", "bid"),
			slog.Int64("listing_id", listingID),
			slog.Int64("bidder_id", bidderID),
			slog.String("amount", amount.StringFixed(2)),
			slog.String("reason", err.Error()))
		return nil, err
	}

	m.afterBid(ctx, outcome)
	m.resolveCascade(context.WithoutCancel(ctx), listingID)

	return &BidResult{
		ListingID: listingID,
		NewPrice:  outcome.listing.CurrentPrice,
		BidCount:  outcome.listing.BidCount,
		EndTime:   outcome.listing.EndTime,
		Extended:  outcome.extended,
	}, nil
}

// checkBiddable applies the kind, open and seller preconditions in that order.
func checkBiddable(l *models.Listing, bidderID int64, now time.Time) error {
	if l.Kind != models.ListingKindAuction {
		return ErrWrongKind
	}
	if !l.Open(now) {
		return ErrAuctionClosed
	}
	if l.SellerID == bidderID {
		return ErrSelfBid
	}
	return nil
}

// lockParticipants locks the bidder and every current leader of the listing,
// the accounts a bid may freeze or release.
func lockParticipants(ctx context.Context, tx ListingTx, bidderID int64) error {
	active, err := tx.ActiveBids(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active bids: %w", err)
	}
	ids := []int64{bidderID}
	for _, b := range active {
		ids = append(ids, b.BidderID)
	}
	return tx.LockAccounts(ctx, ids...)
}

// applyBid performs the effects shared by manual and proxy bids. The caller
// holds the listing lock and has checked every precondition.
func (m *Manager) applyBid(ctx context.Context, tx ListingTx, bidderID int64, amount decimal.Decimal, isProxy bool, now time.Time) (*bidOutcome, error) {
	l := tx.Listing()

	displaced, err := tx.ActiveBids(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active bids: %w", err)
	}
	for _, prev := range displaced {
		if err := tx.SetBidStatus(ctx, prev.ID, models.BidStatusOutbid); err != nil {
			return nil, fmt.Errorf("failed to mark bid %d outbid: %w", prev.ID, err)
		}
		if err := tx.Ledger().Unfreeze(ctx, prev.BidderID, prev.Amount); err != nil {
			return nil, fmt.Errorf("failed to release outbid funds: %w", err)
		}
	}

	if err := tx.Ledger().Freeze(ctx, bidderID, amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, ErrFreezeRaceLost
		}
		return nil, fmt.Errorf("failed to freeze bid funds: %w", err)
	}

	bid := models.Bid{
		ListingID: l.ID,
		BidderID:  bidderID,
		Amount:    amount,
		IsProxy:   isProxy,
		Status:    models.BidStatusActive,
		CreatedAt: now,
	}
	if err := tx.InsertBid(ctx, &bid); err != nil {
		return nil, fmt.Errorf("failed to insert bid: %w", err)
	}

	l.CurrentPrice = amount
	l.BidCount++
	extended := false
	if remaining := l.EndTime.Sub(now); remaining > 0 && remaining <= m.cfg.SoftCloseWindow {
		l.EndTime = l.EndTime.Add(m.cfg.SoftCloseWindow)
		extended = true
	}
	l.UpdatedAt = now
	if err := tx.SaveListing(ctx); err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	return &bidOutcome{
		bid:       bid,
		listing:   *l,
		displaced: displaced,
		extended:  extended,
	}, nil
}

// afterBid runs the best-effort side effects of a committed bid.
func (m *Manager) afterBid(ctx context.Context, o *bidOutcome) {
	m.cache.invalidate(o.listing.ID)

	kind := models.ActivityBid
	verb := "Bid"
	if o.bid.IsProxy {
		kind = models.ActivityProxyBid
		verb = "Auto-bid"
	}
	logger.LogBid(verb+" placed", o.listing.ID, o.bid.BidderID, o.bid.Amount.StringFixed(2),
		slog.Int("bid_count", o.listing.BidCount),
		slog.Bool("extended", o.extended))

	amount := o.bid.Amount
	m.record(ctx, kind, o.bid.BidderID, o.listing.ID, &amount,
		"%s of %s on listing #%d", verb, money(amount), o.listing.ID)

	for _, prev := range o.displaced {
		if prev.BidderID == o.bid.BidderID {
			continue
		}
		m.notify(ctx, Notification{
			To:        prev.BidderID,
			ListingID: o.listing.ID,
			Text: fmt.Sprintf("You have been outbid on listing #%d. The current price is %s.",
				o.listing.ID, money(amount)),
		})
	}
	if o.extended {
		slog.Info("Auction extended",
			slog.String("type", "bid"),
			slog.Int64("listing_id", o.listing.ID),
			slog.Time("end_time", o.listing.EndTime))
	}
}
