package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/ledger"
	"golang.org/x/sync/errgroup"
)

// SweepReport counts what one sweep changed.
type SweepReport struct {
	Ended  int `json:"ended"`
	Sold   int `json:"sold"`
	Failed int `json:"failed"`
}

// Settled is the number of auctions that reached a terminal state.
func (r SweepReport) Settled() int {
	return r.Ended + r.Sold
}

type settleResult int

const (
	settleSkipped settleResult = iota
	settleEnded
	settleSold
)

// settlement is the post-commit record of a sold listing.
type settlement struct {
	listing models.Listing
	winner  models.Bid
	split   ledger.Split
	order   models.Order
}

// SweepExpiredAuctions settles every expired auction. It is safe to call
// concurrently and repeatedly: a listing already settled is skipped under its lock.
func (m *Manager) SweepExpiredAuctions(ctx context.Context) (SweepReport, error) {
	now := m.now()
	var report SweepReport

	ended, err := m.store.EndUnbidAuctions(ctx, now)
	if err != nil {
		return report, fmt.Errorf("failed to end unbid auctions: %w", err)
	}
	report.Ended = len(ended)
	for _, l := range ended {
		m.cache.invalidate(l.ID)
		m.record(ctx, models.ActivityEnded, l.SellerID, l.ID, nil,
			"Auction #%d ended without bids", l.ID)
		m.notify(ctx, Notification{
			To:        l.SellerID,
			ListingID: l.ID,
			Text:      fmt.Sprintf("Your auction #%d ended without any bids.", l.ID),
		})
	}

	ids, err := m.store.ExpiredAuctionIDs(ctx, now, m.cfg.SweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list expired auctions: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(m.cfg.SweepConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			result, err := m.settleListing(ctx, id, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				errs = append(errs, fmt.Errorf("listing %d: %w", id, err))
			case result == settleSold:
				report.Sold++
			case result == settleEnded:
				report.Ended++
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Settled() > 0 || report.Failed > 0 {
		slog.Info("Expired auctions swept",
			slog.String("type", "sys"),
			slog.Int("ended", report.Ended),
			slog.Int("sold", report.Sold),
			slog.Int("failed", report.Failed))
	}
	return report, errors.Join(errs...)
}

// settleListing converts one expired auction into a sale under its lock.
func (m *Manager) settleListing(ctx context.Context, listingID int64, now time.Time) (settleResult, error) {
	result := settleSkipped
	var sold *settlement

	err := m.store.WithListingLock(ctx, listingID, func(ctx context.Context, tx ListingTx) error {
		l := tx.Listing()
		// A concurrent sweep may have settled it, or a last bid extended it.
		if l.Kind != models.ListingKindAuction || l.Status != models.ListingStatusActive || !l.EndTime.Before(now) {
			return nil
		}

		active, err := tx.ActiveBids(ctx)
		if err != nil {
			return fmt.Errorf("failed to load active bids: %w", err)
		}
		l.UpdatedAt = now

		if len(active) == 0 {
			l.Status = models.ListingStatusEnded
			if err := tx.SaveListing(ctx); err != nil {
				return fmt.Errorf("failed to end listing: %w", err)
			}
			if err := tx.DeactivateAutoBids(ctx); err != nil {
				return fmt.Errorf("failed to deactivate ceilings: %w", err)
			}
			result = settleEnded
			return nil
		}

		ids := []int64{l.SellerID}
		for _, b := range active {
			ids = append(ids, b.BidderID)
		}
		if err := tx.LockAccounts(ctx, ids...); err != nil {
			return err
		}

		winner := active[0]
		for _, extra := range active[1:] {
			if err := tx.SetBidStatus(ctx, extra.ID, models.BidStatusOutbid); err != nil {
				return fmt.Errorf("failed to mark bid %d outbid: %w", extra.ID, err)
			}
			if err := tx.Ledger().Unfreeze(ctx, extra.BidderID, extra.Amount); err != nil {
				return fmt.Errorf("failed to release bid %d: %w", extra.ID, err)
			}
		}

		l.Status = models.ListingStatusSold
		l.WinnerID = &winner.BidderID
		if err := tx.SaveListing(ctx); err != nil {
			return fmt.Errorf("failed to mark listing sold: %w", err)
		}
		if err := tx.SetBidStatus(ctx, winner.ID, models.BidStatusWon); err != nil {
			return fmt.Errorf("failed to mark winning bid: %w", err)
		}

		split, err := tx.Ledger().Transfer(ctx, winner.BidderID, l.SellerID, winner.Amount, m.cfg.FeeRate)
		if err != nil {
			return fmt.Errorf("failed to transfer funds: %w", err)
		}

		order := models.Order{
			ListingID:      l.ID,
			BuyerID:        winner.BidderID,
			SellerID:       l.SellerID,
			FinalPrice:     split.Amount,
			PlatformFee:    split.Fee,
			SellerReceived: split.SellerReceived,
			Status:         models.OrderStatusPaid,
			CreatedAt:      now,
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if err := tx.DeactivateAutoBids(ctx); err != nil {
			return fmt.Errorf("failed to deactivate ceilings: %w", err)
		}

		sold = &settlement{listing: *l, winner: winner, split: split, order: order}
		result = settleSold
		return nil
	})
	if errors.Is(err, ErrListingNotFound) {
		return settleSkipped, nil
	}
	if err != nil {
		return settleSkipped, err
	}

	switch result {
	case settleEnded:
		m.cache.invalidate(listingID)
	case settleSold:
		m.afterSettle(ctx, sold)
	}
	return result, nil
}

func (m *Manager) afterSettle(ctx context.Context, s *settlement) {
	l := s.listing
	m.cache.invalidate(l.ID)

	slog.Info("Auction settled",
		slog.String("type", "sys"),
		slog.Int64("listing_id", l.ID),
		slog.Int64("winner_id", s.winner.BidderID),
		slog.Int64("order_id", s.order.ID),
		slog.String("final_price", s.split.Amount.StringFixed(2)),
		slog.String("platform_fee", s.split.Fee.StringFixed(2)))

	price := s.split.Amount
	received := s.split.SellerReceived
	m.record(ctx, models.ActivityWon, s.winner.BidderID, l.ID, &price,
		"Won auction #%d for %s", l.ID, money(price))
	m.record(ctx, models.ActivitySold, l.SellerID, l.ID, &received,
		"Auction #%d sold for %s", l.ID, money(price))

	m.notify(ctx, Notification{
		To:        s.winner.BidderID,
		ListingID: l.ID,
		Text:      fmt.Sprintf("Congratulations! You won auction #%d for %s.", l.ID, money(price)),
	})
	m.notify(ctx, Notification{
		To:        l.SellerID,
		ListingID: l.ID,
		Text: fmt.Sprintf("Your auction #%d sold for %s. You received %s after a %s platform fee.",
			l.ID, money(price), money(received), money(s.split.Fee)),
	})
}
