package auction

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

// resolveCascade lets standing ceilings answer the current leader until none
// can. Each step is its own locked transaction that re-reads the listing, so
// an outside bid between steps is simply the new leader of the next step.
func (m *Manager) resolveCascade(ctx context.Context, listingID int64) {
	for step := 0; step < m.cfg.MaxCascadeSteps; step++ {
		outcome, err := m.cascadeStep(ctx, listingID)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, ErrFreezeRaceLost) {
				level = slog.LevelDebug
			}
			slog.Log(ctx, level, "Auto-bid cascade stopped",
				slog.String("type", "bid"),
				slog.Int64("listing_id", listingID),
				slog.Int("step", step),
				slog.Any("error", err))
			return
		}
		if outcome == nil {
			return
		}
		m.afterBid(ctx, outcome)
	}

	slog.Warn("Auto-bid cascade reached step limit",
		slog.String("type", "bid"),
		slog.Int64("listing_id", listingID),
		slog.Int("max_steps", m.cfg.MaxCascadeSteps))
}

// cascadeStep places at most one proxy bid. A nil outcome means quiescent.
func (m *Manager) cascadeStep(ctx context.Context, listingID int64) (*bidOutcome, error) {
	now := m.now()
	var outcome *bidOutcome
	err := m.store.WithListingLock(ctx, listingID, func(ctx context.Context, tx ListingTx) error {
		l := tx.Listing()
		if l.Kind != models.ListingKindAuction || !l.Open(now) {
			return nil
		}

		active, err := tx.ActiveBids(ctx)
		if err != nil || len(active) == 0 {
			return err
		}
		leader := active[0]

		ceiling, err := tx.BestAutoBid(ctx, leader.BidderID, l.CurrentPrice)
		if err != nil || ceiling == nil {
			return err
		}
		if ceiling.BidderID == l.SellerID {
			return nil
		}

		candidate := decimal.Min(l.MinimumBid(), ceiling.MaxAmount)
		if !candidate.GreaterThan(l.CurrentPrice) {
			return nil
		}

		if err := lockParticipants(ctx, tx, ceiling.BidderID); err != nil {
			return err
		}
		// An under-funded ceiling stays active: the owner may top up later.
		account, err := tx.Account(ctx, ceiling.BidderID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(candidate) {
			slog.Debug("Auto-bid skipped, ceiling owner lacks funds",
				slog.String("type", "bid"),
				slog.Int64("listing_id", listingID),
				slog.Int64("bidder_id", ceiling.BidderID),
				slog.String("candidate", candidate.StringFixed(2)))
			return nil
		}

		outcome, err = m.applyBid(ctx, tx, ceiling.BidderID, candidate, true, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
