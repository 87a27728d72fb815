package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/ledger"
	"github.com/shopspring/decimal"
)

func seed(t *testing.T) (*Store, *models.Account, *models.Listing) {
	t.Helper()
	ctx := context.Background()
	s := New()

	seller := &models.Account{Username: "seller"}
	bidder := &models.Account{Username: "bidder", Balance: decimal.NewFromInt(100)}
	for _, a := range []*models.Account{seller, bidder} {
		if err := s.CreateAccount(ctx, a); err != nil {
			t.Fatalf("CreateAccount() error = %v", err)
		}
	}

	listing := &models.Listing{
		SellerID:     seller.ID,
		Kind:         models.ListingKindAuction,
		CurrentPrice: decimal.NewFromInt(10),
		MinIncrement: decimal.NewFromInt(1),
		EndTime:      time.Now().Add(time.Hour),
		Status:       models.ListingStatusActive,
	}
	if err := s.CreateListing(ctx, listing); err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}
	return s, bidder, listing
}

func TestStore_WithListingLock_RollsBack(t *testing.T) {
	s, bidder, listing := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithListingLock(ctx, listing.ID, func(ctx context.Context, tx auction.ListingTx) error {
		if err := tx.Ledger().Freeze(ctx, bidder.ID, decimal.NewFromInt(40)); err != nil {
			return err
		}
		if err := tx.InsertBid(ctx, &models.Bid{ListingID: listing.ID, BidderID: bidder.ID, Amount: decimal.NewFromInt(40), Status: models.BidStatusActive}); err != nil {
			return err
		}
		tx.Listing().CurrentPrice = decimal.NewFromInt(40)
		tx.Listing().BidCount++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithListingLock() error = %v, want %v", err, boom)
	}

	acc, _ := s.Account(ctx, bidder.ID)
	if !acc.Balance.Equal(decimal.NewFromInt(100)) || !acc.FrozenBalance.IsZero() {
		t.Errorf("balances after rollback = %v/%v, want 100/0", acc.Balance, acc.FrozenBalance)
	}
	got, _ := s.Listing(listing.ID)
	if !got.CurrentPrice.Equal(decimal.NewFromInt(10)) || got.BidCount != 0 {
		t.Errorf("listing after rollback = %v/%d, want 10/0", got.CurrentPrice, got.BidCount)
	}
	if bids := s.Bids(listing.ID); len(bids) != 0 {
		t.Errorf("bids after rollback = %d, want 0", len(bids))
	}
}

func TestStore_WithListingLock_Commits(t *testing.T) {
	s, bidder, listing := seed(t)
	ctx := context.Background()

	err := s.WithListingLock(ctx, listing.ID, func(ctx context.Context, tx auction.ListingTx) error {
		if err := tx.Ledger().Freeze(ctx, bidder.ID, decimal.NewFromInt(40)); err != nil {
			return err
		}
		tx.Listing().BidCount = 1
		return tx.InsertBid(ctx, &models.Bid{ListingID: listing.ID, BidderID: bidder.ID, Amount: decimal.NewFromInt(40), Status: models.BidStatusActive})
	})
	if err != nil {
		t.Fatalf("WithListingLock() error = %v", err)
	}

	acc, _ := s.Account(ctx, bidder.ID)
	if !acc.Balance.Equal(decimal.NewFromInt(60)) || !acc.FrozenBalance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balances = %v/%v, want 60/40", acc.Balance, acc.FrozenBalance)
	}
	snap, err := s.ListingSnapshot(ctx, listing.ID)
	if err != nil {
		t.Fatalf("ListingSnapshot() error = %v", err)
	}
	if snap.HighestBidderID == nil || *snap.HighestBidderID != bidder.ID || snap.HighestBidder != "bidder" {
		t.Errorf("snapshot leader = %v %q, want %d bidder", snap.HighestBidderID, snap.HighestBidder, bidder.ID)
	}
}

func TestStore_WithListingLock_NotFound(t *testing.T) {
	s := New()
	err := s.WithListingLock(context.Background(), 99, func(context.Context, auction.ListingTx) error { return nil })
	if !errors.Is(err, auction.ErrListingNotFound) {
		t.Errorf("WithListingLock() error = %v, want ErrListingNotFound", err)
	}
}

func TestMemLedger_Guards(t *testing.T) {
	s, bidder, listing := seed(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		op      func(l ledger.Ledger) error
		wantErr error
	}{
		{
			name:    "freeze beyond balance",
			op:      func(l ledger.Ledger) error { return l.Freeze(ctx, bidder.ID, decimal.NewFromInt(101)) },
			wantErr: ledger.ErrInsufficientFunds,
		},
		{
			name:    "unfreeze nothing frozen",
			op:      func(l ledger.Ledger) error { return l.Unfreeze(ctx, bidder.ID, decimal.NewFromInt(1)) },
			wantErr: ledger.ErrFrozenShortfall,
		},
		{
			name:    "unknown account",
			op:      func(l ledger.Ledger) error { return l.Credit(ctx, 404, decimal.NewFromInt(1)) },
			wantErr: ledger.ErrAccountNotFound,
		},
		{
			name:    "non-positive amount",
			op:      func(l ledger.Ledger) error { return l.Freeze(ctx, bidder.ID, decimal.Zero) },
			wantErr: ledger.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.WithListingLock(ctx, listing.ID, func(ctx context.Context, tx auction.ListingTx) error {
				return tt.op(tx.Ledger())
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_WithListingLock_Serializes(t *testing.T) {
	s, _, listing := seed(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithListingLock(ctx, listing.ID, func(ctx context.Context, tx auction.ListingTx) error {
				l := tx.Listing()
				l.BidCount++
				return tx.SaveListing(ctx)
			})
		}()
	}
	wg.Wait()

	got, _ := s.Listing(listing.ID)
	if got.BidCount != 50 {
		t.Errorf("BidCount = %d, want 50", got.BidCount)
	}
}

func TestListingTx_BestAutoBid_TieBreak(t *testing.T) {
	s, _, listing := seed(t)
	ctx := context.Background()
	base := time.Now()

	err := s.WithListingLock(ctx, listing.ID, func(ctx context.Context, tx auction.ListingTx) error {
		if _, err := tx.UpsertAutoBid(ctx, 7, decimal.NewFromInt(50), base.Add(time.Second)); err != nil {
			return err
		}
		if _, err := tx.UpsertAutoBid(ctx, 8, decimal.NewFromInt(50), base); err != nil {
			return err
		}
		if _, err := tx.UpsertAutoBid(ctx, 9, decimal.NewFromInt(30), base); err != nil {
			return err
		}

		best, err := tx.BestAutoBid(ctx, 0, decimal.NewFromInt(20))
		if err != nil {
			return err
		}
		if best == nil || best.BidderID != 8 {
			t.Errorf("BestAutoBid() = %+v, want bidder 8 (earliest of the tie)", best)
		}

		best, _ = tx.BestAutoBid(ctx, 8, decimal.NewFromInt(20))
		if best == nil || best.BidderID != 7 {
			t.Errorf("BestAutoBid(exclude 8) = %+v, want bidder 7", best)
		}

		best, _ = tx.BestAutoBid(ctx, 0, decimal.NewFromInt(50))
		if best != nil {
			t.Errorf("BestAutoBid(above 50) = %+v, want nil", best)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithListingLock() error = %v", err)
	}
}

// commitFreeze freezes amount for the bidder in its own committed transaction.
func commitFreeze(t *testing.T, s *Store, listingID, bidderID int64, amount decimal.Decimal) {
	t.Helper()
	err := s.WithListingLock(context.Background(), listingID, func(ctx context.Context, tx auction.ListingTx) error {
		return tx.Ledger().Freeze(ctx, bidderID, amount)
	})
	if err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}
}

func secondListing(t *testing.T, s *Store, sellerID int64) *models.Listing {
	t.Helper()
	other := &models.Listing{
		SellerID:     sellerID,
		Kind:         models.ListingKindAuction,
		CurrentPrice: decimal.NewFromInt(10),
		MinIncrement: decimal.NewFromInt(1),
		EndTime:      time.Now().Add(time.Hour),
		Status:       models.ListingStatusActive,
	}
	if err := s.CreateListing(context.Background(), other); err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}
	return other
}

func TestStore_UncommittedUnfreezeIsNotSpendable(t *testing.T) {
	s, bidder, listing := seed(t)
	other := secondListing(t, s, listing.SellerID)
	ctx := context.Background()
	boom := errors.New("boom")

	commitFreeze(t, s, listing.ID, bidder.ID, decimal.NewFromInt(100))

	var otherErr error
	err := s.WithListingLock(ctx, listing.ID, func(ctx context.Context, tx auction.ListingTx) error {
		if err := tx.Ledger().Unfreeze(ctx, bidder.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}

		acc, err := tx.Account(ctx, bidder.ID)
		if err != nil {
			return err
		}
		if !acc.Balance.Equal(decimal.NewFromInt(50)) || !acc.FrozenBalance.Equal(decimal.NewFromInt(50)) {
			t.Errorf("balances inside tx = %v/%v, want 50/50", acc.Balance, acc.FrozenBalance)
		}

		otherErr = s.WithListingLock(ctx, other.ID, func(ctx context.Context, tx auction.ListingTx) error {
			return tx.Ledger().Freeze(ctx, bidder.ID, decimal.NewFromInt(50))
		})

		// The pending credit is spendable inside its own transaction.
		if err := tx.Ledger().Freeze(ctx, bidder.ID, decimal.NewFromInt(30)); err != nil {
			t.Errorf("Freeze() against pending credit error = %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithListingLock() error = %v, want %v", err, boom)
	}
	if !errors.Is(otherErr, ledger.ErrInsufficientFunds) {
		t.Errorf("freeze on other listing error = %v, want ErrInsufficientFunds", otherErr)
	}

	acc, _ := s.Account(ctx, bidder.ID)
	if !acc.Balance.IsZero() || !acc.FrozenBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balances after rollback = %v/%v, want 0/100", acc.Balance, acc.FrozenBalance)
	}
}

func TestStore_CommittedUnfreezeIsPublished(t *testing.T) {
	s, bidder, listing := seed(t)
	other := secondListing(t, s, listing.SellerID)
	ctx := context.Background()

	commitFreeze(t, s, listing.ID, bidder.ID, decimal.NewFromInt(100))

	err := s.WithListingLock(ctx, listing.ID, func(ctx context.Context, tx auction.ListingTx) error {
		if err := tx.Ledger().Unfreeze(ctx, bidder.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		return tx.AddBidVolume(ctx, bidder.ID, decimal.NewFromInt(50))
	})
	if err != nil {
		t.Fatalf("WithListingLock() error = %v", err)
	}

	acc, _ := s.Account(ctx, bidder.ID)
	if !acc.Balance.Equal(decimal.NewFromInt(50)) || !acc.FrozenBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balances after commit = %v/%v, want 50/50", acc.Balance, acc.FrozenBalance)
	}
	if !acc.TotalBidAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("TotalBidAmount = %v, want 50", acc.TotalBidAmount)
	}

	commitFreeze(t, s, other.ID, bidder.ID, decimal.NewFromInt(50))
}
