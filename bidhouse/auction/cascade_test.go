package auction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
)

func TestManager_Cascade_TwoCeilings(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "1000")
	b := f.account("b", "1000")
	c := f.account("c", "1000")
	listing := f.auction(seller, "50", "10", time.Hour)

	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, a, dec("100")); err != nil {
		t.Fatalf("SetAutoBidCeiling(a) error = %v", err)
	}
	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, b, dec("150")); err != nil {
		t.Fatalf("SetAutoBidCeiling(b) error = %v", err)
	}

	res, err := f.manager.PlaceBid(f.ctx, listing, c, dec("60"))
	if err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	if !res.NewPrice.Equal(dec("60")) || res.BidCount != 1 {
		t.Errorf("manual result = %s/%d, want 60/1", res.NewPrice, res.BidCount)
	}

	got, _ := f.store.Listing(listing)
	if !got.CurrentPrice.Equal(dec("110")) || got.BidCount != 6 {
		t.Errorf("listing = %s/%d, want 110/6", got.CurrentPrice, got.BidCount)
	}
	active := f.checkSingleActive(listing)
	if active == nil || active.BidderID != b || !active.IsProxy {
		t.Fatalf("active bid = %+v, want proxy bid by b", active)
	}

	wantSequence := []struct {
		bidder int64
		amount string
		proxy  bool
	}{
		{c, "60", false}, {b, "70", true}, {a, "80", true}, {b, "90", true}, {a, "100", true}, {b, "110", true},
	}
	bids := f.store.Bids(listing)
	if len(bids) != len(wantSequence) {
		t.Fatalf("bid rows = %d, want %d", len(bids), len(wantSequence))
	}
	for i, w := range wantSequence {
		if bids[i].BidderID != w.bidder || !bids[i].Amount.Equal(dec(w.amount)) || bids[i].IsProxy != w.proxy {
			t.Errorf("bid %d = %d/%s/%v, want %d/%s/%v", i, bids[i].BidderID, bids[i].Amount, bids[i].IsProxy, w.bidder, w.amount, w.proxy)
		}
	}

	f.wantBalances(a, "1000", "0")
	f.wantBalances(b, "890", "110")
	f.wantBalances(c, "1000", "0")
}

func TestManager_Cascade_CappedAtCeiling(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "1000")
	c := f.account("c", "1000")
	listing := f.auction(seller, "50", "10", time.Hour)

	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, a, dec("65")); err != nil {
		t.Fatalf("SetAutoBidCeiling() error = %v", err)
	}
	if _, err := f.manager.PlaceBid(f.ctx, listing, c, dec("60")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	got, _ := f.store.Listing(listing)
	if !got.CurrentPrice.Equal(dec("65")) {
		t.Errorf("price = %s, want 65 (capped at ceiling)", got.CurrentPrice)
	}
	if active := f.checkSingleActive(listing); active == nil || active.BidderID != a {
		t.Errorf("active bid = %+v, want a", active)
	}
}

func TestManager_Cascade_UnderfundedCeilingStaysActive(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "100")
	c := f.account("c", "1000")
	listing := f.auction(seller, "50", "10", time.Hour)
	other := f.auction(seller, "10", "10", time.Hour)

	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, a, dec("100")); err != nil {
		t.Fatalf("SetAutoBidCeiling() error = %v", err)
	}
	if _, err := f.manager.PlaceBid(f.ctx, other, a, dec("90")); err != nil {
		t.Fatalf("PlaceBid(other) error = %v", err)
	}
	if _, err := f.manager.PlaceBid(f.ctx, listing, c, dec("60")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	got, _ := f.store.Listing(listing)
	if !got.CurrentPrice.Equal(dec("60")) || got.BidCount != 1 {
		t.Errorf("listing = %s/%d, want 60/1", got.CurrentPrice, got.BidCount)
	}
	ceilings := f.store.AutoBids(listing)
	if len(ceilings) != 1 || !ceilings[0].IsActive {
		t.Errorf("ceilings = %+v, want one active", ceilings)
	}

	// Topping up lets the ceiling respond to the next bid.
	if _, err := f.manager.Deposit(f.ctx, a, dec("200")); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if _, err := f.manager.PlaceBid(f.ctx, listing, c, dec("70")); err != nil {
		t.Fatalf("PlaceBid(70) error = %v", err)
	}
	if active := f.checkSingleActive(listing); active == nil || active.BidderID != a || !active.Amount.Equal(dec("80")) {
		t.Errorf("active bid = %+v, want a at 80", active)
	}
}

func TestManager_Cascade_EqualCeilingsEarliestWins(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	early := f.account("early", "500")
	late := f.account("late", "500")
	c := f.account("c", "500")
	listing := f.auction(seller, "10", "10", time.Hour)

	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, early, dec("100")); err != nil {
		t.Fatalf("SetAutoBidCeiling(early) error = %v", err)
	}
	f.clock.Advance(time.Second)
	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, late, dec("100")); err != nil {
		t.Fatalf("SetAutoBidCeiling(late) error = %v", err)
	}
	if _, err := f.manager.PlaceBid(f.ctx, listing, c, dec("90")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	// Both ceilings can answer 90; the earlier one is chosen and the later
	// one cannot beat an equal amount.
	active := f.checkSingleActive(listing)
	if active == nil || active.BidderID != early || !active.Amount.Equal(dec("100")) {
		t.Errorf("active bid = %+v, want early at 100", active)
	}
	f.wantBalances(late, "500", "0")
}

func TestManager_Cascade_StopsWhenAuctionClosed(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "500")
	c := f.account("c", "500")
	listing := f.auction(seller, "10", "10", 2*time.Minute)

	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, a, dec("100")); err != nil {
		t.Fatalf("SetAutoBidCeiling() error = %v", err)
	}
	f.clock.Advance(3 * time.Minute)

	_, err := f.manager.PlaceBid(f.ctx, listing, c, dec("20"))
	if !errors.Is(err, auction.ErrAuctionClosed) {
		t.Fatalf("PlaceBid() error = %v, want ErrAuctionClosed", err)
	}
	if bids := f.store.Bids(listing); len(bids) != 0 {
		t.Errorf("bids = %d, want 0", len(bids))
	}
}

func TestManager_SetAutoBidCeiling(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	bidder := f.account("bidder", "100")
	listing := f.auction(seller, "50", "10", time.Hour)

	tests := []struct {
		name     string
		bidderID int64
		max      string
		wantErr  error
	}{
		{name: "below minimum", bidderID: bidder, max: "59", wantErr: auction.ErrBidTooLow},
		{name: "above balance", bidderID: bidder, max: "100.01", wantErr: auction.ErrInsufficientFunds},
		{name: "seller", bidderID: seller, max: "80", wantErr: auction.ErrSelfBid},
		{name: "zero", bidderID: bidder, max: "0", wantErr: auction.ErrInvalidInput},
		{name: "ok", bidderID: bidder, max: "80"},
		{name: "raise existing", bidderID: bidder, max: "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack, err := f.manager.SetAutoBidCeiling(f.ctx, listing, tt.bidderID, dec(tt.max))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("SetAutoBidCeiling() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetAutoBidCeiling() error = %v", err)
			}
			if !ack.IsActive || !ack.MaxAmount.Equal(dec(tt.max)) {
				t.Errorf("ack = %+v, want active at %s", ack, tt.max)
			}
		})
	}

	ceilings := f.store.AutoBids(listing)
	if len(ceilings) != 1 || !ceilings[0].MaxAmount.Equal(dec("100")) {
		t.Errorf("ceilings = %+v, want one row at 100", ceilings)
	}
	// Setting a ceiling neither freezes funds nor bids.
	f.wantBalances(bidder, "100", "0")
	if got, _ := f.store.Listing(listing); got.BidCount != 0 {
		t.Errorf("BidCount = %d, want 0", got.BidCount)
	}
	if len(f.store.Bids(listing)) != 0 {
		t.Errorf("setting a ceiling placed a bid")
	}
}

func TestManager_Cascade_StepLimit(t *testing.T) {
	cfg := auction.DefaultConfig()
	cfg.MaxCascadeSteps = 3
	f := newFixture(t, auction.WithConfig(cfg))
	seller := f.account("seller", "0")
	a := f.account("a", "1000")
	b := f.account("b", "1000")
	c := f.account("c", "1000")
	listing := f.auction(seller, "10", "10", time.Hour)

	for _, id := range []int64{a, b} {
		if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, id, dec("500")); err != nil {
			t.Fatalf("SetAutoBidCeiling(%d) error = %v", id, err)
		}
	}
	if _, err := f.manager.PlaceBid(f.ctx, listing, c, dec("20")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	got, _ := f.store.Listing(listing)
	if got.BidCount != 4 || !got.CurrentPrice.Equal(dec("50")) {
		t.Errorf("listing = %s/%d, want 50/4 after three proxy steps", got.CurrentPrice, got.BidCount)
	}
	f.checkSingleActive(listing)
}
