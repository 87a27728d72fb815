package auction_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
)

func TestManager_SweepExpiredAuctions_Sold(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "1000")
	b := f.account("b", "1000")
	listing := f.auction(seller, "100", "10", time.Hour)

	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, b, dec("120")); err != nil {
		t.Fatalf("SetAutoBidCeiling() error = %v", err)
	}
	if _, err := f.manager.PlaceBid(f.ctx, listing, a, dec("110")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	report, err := f.manager.SweepExpiredAuctions(f.ctx)
	if err != nil {
		t.Fatalf("SweepExpiredAuctions() error = %v", err)
	}
	if report.Sold != 1 || report.Ended != 0 || report.Failed != 0 {
		t.Errorf("report = %+v, want one sold", report)
	}

	orders := f.store.Orders()
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	o := orders[0]
	if o.BuyerID != b || o.SellerID != seller || o.Status != models.OrderStatusPaid {
		t.Errorf("order = %+v, want paid order from b to seller", o)
	}
	if !o.FinalPrice.Equal(dec("120")) || !o.PlatformFee.Equal(dec("6")) || !o.SellerReceived.Equal(dec("114")) {
		t.Errorf("order amounts = %s/%s/%s, want 120/6/114", o.FinalPrice, o.PlatformFee, o.SellerReceived)
	}

	f.wantBalances(b, "880", "0")
	f.wantBalances(a, "1000", "0")
	f.wantBalances(seller, "114", "0")

	got, _ := f.store.Listing(listing)
	if got.Status != models.ListingStatusSold || got.WinnerID == nil || *got.WinnerID != b {
		t.Errorf("listing = %s winner %v, want sold to %d", got.Status, got.WinnerID, b)
	}
	for _, bid := range f.store.Bids(listing) {
		if bid.Status == models.BidStatusActive {
			t.Errorf("bid %d still active after settlement", bid.ID)
		}
		if bid.BidderID == b && bid.Status != models.BidStatusWon {
			t.Errorf("winning bid status = %s, want won", bid.Status)
		}
	}
	for _, ab := range f.store.AutoBids(listing) {
		if ab.IsActive {
			t.Errorf("ceiling of %d still active", ab.BidderID)
		}
	}

	var winnerMsg, sellerMsg bool
	for _, msg := range f.store.Messages() {
		switch {
		case msg.ReceiverID == b && strings.Contains(msg.Content, "won"):
			winnerMsg = true
		case msg.ReceiverID == seller && strings.Contains(msg.Content, "$114.00"):
			sellerMsg = true
		}
	}
	if !winnerMsg || !sellerMsg {
		t.Errorf("winner message %v, seller message %v, want both", winnerMsg, sellerMsg)
	}
}

func TestManager_SweepExpiredAuctions_Idempotent(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "500")
	listing := f.auction(seller, "100", "10", time.Minute*5)

	if _, err := f.manager.PlaceBid(f.ctx, listing, a, dec("110")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	f.clock.Advance(10 * time.Minute)

	first, err := f.manager.SweepExpiredAuctions(f.ctx)
	if err != nil || first.Sold != 1 {
		t.Fatalf("first sweep = %+v, %v; want one sold", first, err)
	}
	second, err := f.manager.SweepExpiredAuctions(f.ctx)
	if err != nil || second.Settled() != 0 {
		t.Fatalf("second sweep = %+v, %v; want nothing settled", second, err)
	}
	if n := len(f.store.Orders()); n != 1 {
		t.Errorf("orders = %d, want 1", n)
	}
	f.wantBalances(seller, "104.5", "0")
	f.wantBalances(a, "390", "0")
}

func TestManager_SweepExpiredAuctions_NoBids(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	bidder := f.account("bidder", "500")
	listing := f.auction(seller, "100", "10", time.Minute)

	if _, err := f.manager.SetAutoBidCeiling(f.ctx, listing, bidder, dec("200")); err != nil {
		t.Fatalf("SetAutoBidCeiling() error = %v", err)
	}
	f.clock.Advance(2 * time.Minute)

	report, err := f.manager.SweepExpiredAuctions(f.ctx)
	if err != nil {
		t.Fatalf("SweepExpiredAuctions() error = %v", err)
	}
	if report.Ended != 1 || report.Sold != 0 {
		t.Errorf("report = %+v, want one ended", report)
	}
	got, _ := f.store.Listing(listing)
	if got.Status != models.ListingStatusEnded {
		t.Errorf("status = %s, want ended", got.Status)
	}
	if len(f.store.Orders()) != 0 {
		t.Errorf("unexpected order for an auction without bids")
	}
	for _, ab := range f.store.AutoBids(listing) {
		if ab.IsActive {
			t.Errorf("ceiling still active on ended auction")
		}
	}
	msgs := f.store.Messages()
	if len(msgs) != 1 || msgs[0].ReceiverID != seller {
		t.Errorf("messages = %+v, want one to the seller", msgs)
	}
}

func TestManager_SweepExpiredAuctions_RespectsExtension(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "500")
	listing := f.auction(seller, "100", "10", 30*time.Second)

	f.clock.Advance(10 * time.Second)
	res, err := f.manager.PlaceBid(f.ctx, listing, a, dec("110"))
	if err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	if !res.Extended {
		t.Fatalf("bid with 20s left was not extended")
	}

	f.clock.Advance(time.Minute)
	report, err := f.manager.SweepExpiredAuctions(f.ctx)
	if err != nil || report.Settled() != 0 {
		t.Fatalf("sweep before extended end = %+v, %v; want nothing", report, err)
	}

	f.clock.Advance(time.Minute)
	report, err = f.manager.SweepExpiredAuctions(f.ctx)
	if err != nil || report.Sold != 1 {
		t.Fatalf("sweep after extended end = %+v, %v; want one sold", report, err)
	}
}

func TestManager_SweepExpiredAuctions_ExactEndTime(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "500")
	listing := f.auction(seller, "100", "10", time.Hour)
	if _, err := f.manager.PlaceBid(f.ctx, listing, a, dec("110")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}

	f.clock.Advance(time.Hour)
	report, err := f.manager.SweepExpiredAuctions(f.ctx)
	if err != nil || report.Settled() != 0 {
		t.Errorf("sweep at the end instant = %+v, %v; want nothing settled", report, err)
	}
	got, _ := f.store.Listing(listing)
	if got.Status != models.ListingStatusActive {
		t.Errorf("status = %s, want active until strictly past end", got.Status)
	}
}

func TestManager_SweepExpiredAuctions_Concurrent(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "5000")

	var listings []int64
	for i := 0; i < 5; i++ {
		id := f.auction(seller, "100", "10", time.Minute)
		if _, err := f.manager.PlaceBid(f.ctx, id, a, dec("200")); err != nil {
			t.Fatalf("PlaceBid(%d) error = %v", id, err)
		}
		listings = append(listings, id)
	}
	f.auction(seller, "100", "10", time.Minute)
	f.clock.Advance(2 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.manager.SweepExpiredAuctions(f.ctx); err != nil {
				t.Errorf("SweepExpiredAuctions() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(f.store.Orders()); n != len(listings) {
		t.Errorf("orders = %d, want %d", n, len(listings))
	}
	f.wantBalances(a, "4000", "0")
	f.wantBalances(seller, "950", "0")
}
