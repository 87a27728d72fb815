package auction_test

import (
	"testing"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/models"
)

func TestScheduler_SettlesExpiredAuctions(t *testing.T) {
	f := newFixture(t)
	seller := f.account("seller", "0")
	a := f.account("a", "500")
	listing := f.auction(seller, "100", "10", time.Minute)
	if _, err := f.manager.PlaceBid(f.ctx, listing, a, dec("110")); err != nil {
		t.Fatalf("PlaceBid() error = %v", err)
	}
	f.clock.Advance(2 * time.Minute)

	s := auction.NewScheduler(f.manager, 10*time.Millisecond)
	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if got, _ := f.store.Listing(listing); got.Status == models.ListingStatusSold {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler did not settle the auction")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	f := newFixture(t)
	s := auction.NewScheduler(f.manager, time.Second)

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a scheduler that never started")
	}
}
