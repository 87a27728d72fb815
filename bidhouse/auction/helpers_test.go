package auction_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/memstore"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memstore.Store
	clock   *clock
	manager *auction.Manager
}

func newFixture(t *testing.T, opts ...auction.Option) *fixture {
	t.Helper()
	store := memstore.New()
	clk := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}

	base := []auction.Option{
		auction.WithClock(clk.Now),
		auction.WithNotifier(store),
		auction.WithActivitySinks(store),
		auction.WithActivityReader(store),
	}
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		clock:   clk,
		manager: auction.NewManager(store, append(base, opts...)...),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) account(name, balance string) int64 {
	f.t.Helper()
	acc, err := f.manager.CreateAccount(f.ctx, name)
	if err != nil {
		f.t.Fatalf("CreateAccount(%s) error = %v", name, err)
	}
	if b := dec(balance); b.IsPositive() {
		if _, err := f.manager.Deposit(f.ctx, acc.ID, b); err != nil {
			f.t.Fatalf("Deposit(%s) error = %v", name, err)
		}
	}
	return acc.ID
}

func (f *fixture) auction(sellerID int64, price, increment string, endsIn time.Duration) int64 {
	f.t.Helper()
	l, err := f.manager.CreateListing(f.ctx, auction.NewListing{
		SellerID:     sellerID,
		Title:        "lot",
		Kind:         models.ListingKindAuction,
		StartPrice:   dec(price),
		MinIncrement: dec(increment),
		EndTime:      f.clock.Now().Add(endsIn),
	})
	if err != nil {
		f.t.Fatalf("CreateListing() error = %v", err)
	}
	return l.ID
}

func (f *fixture) balances(accountID int64) (available, frozen decimal.Decimal) {
	f.t.Helper()
	acc, err := f.store.Account(f.ctx, accountID)
	if err != nil {
		f.t.Fatalf("Account(%d) error = %v", accountID, err)
	}
	return acc.Balance, acc.FrozenBalance
}

func (f *fixture) wantBalances(accountID int64, available, frozen string) {
	f.t.Helper()
	gotAvail, gotFrozen := f.balances(accountID)
	if !gotAvail.Equal(dec(available)) || !gotFrozen.Equal(dec(frozen)) {
		f.t.Errorf("account %d balances = %s/%s, want %s/%s",
			accountID, gotAvail.StringFixed(2), gotFrozen.StringFixed(2), available, frozen)
	}
}

// checkSingleActive asserts the one-active-bid-equals-price invariant.
func (f *fixture) checkSingleActive(listingID int64) *models.Bid {
	f.t.Helper()
	l, ok := f.store.Listing(listingID)
	if !ok {
		f.t.Fatalf("listing %d missing", listingID)
	}
	var active []models.Bid
	for _, b := range f.store.Bids(listingID) {
		if b.Status == models.BidStatusActive {
			active = append(active, b)
		}
	}
	if len(active) > 1 {
		f.t.Fatalf("listing %d has %d active bids", listingID, len(active))
	}
	if len(active) == 0 {
		return nil
	}
	if !active[0].Amount.Equal(l.CurrentPrice) {
		f.t.Errorf("active bid %s != current price %s", active[0].Amount, l.CurrentPrice)
	}
	return &active[0]
}
