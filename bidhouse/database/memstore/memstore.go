// Package memstore keeps the whole marketplace in process memory. Each
// listing has its own mutex standing in for the row lock, and ledger writes
// are journaled so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu        sync.Mutex
	locks     map[int64]*sync.Mutex
	accounts  map[int64]*models.Account
	usernames map[string]int64
	listings  map[int64]*models.Listing
	bids      map[int64][]models.Bid
	autoBids  map[int64][]models.AutoBid
	orders    []models.Order
	activity  []models.Activity
	messages  []models.Message
	seq       map[string]int64
}

func New() *Store {
	return &Store{
		locks:     make(map[int64]*sync.Mutex),
		accounts:  make(map[int64]*models.Account),
		usernames: make(map[string]int64),
		listings:  make(map[int64]*models.Listing),
		bids:      make(map[int64][]models.Bid),
		autoBids:  make(map[int64][]models.AutoBid),
		seq:       make(map[string]int64),
	}
}

// nextID must be called with s.mu held.
func (s *Store) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *Store) lockFor(listingID int64) *sync.Mutex {
	lk, ok := s.locks[listingID]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[listingID] = lk
	}
	return lk
}

func (s *Store) WithListingLock(ctx context.Context, listingID int64, fn func(ctx context.Context, tx auction.ListingTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.listings[listingID]; !ok {
		s.mu.Unlock()
		return auction.ErrListingNotFound
	}
	lk := s.lockFor(listingID)
	s.mu.Unlock()

	lk.Lock()
	defer lk.Unlock()

	s.mu.Lock()
	listing := *s.listings[listingID]
	tx := &listingTx{
		store:    s,
		listing:  &listing,
		bids:     append([]models.Bid(nil), s.bids[listingID]...),
		autoBids: append([]models.AutoBid(nil), s.autoBids[listingID]...),
	}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx.publish(time.Now())
	s.listings[listingID] = tx.listing
	s.bids[listingID] = tx.bids
	s.autoBids[listingID] = tx.autoBids
	s.orders = append(s.orders, tx.orders...)
	return nil
}

func (s *Store) ListingSnapshot(_ context.Context, listingID int64) (*auction.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[listingID]
	if !ok {
		return nil, auction.ErrListingNotFound
	}
	snap := &auction.Snapshot{Listing: *l}
	var leaderID int64
	switch top := highestActive(s.bids[listingID]); {
	case top != nil:
		leaderID = top.BidderID
	case l.Status == models.ListingStatusSold && l.WinnerID != nil:
		leaderID = *l.WinnerID
	}
	if leaderID > 0 {
		snap.HighestBidderID = &leaderID
		if acc, ok := s.accounts[leaderID]; ok {
			snap.HighestBidder = acc.Username
		}
	}
	return snap, nil
}

func (s *Store) BidHistory(_ context.Context, listingID int64, limit int) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[listingID]; !ok {
		return nil, auction.ErrListingNotFound
	}
	bids := append([]models.Bid(nil), s.bids[listingID]...)
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.After(bids[j].CreatedAt)
		}
		return bids[i].ID > bids[j].ID
	})
	if len(bids) > limit {
		bids = bids[:limit]
	}
	for i := range bids {
		if acc, ok := s.accounts[bids[i].BidderID]; ok {
			bids[i].BidderName = acc.Username
		}
	}
	return bids, nil
}

func (s *Store) EndUnbidAuctions(ctx context.Context, now time.Time) ([]models.Listing, error) {
	s.mu.Lock()
	var candidates []int64
	for id, l := range s.listings {
		if expiredAuction(l, now) && l.BidCount == 0 {
			candidates = append(candidates, id)
		}
	}
	s.mu.Unlock()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	var ended []models.Listing
	for _, id := range candidates {
		err := s.WithListingLock(ctx, id, func(ctx context.Context, tx auction.ListingTx) error {
			l := tx.Listing()
			if !expiredAuction(l, now) || l.BidCount != 0 {
				return nil
			}
			l.Status = models.ListingStatusEnded
			l.UpdatedAt = now
			if err := tx.DeactivateAutoBids(ctx); err != nil {
				return err
			}
			if err := tx.SaveListing(ctx); err != nil {
				return err
			}
			ended = append(ended, *l)
			return nil
		})
		if err != nil {
			return ended, err
		}
	}
	return ended, nil
}

func (s *Store) ExpiredAuctionIDs(_ context.Context, now time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*models.Listing
	for _, l := range s.listings {
		if expiredAuction(l, now) && l.BidCount > 0 {
			expired = append(expired, l)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].EndTime.Equal(expired[j].EndTime) {
			return expired[i].EndTime.Before(expired[j].EndTime)
		}
		return expired[i].ID < expired[j].ID
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	ids := make([]int64, len(expired))
	for i, l := range expired {
		ids[i] = l.ID
	}
	return ids, nil
}

func (s *Store) Account(_ context.Context, accountID int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountLocked(accountID)
}

func (s *Store) accountLocked(accountID int64) (*models.Account, error) {
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, auction.ErrAccountNotFound
	}
	out := *acc
	return &out, nil
}

func (s *Store) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[account.Username]; taken {
		return fmt.Errorf("%w: username %q is taken", auction.ErrInvalidInput, account.Username)
	}
	account.ID = s.nextID("accounts")
	stored := *account
	s.accounts[account.ID] = &stored
	s.usernames[account.Username] = account.ID
	return nil
}

func (s *Store) CreateListing(_ context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[listing.SellerID]; !ok {
		return auction.ErrAccountNotFound
	}
	listing.ID = s.nextID("listings")
	stored := *listing
	s.listings[listing.ID] = &stored
	return nil
}

func (s *Store) Deposit(_ context.Context, accountID int64, amount decimal.Decimal) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, auction.ErrAccountNotFound
	}
	acc.Balance = acc.Balance.Add(amount)
	acc.UpdatedAt = time.Now()
	out := *acc
	return &out, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// Notify stores the notification as a message row.
func (s *Store) Notify(_ context.Context, n auction.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listingID := n.ListingID
	s.messages = append(s.messages, models.Message{
		ID:         s.nextID("messages"),
		SenderID:   n.From,
		ReceiverID: n.To,
		ListingID:  &listingID,
		Content:    n.Text,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (s *Store) Record(_ context.Context, activity models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity.ID = s.nextID("activity_log")
	s.activity = append(s.activity, activity)
	return nil
}

func (s *Store) RecentActivities(_ context.Context, limit int) ([]models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Activity, 0, limit)
	for i := len(s.activity) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}

// Listing returns a copy of the committed listing row.
func (s *Store) Listing(listingID int64) (models.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return models.Listing{}, false
	}
	return *l, true
}

// Bids returns every committed bid on a listing in insertion order.
func (s *Store) Bids(listingID int64) []models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Bid(nil), s.bids[listingID]...)
}

func (s *Store) AutoBids(listingID int64) []models.AutoBid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AutoBid(nil), s.autoBids[listingID]...)
}

func (s *Store) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Order(nil), s.orders...)
}

func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

func expiredAuction(l *models.Listing, now time.Time) bool {
	return l.Kind == models.ListingKindAuction &&
		l.Status == models.ListingStatusActive &&
		l.EndTime.Before(now)
}

func highestActive(bids []models.Bid) *models.Bid {
	var top *models.Bid
	for i := range bids {
		b := &bids[i]
		if b.Status != models.BidStatusActive {
			continue
		}
		if top == nil || b.Amount.GreaterThan(top.Amount) || (b.Amount.Equal(top.Amount) && b.ID > top.ID) {
			top = b
		}
	}
	return top
}
