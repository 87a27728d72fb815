package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
)

// ListingStatus is the read-only view polled by bidders' pages.
type ListingStatus struct {
	ListingID        int64                `json:"listing_id"`
	Kind             models.ListingKind   `json:"kind"`
	CurrentPrice     decimal.Decimal      `json:"current_price"`
	MinimumBid       decimal.Decimal      `json:"min_bid"`
	BidCount         int                  `json:"bid_count"`
	EndTime          time.Time            `json:"end_time"`
	CountdownSeconds int64                `json:"countdown_seconds"`
	HighestBidderID  *int64               `json:"highest_bidder_id,omitempty"`
	HighestBidder    string               `json:"highest_bidder,omitempty"`
	Status           models.ListingStatus `json:"status"`
}

// GetListingStatus reads without taking the listing lock. Results may be a
// little stale; every committed change on this process evicts its entry.
func (m *Manager) GetListingStatus(ctx context.Context, listingID int64) (*ListingStatus, error) {
	if listingID <= 0 {
		return nil, invalidInput("listing id must be positive")
	}

	snap, ok := m.cache.get(listingID)
	if !ok {
		var err error
		snap, err = m.store.ListingSnapshot(ctx, listingID)
		if err != nil {
			return nil, err
		}
		m.cache.add(listingID, snap)
	}

	l := snap.Listing
	status := &ListingStatus{
		ListingID:       l.ID,
		Kind:            l.Kind,
		CurrentPrice:    l.CurrentPrice,
		MinimumBid:      l.MinimumBid(),
		BidCount:        l.BidCount,
		EndTime:         l.EndTime,
		HighestBidderID: snap.HighestBidderID,
		HighestBidder:   snap.HighestBidder,
		Status:          l.Status,
	}
	if remaining := l.EndTime.Sub(m.now()); remaining > 0 && l.Status == models.ListingStatusActive {
		status.CountdownSeconds = int64(remaining / time.Second)
	}
	return status, nil
}

type cachedSnapshot struct {
	snapshot *Snapshot
	storedAt time.Time
}

type statusCache struct {
	entries *lru.Cache
	ttl     time.Duration
	now     func() time.Time
}

func newStatusCache(size int, ttl time.Duration, now func() time.Time) *statusCache {
	if size <= 0 || ttl <= 0 {
		return &statusCache{now: now}
	}
	entries, err := lru.New(size)
	if err != nil {
		panic(fmt.Sprintf("status cache: %v", err))
	}
	return &statusCache{entries: entries, ttl: ttl, now: now}
}

func (c *statusCache) get(listingID int64) (*Snapshot, bool) {
	if c.entries == nil {
		return nil, false
	}
	value, ok := c.entries.Get(listingID)
	if !ok {
		return nil, false
	}
	cached := value.(cachedSnapshot)
	if c.now().Sub(cached.storedAt) > c.ttl {
		c.entries.Remove(listingID)
		return nil, false
	}
	return cached.snapshot, true
}

func (c *statusCache) add(listingID int64, snap *Snapshot) {
	if c.entries == nil {
		return
	}
	c.entries.Add(listingID, cachedSnapshot{snapshot: snap, storedAt: c.now()})
}

func (c *statusCache) invalidate(listingID int64) {
	if c.entries == nil {
		return
	}
	c.entries.Remove(listingID)
}
