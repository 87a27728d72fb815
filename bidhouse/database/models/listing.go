package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type ListingKind string

const (
	ListingKindAuction ListingKind = "auction"
	ListingKindFixed   ListingKind = "fixed"
	ListingKindPrivate ListingKind = "private"
)

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusSoldOut   ListingStatus = "sold_out"
	ListingStatusEnded     ListingStatus = "ended"
	ListingStatusCancelled ListingStatus = "cancelled"
)

type Listing struct {
	bun.BaseModel `bun:"table:listings,alias:l"`

	ID           int64           `bun:"id,pk,autoincrement" json:"id"`
	SellerID     int64           `bun:"seller_id,notnull" json:"seller_id"`
	Title        string          `bun:"title,notnull,default:''" json:"title"`
	Kind         ListingKind     `bun:"kind,notnull" json:"kind"`
	CurrentPrice decimal.Decimal `bun:"current_price,type:numeric(14,2),notnull" json:"current_price"`
	MinIncrement decimal.Decimal `bun:"min_increment,type:numeric(14,2),notnull,default:0" json:"min_increment"`
	EndTime      time.Time       `bun:"end_time,notnull" json:"end_time"`
	Status       ListingStatus   `bun:"status,notnull,default:'active'" json:"status"`
	BidCount     int             `bun:"bid_count,notnull,default:0" json:"bid_count"`
	WinnerID     *int64          `bun:"winner_id" json:"winner_id,omitempty"`
	CreatedAt    time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// MinimumBid is the lowest amount the next bid may carry.
func (l *Listing) MinimumBid() decimal.Decimal {
	return l.CurrentPrice.Add(l.MinIncrement)
}

// Open reports whether the listing still accepts bids at now.
func (l *Listing) Open(now time.Time) bool {
	return l.Status == ListingStatusActive && l.EndTime.After(now)
}
