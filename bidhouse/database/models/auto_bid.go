package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// AutoBid is a standing proxy ceiling: the engine may bid for the owner up to MaxAmount.
type AutoBid struct {
	bun.BaseModel `bun:"table:auto_bids,alias:ab"`

	ID        int64           `bun:"id,pk,autoincrement" json:"id"`
	ListingID int64           `bun:"listing_id,notnull,unique:auto_bids_listing_bidder" json:"listing_id"`
	BidderID  int64           `bun:"bidder_id,notnull,unique:auto_bids_listing_bidder" json:"bidder_id"`
	MaxAmount decimal.Decimal `bun:"max_amount,type:numeric(14,2),notnull" json:"max_amount"`
	IsActive  bool            `bun:"is_active,notnull,default:true" json:"is_active"`
	CreatedAt time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}
