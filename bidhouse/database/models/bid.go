package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BidStatus string

const (
	BidStatusActive   BidStatus = "active"
	BidStatusOutbid   BidStatus = "outbid"
	BidStatusWon      BidStatus = "won"
	BidStatusRefunded BidStatus = "refunded"
)

type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID        int64           `bun:"id,pk,autoincrement" json:"id"`
	ListingID int64           `bun:"listing_id,notnull" json:"listing_id"`
	BidderID  int64           `bun:"bidder_id,notnull" json:"bidder_id"`
	Amount    decimal.Decimal `bun:"amount,type:numeric(14,2),notnull" json:"amount"`
	IsProxy   bool            `bun:"is_proxy,notnull,default:false" json:"is_proxy"`
	Status    BidStatus       `bun:"status,notnull,default:'active'" json:"status"`
	CreatedAt time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	// Filled by history queries only.
	BidderName string `bun:"bidder_name,scanonly" json:"bidder_name,omitempty"`
}
