package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type ActivityKind string

const (
	ActivityBid        ActivityKind = "bid"
	ActivityProxyBid   ActivityKind = "proxy_bid"
	ActivityAutoBidSet ActivityKind = "auto_bid_set"
	ActivityDeposit    ActivityKind = "deposit"
	ActivitySold       ActivityKind = "auction_sold"
	ActivityWon        ActivityKind = "auction_won"
	ActivityEnded      ActivityKind = "auction_ended"
)

// Activity is an audit row. ListingID and Amount are optional.
type Activity struct {
	bun.BaseModel `bun:"table:activity_log,alias:act"`

	ID        int64            `bun:"id,pk,autoincrement" json:"id"`
	Kind      ActivityKind     `bun:"kind,notnull" json:"kind"`
	UserID    int64            `bun:"user_id,notnull" json:"user_id"`
	ListingID *int64           `bun:"listing_id" json:"listing_id,omitempty"`
	Message   string           `bun:"message,notnull" json:"message"`
	Amount    *decimal.Decimal `bun:"amount,type:numeric(14,2)" json:"amount,omitempty"`
	CreatedAt time.Time        `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
