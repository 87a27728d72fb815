package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPaid OrderStatus = "paid"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID             int64           `bun:"id,pk,autoincrement" json:"id"`
	ListingID      int64           `bun:"listing_id,notnull" json:"listing_id"`
	BuyerID        int64           `bun:"buyer_id,notnull" json:"buyer_id"`
	SellerID       int64           `bun:"seller_id,notnull" json:"seller_id"`
	FinalPrice     decimal.Decimal `bun:"final_price,type:numeric(14,2),notnull" json:"final_price"`
	PlatformFee    decimal.Decimal `bun:"platform_fee,type:numeric(14,2),notnull" json:"platform_fee"`
	SellerReceived decimal.Decimal `bun:"seller_received,type:numeric(14,2),notnull" json:"seller_received"`
	Status         OrderStatus     `bun:"status,notnull" json:"status"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
