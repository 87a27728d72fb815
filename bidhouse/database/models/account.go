package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Account holds a user's spendable balance and the funds frozen behind open bids.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID             int64           `bun:"id,pk,autoincrement" json:"id"`
	Username       string          `bun:"username,notnull,unique" json:"username"`
	Balance        decimal.Decimal `bun:"balance,type:numeric(14,2),notnull,default:0" json:"balance"`
	FrozenBalance  decimal.Decimal `bun:"frozen_balance,type:numeric(14,2),notnull,default:0" json:"frozen_balance"`
	// TotalBidAmount sums every manual bid the account has placed.
	TotalBidAmount decimal.Decimal `bun:"total_bid_amount,type:numeric(14,2),notnull,default:0" json:"total_bid_amount"`
	CreatedAt      time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Total is available plus frozen funds.
func (a *Account) Total() decimal.Decimal {
	return a.Balance.Add(a.FrozenBalance)
}

// AchievementTier is the bidder rank earned from cumulative manual bids.
type AchievementTier struct {
	Level    int             `json:"level"`
	Title    string          `json:"title"`
	MinTotal decimal.Decimal `json:"min_total"`
}

var achievementTiers = []AchievementTier{
	{Level: 1, Title: "Newcomer", MinTotal: decimal.Zero},
	{Level: 2, Title: "Active Bidder", MinTotal: decimal.NewFromInt(10_000)},
	{Level: 3, Title: "Collector", MinTotal: decimal.NewFromInt(50_000)},
	{Level: 4, Title: "Senior Collector", MinTotal: decimal.NewFromInt(200_000)},
	{Level: 5, Title: "Diamond Member", MinTotal: decimal.NewFromInt(500_000)},
	{Level: 6, Title: "Whale", MinTotal: decimal.NewFromInt(1_000_000)},
	{Level: 7, Title: "Legendary Collector", MinTotal: decimal.NewFromInt(5_000_000)},
}

// Tier returns the highest tier whose threshold the bid total has reached.
func (a *Account) Tier() AchievementTier {
	tier := achievementTiers[0]
	for _, t := range achievementTiers[1:] {
		if a.TotalBidAmount.GreaterThanOrEqual(t.MinTotal) {
			tier = t
		}
	}
	return tier
}
