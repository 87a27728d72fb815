package auction

import (
	"context"
	"strings"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// MaxDeposit caps a single test deposit.
var MaxDeposit = decimal.NewFromInt(1_000_000)

// NewListing describes a listing handed over by the listing-creation flow.
type NewListing struct {
	SellerID     int64
	Title        string
	Kind         models.ListingKind
	StartPrice   decimal.Decimal
	MinIncrement decimal.Decimal
	EndTime      time.Time
}

func (m *Manager) CreateAccount(ctx context.Context, username string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalidInput("username is required")
	}
	now := m.now()
	account := &models.Account{
		Username:      username,
		Balance:       decimal.Zero,
		FrozenBalance: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (m *Manager) Account(ctx context.Context, accountID int64) (*models.Account, error) {
	if accountID <= 0 {
		return nil, invalidInput("account id must be positive")
	}
	return m.store.Account(ctx, accountID)
}

// CreateListing stores a new active listing. Auctions need a positive
// increment and an end time in the future.
func (m *Manager) CreateListing(ctx context.Context, in NewListing) (*models.Listing, error) {
	now := m.now()
	if in.SellerID <= 0 {
		return nil, invalidInput("seller id must be positive")
	}
	if in.StartPrice.IsNegative() || !in.StartPrice.Equal(in.StartPrice.Round(2)) {
		return nil, invalidInput("start price must be non-negative with at most two decimals")
	}
	switch in.Kind {
	case models.ListingKindAuction:
		if !validMoney(in.MinIncrement) {
			return nil, invalidInput("auctions need a positive minimum increment")
		}
		if !in.EndTime.After(now) {
			return nil, invalidInput("end time must be in the future")
		}
	case models.ListingKindFixed, models.ListingKindPrivate:
	default:
		return nil, invalidInput("unknown listing kind %q", in.Kind)
	}
	if _, err := m.store.Account(ctx, in.SellerID); err != nil {
		return nil, err
	}

	listing := &models.Listing{
		SellerID:     in.SellerID,
		Title:        strings.TrimSpace(in.Title),
		Kind:         in.Kind,
		CurrentPrice: in.StartPrice,
		MinIncrement: in.MinIncrement,
		EndTime:      in.EndTime,
		Status:       models.ListingStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateListing(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// Deposit credits test funds to an account.
func (m *Manager) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*models.Account, error) {
	if accountID <= 0 {
		return nil, invalidInput("account id must be positive")
	}
	if !validMoney(amount) || amount.GreaterThan(MaxDeposit) {
		return nil, invalidInput("deposit must be between 0.01 and %s", MaxDeposit.StringFixed(2))
	}

	account, err := m.store.Deposit(ctx, accountID, amount)
	if err != nil {
		return nil, err
	}
	m.record(ctx, models.ActivityDeposit, accountID, 0, &amount, "Deposited %s", money(amount))
	return account, nil
}

// BidHistory returns the latest bids on a listing, newest first.
func (m *Manager) BidHistory(ctx context.Context, listingID int64, limit int) ([]models.Bid, error) {
	if listingID <= 0 {
		return nil, invalidInput("listing id must be positive")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return m.store.BidHistory(ctx, listingID, limit)
}

func (m *Manager) RecentActivities(ctx context.Context, limit int) ([]models.Activity, error) {
	if m.activities == nil {
		return []models.Activity{}, nil
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return m.activities.RecentActivities(ctx, limit)
}
