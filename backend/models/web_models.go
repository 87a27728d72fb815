package models

import (
	"errors"
	"strings"
	"time"

	dbmodels "github.com/bidhouse/server/bidhouse/database/models"
	"github.com/shopspring/decimal"
)

// PlaceBidRequest is the body of POST /api/listings/:id/bids
type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AutoBidRequest is the body of PUT /api/listings/:id/auto-bid
type AutoBidRequest struct {
	MaxAmount decimal.Decimal `json:"max_amount"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// AccountResponse is an account together with its achievement tier.
type AccountResponse struct {
	*dbmodels.Account
	Tier dbmodels.AchievementTier `json:"tier"`
}

func NewAccountResponse(account *dbmodels.Account) *AccountResponse {
	return &AccountResponse{Account: account, Tier: account.Tier()}
}

type CreateAccountRequest struct {
	Username string `json:"username"`
}

// CreateListingRequest accepts either an absolute end_time or a duration.
type CreateListingRequest struct {
	Title           string          `json:"title"`
	Kind            string          `json:"kind"`
	StartPrice      decimal.Decimal `json:"start_price"`
	MinIncrement    decimal.Decimal `json:"min_increment"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	DurationSeconds int64           `json:"duration_seconds,omitempty"`
}

// SweepResult is returned by POST /api/auctions/sweep
type SweepResult struct {
	CountSettled int `json:"count_settled"`
	Ended        int `json:"ended"`
	Sold         int `json:"sold"`
	Failed       int `json:"failed"`
}

// Validate checks the request shape; business rules stay in the engine.
func (r *CreateListingRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if len(r.Title) > 200 {
		return errors.New("title must be less than 200 characters")
	}
	if r.Kind == "" {
		r.Kind = "auction"
	}
	if r.EndTime != nil && r.DurationSeconds != 0 {
		return errors.New("use either end_time or duration_seconds")
	}
	if r.DurationSeconds < 0 {
		return errors.New("duration_seconds must be positive")
	}
	return nil
}

// ResolveEndTime turns the request into an absolute end time.
func (r *CreateListingRequest) ResolveEndTime(now time.Time) time.Time {
	if r.EndTime != nil {
		return *r.EndTime
	}
	if r.DurationSeconds > 0 {
		return now.Add(time.Duration(r.DurationSeconds) * time.Second)
	}
	return time.Time{}
}
