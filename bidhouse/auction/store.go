package auction

import (
	"context"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/ledger"
	"github.com/shopspring/decimal"
)

// Store is the persistence the engine needs. WithListingLock is the only way
// to mutate a listing: fn runs inside one transaction that holds the
// listing's exclusive lock, and an error from fn rolls everything back.
type Store interface {
	WithListingLock(ctx context.Context, listingID int64, fn func(ctx context.Context, tx ListingTx) error) error

	ListingSnapshot(ctx context.Context, listingID int64) (*Snapshot, error)
	BidHistory(ctx context.Context, listingID int64, limit int) ([]models.Bid, error)

	// EndUnbidAuctions closes expired auctions that never received a bid
	// and deactivates their ceilings. No funds move.
	EndUnbidAuctions(ctx context.Context, now time.Time) ([]models.Listing, error)
	ExpiredAuctionIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)

	Account(ctx context.Context, accountID int64) (*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	CreateListing(ctx context.Context, listing *models.Listing) error
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*models.Account, error)
	Ping(ctx context.Context) error
}

// ListingTx is the view of one locked listing inside its transaction.
type ListingTx interface {
	// Listing is the locked row. Mutate it and call SaveListing.
	Listing() *models.Listing
	SaveListing(ctx context.Context) error
	Ledger() ledger.Ledger

	Account(ctx context.Context, accountID int64) (*models.Account, error)
	// LockAccounts takes the row locks of every account the transaction will
	// touch, in ascending id order, before any balance changes.
	LockAccounts(ctx context.Context, accountIDs ...int64) error
	// AddBidVolume adds a manual bid to the bidder's running total.
	AddBidVolume(ctx context.Context, accountID int64, amount decimal.Decimal) error

	// ActiveBids returns the listing's active bids, highest first.
	ActiveBids(ctx context.Context) ([]models.Bid, error)
	SetBidStatus(ctx context.Context, bidID int64, status models.BidStatus) error
	InsertBid(ctx context.Context, bid *models.Bid) error

	// BestAutoBid picks the active ceiling with the highest max_amount above
	// price, excluding one bidder. Ties go to the earliest created ceiling.
	BestAutoBid(ctx context.Context, excludeBidderID int64, above decimal.Decimal) (*models.AutoBid, error)
	UpsertAutoBid(ctx context.Context, bidderID int64, maxAmount decimal.Decimal, now time.Time) (*models.AutoBid, error)
	DeactivateAutoBids(ctx context.Context) error

	InsertOrder(ctx context.Context, order *models.Order) error
}

// Snapshot is an unlocked read of a listing with its current leader.
type Snapshot struct {
	Listing         models.Listing
	HighestBidderID *int64
	HighestBidder   string
}

// Notification is a fire-and-forget message. A nil From is a system message.
type Notification struct {
	From      *int64
	To        int64
	ListingID int64
	Text      string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type ActivitySink interface {
	Record(ctx context.Context, activity models.Activity) error
}

type ActivityReader interface {
	RecentActivities(ctx context.Context, limit int) ([]models.Activity, error)
}
