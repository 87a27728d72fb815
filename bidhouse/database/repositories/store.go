package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

var _ auction.Store = (*Store)(nil)

// Store is the PostgreSQL engine store. Listing mutations take the row lock
// with SELECT ... FOR UPDATE; balances move through guarded UPDATEs.
type Store struct {
	db  *database.DB
	bun *bun.DB
	txm *ledger.TransactionManager
}

func NewStore(db *database.DB, txTimeout time.Duration) *Store {
	return &Store{
		db:  db,
		bun: db.BunDB(),
		txm: ledger.NewTransactionManager(db.BunDB(), txTimeout),
	}
}

// WithListingLock reports a deadlock or serialization abort as
// auction.ErrFreezeRaceLost, which callers treat as a retryable funds failure.
func (s *Store) WithListingLock(ctx context.Context, listingID int64, fn func(ctx context.Context, tx auction.ListingTx) error) error {
	err := s.txm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		listing := new(models.Listing)
		err := tx.NewSelect().
			Model(listing).
			Where("id = ?", listingID).
			For("UPDATE").
			Scan(ctx)
		if isNoRows(err) {
			return auction.ErrListingNotFound
		}
		if err != nil {
			return wrap("lock", "listing", err)
		}

		return fn(ctx, &listingTx{
			tx:      tx,
			listing: listing,
			ledger:  ledger.NewBunLedger(tx),
		})
	})
	if isLockConflict(err) {
		return fmt.Errorf("%w: %v", auction.ErrFreezeRaceLost, err)
	}
	return err
}

func (s *Store) ListingSnapshot(ctx context.Context, listingID int64) (*auction.Snapshot, error) {
	listing := new(models.Listing)
	err := s.bun.NewSelect().Model(listing).Where("id = ?", listingID).Scan(ctx)
	if isNoRows(err) {
		return nil, auction.ErrListingNotFound
	}
	if err != nil {
		return nil, wrap("get", "listing", err)
	}

	snap := &auction.Snapshot{Listing: *listing}
	var leader struct {
		BidderID int64  `bun:"bidder_id"`
		Username string `bun:"username"`
	}
	err = s.bun.NewSelect().
		TableExpr("bids AS b").
		ColumnExpr("b.bidder_id, acc.username").
		Join("JOIN accounts AS acc ON acc.id = b.bidder_id").
		Where("b.listing_id = ?", listingID).
		Where("b.status IN (?)", bun.In([]models.BidStatus{models.BidStatusActive, models.BidStatusWon})).
		OrderExpr("b.amount DESC, b.id DESC").
		Limit(1).
		Scan(ctx, &leader)
	switch {
	case isNoRows(err):
	case err != nil:
		return nil, wrap("get", "leader", err)
	default:
		snap.HighestBidderID = &leader.BidderID
		snap.HighestBidder = leader.Username
	}
	return snap, nil
}

func (s *Store) BidHistory(ctx context.Context, listingID int64, limit int) ([]models.Bid, error) {
	exists, err := s.bun.NewSelect().Model((*models.Listing)(nil)).Where("id = ?", listingID).Exists(ctx)
	if err != nil {
		return nil, wrap("check", "listing", err)
	}
	if !exists {
		return nil, auction.ErrListingNotFound
	}

	bids := make([]models.Bid, 0, limit)
	err = s.bun.NewSelect().
		Model(&bids).
		ColumnExpr("b.*").
		ColumnExpr("acc.username AS bidder_name").
		Join("LEFT JOIN accounts AS acc ON acc.id = b.bidder_id").
		Where("b.listing_id = ?", listingID).
		OrderExpr("b.created_at DESC, b.id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list", "bids", err)
	}
	return bids, nil
}

// EndUnbidAuctions closes every expired auction without bids in one
// statement. A bid that commits first raises bid_count, and the re-checked
// WHERE clause then leaves the row alone.
func (s *Store) EndUnbidAuctions(ctx context.Context, now time.Time) ([]models.Listing, error) {
	var ended []models.Listing
	err := s.txm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.Listing)(nil)).
			Set("status = ?", models.ListingStatusEnded).
			Set("updated_at = ?", now).
			Where("kind = ?", models.ListingKindAuction).
			Where("status = ?", models.ListingStatusActive).
			Where("bid_count = 0").
			Where("end_time < ?", now).
			Returning("*").
			Exec(ctx, &ended)
		if err != nil {
			return wrap("end", "listings", err)
		}
		if len(ended) == 0 {
			return nil
		}

		ids := make([]int64, len(ended))
		for i, l := range ended {
			ids[i] = l.ID
		}
		_, err = tx.NewUpdate().
			Model((*models.AutoBid)(nil)).
			Set("is_active = FALSE").
			Set("updated_at = ?", now).
			Where("listing_id IN (?)", bun.In(ids)).
			Where("is_active").
			Exec(ctx)
		return wrap("deactivate", "auto_bids", err)
	})
	if err != nil {
		return nil, err
	}
	return ended, nil
}

func (s *Store) ExpiredAuctionIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := s.db.QueryWithLog(ctx, `
		SELECT id FROM listings
		WHERE kind = $1 AND status = $2 AND bid_count > 0 AND end_time < $3
		ORDER BY end_time, id
		LIMIT $4`,
		string(models.ListingKindAuction), string(models.ListingStatusActive), now, limit)
	if err != nil {
		return nil, wrap("list", "expired listings", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrap("scan", "expired listings", err)
	}
	return ids, nil
}

func (s *Store) Account(ctx context.Context, accountID int64) (*models.Account, error) {
	return getAccount(ctx, s.bun, accountID)
}

func getAccount(ctx context.Context, db bun.IDB, accountID int64) (*models.Account, error) {
	account := new(models.Account)
	err := db.NewSelect().Model(account).Where("id = ?", accountID).Scan(ctx)
	if isNoRows(err) {
		return nil, auction.ErrAccountNotFound
	}
	if err != nil {
		return nil, wrap("get", "account", err)
	}
	return account, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	_, err := s.bun.NewInsert().Model(account).Returning("*").Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username %q is taken", auction.ErrInvalidInput, account.Username)
	}
	return wrap("create", "account", err)
}

func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	_, err := s.bun.NewInsert().Model(listing).Returning("*").Exec(ctx)
	return wrap("create", "listing", err)
}

func (s *Store) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*models.Account, error) {
	var account *models.Account
	err := s.txm.WithTransaction(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ledger.NewBunLedger(tx).Credit(ctx, accountID, amount); err != nil {
			return err
		}
		var err error
		account, err = getAccount(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
