package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/bidhouse/server/bidhouse/ledger"
	"github.com/shopspring/decimal"
)

// listingTx stages row changes on private copies; WithListingLock swaps them
// in on success. Ledger debits hit the shared accounts at once and are undone
// from the journal on rollback. Credits stay pending on the transaction until
// commit and are invisible to other listings.
type listingTx struct {
	store    *Store
	listing  *models.Listing
	bids     []models.Bid
	autoBids []models.AutoBid
	orders   []models.Order
	pending  map[int64]*pendingCredit
	journal  []journalEntry
}

// pendingCredit holds increases not yet visible outside the transaction.
type pendingCredit struct {
	balance  decimal.Decimal
	frozen   decimal.Decimal
	bidTotal decimal.Decimal
}

// journalEntry records what a debit took from the shared account.
type journalEntry struct {
	accountID int64
	balance   decimal.Decimal
	frozen    decimal.Decimal
}

func (tx *listingTx) Listing() *models.Listing {
	return tx.listing
}

func (tx *listingTx) SaveListing(context.Context) error {
	return nil
}

func (tx *listingTx) Ledger() ledger.Ledger {
	return &memLedger{tx: tx}
}

func (tx *listingTx) Account(_ context.Context, accountID int64) (*models.Account, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	acc, err := tx.store.accountLocked(accountID)
	if err != nil {
		return nil, err
	}
	tx.overlay(acc)
	return acc, nil
}

// LockAccounts is a no-op: every ledger write already runs under the store mutex.
func (tx *listingTx) LockAccounts(context.Context, ...int64) error {
	return nil
}

func (tx *listingTx) AddBidVolume(_ context.Context, accountID int64, amount decimal.Decimal) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	if _, ok := tx.store.accounts[accountID]; !ok {
		return ledger.ErrAccountNotFound
	}
	p := tx.credit(accountID)
	p.bidTotal = p.bidTotal.Add(amount)
	return nil
}

// overlay adds this transaction's pending credits to a copy of an account.
// Callers hold the store mutex.
func (tx *listingTx) overlay(acc *models.Account) {
	if p, ok := tx.pending[acc.ID]; ok {
		acc.Balance = acc.Balance.Add(p.balance)
		acc.FrozenBalance = acc.FrozenBalance.Add(p.frozen)
		acc.TotalBidAmount = acc.TotalBidAmount.Add(p.bidTotal)
	}
}

func (tx *listingTx) credit(accountID int64) *pendingCredit {
	if tx.pending == nil {
		tx.pending = make(map[int64]*pendingCredit)
	}
	p, ok := tx.pending[accountID]
	if !ok {
		p = &pendingCredit{}
		tx.pending[accountID] = p
	}
	return p
}

func (tx *listingTx) ActiveBids(context.Context) ([]models.Bid, error) {
	var active []models.Bid
	for _, b := range tx.bids {
		if b.Status == models.BidStatusActive {
			active = append(active, b)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].Amount.Equal(active[j].Amount) {
			return active[i].Amount.GreaterThan(active[j].Amount)
		}
		return active[i].ID > active[j].ID
	})
	return active, nil
}

func (tx *listingTx) SetBidStatus(_ context.Context, bidID int64, status models.BidStatus) error {
	for i := range tx.bids {
		if tx.bids[i].ID == bidID {
			tx.bids[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("bid %d not found", bidID)
}

func (tx *listingTx) InsertBid(_ context.Context, bid *models.Bid) error {
	if bid.Status == models.BidStatusActive {
		for _, b := range tx.bids {
			if b.Status == models.BidStatusActive {
				return fmt.Errorf("listing %d already has active bid %d", tx.listing.ID, b.ID)
			}
		}
	}
	tx.store.mu.Lock()
	bid.ID = tx.store.nextID("bids")
	tx.store.mu.Unlock()

	tx.bids = append(tx.bids, *bid)
	return nil
}

func (tx *listingTx) BestAutoBid(_ context.Context, excludeBidderID int64, above decimal.Decimal) (*models.AutoBid, error) {
	var best *models.AutoBid
	for i := range tx.autoBids {
		ab := &tx.autoBids[i]
		if !ab.IsActive || ab.BidderID == excludeBidderID || !ab.MaxAmount.GreaterThan(above) {
			continue
		}
		if best == nil || ceilingBefore(ab, best) {
			best = ab
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

// ceilingBefore orders by max_amount DESC, created_at ASC, id ASC.
func ceilingBefore(a, b *models.AutoBid) bool {
	if !a.MaxAmount.Equal(b.MaxAmount) {
		return a.MaxAmount.GreaterThan(b.MaxAmount)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (tx *listingTx) UpsertAutoBid(_ context.Context, bidderID int64, maxAmount decimal.Decimal, now time.Time) (*models.AutoBid, error) {
	for i := range tx.autoBids {
		ab := &tx.autoBids[i]
		if ab.BidderID == bidderID {
			ab.MaxAmount = maxAmount
			ab.IsActive = true
			ab.UpdatedAt = now
			out := *ab
			return &out, nil
		}
	}

	tx.store.mu.Lock()
	id := tx.store.nextID("auto_bids")
	tx.store.mu.Unlock()

	ab := models.AutoBid{
		ID:        id,
		ListingID: tx.listing.ID,
		BidderID:  bidderID,
		MaxAmount: maxAmount,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx.autoBids = append(tx.autoBids, ab)
	return &ab, nil
}

func (tx *listingTx) DeactivateAutoBids(context.Context) error {
	for i := range tx.autoBids {
		tx.autoBids[i].IsActive = false
	}
	return nil
}

func (tx *listingTx) InsertOrder(_ context.Context, order *models.Order) error {
	tx.store.mu.Lock()
	order.ID = tx.store.nextID("orders")
	tx.store.mu.Unlock()

	tx.orders = append(tx.orders, *order)
	return nil
}

// rollback returns every debit to the shared accounts and drops the
// pending credits, which nobody else has seen.
func (tx *listingTx) rollback() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for i := len(tx.journal) - 1; i >= 0; i-- {
		e := tx.journal[i]
		if acc, ok := tx.store.accounts[e.accountID]; ok {
			acc.Balance = acc.Balance.Add(e.balance)
			acc.FrozenBalance = acc.FrozenBalance.Add(e.frozen)
		}
	}
	tx.journal = nil
	tx.pending = nil
}

// publish applies the pending credits. Callers hold the store mutex.
func (tx *listingTx) publish(now time.Time) {
	for id, p := range tx.pending {
		acc, ok := tx.store.accounts[id]
		if !ok {
			continue
		}
		acc.Balance = acc.Balance.Add(p.balance)
		acc.FrozenBalance = acc.FrozenBalance.Add(p.frozen)
		acc.TotalBidAmount = acc.TotalBidAmount.Add(p.bidTotal)
		acc.UpdatedAt = now
	}
	tx.pending = nil
	tx.journal = nil
}

// memLedger applies each primitive as a guarded update under the store mutex.
// Guards see the account as this transaction sees it, pending credits included.
type memLedger struct {
	tx *listingTx
}

func (l *memLedger) apply(accountID int64, dBalance, dFrozen decimal.Decimal, guard func(*models.Account) error) error {
	s := l.tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	if guard != nil {
		view := *acc
		l.tx.overlay(&view)
		if err := guard(&view); err != nil {
			return err
		}
	}

	p := l.tx.credit(accountID)
	entry := journalEntry{
		accountID: accountID,
		balance:   settle(&p.balance, &acc.Balance, dBalance),
		frozen:    settle(&p.frozen, &acc.FrozenBalance, dFrozen),
	}
	if !entry.balance.IsZero() || !entry.frozen.IsZero() {
		acc.UpdatedAt = time.Now()
		l.tx.journal = append(l.tx.journal, entry)
	}
	return nil
}

// settle books delta against one field. An increase stays pending; a
// decrease spends pending credit first and takes the rest from the shared
// account. It returns the amount taken from the shared account.
func settle(pending, shared *decimal.Decimal, delta decimal.Decimal) decimal.Decimal {
	if !delta.IsNegative() {
		*pending = pending.Add(delta)
		return decimal.Zero
	}
	debit := delta.Neg()
	fromPending := decimal.Min(*pending, debit)
	*pending = pending.Sub(fromPending)
	taken := debit.Sub(fromPending)
	*shared = shared.Sub(taken)
	return taken
}

func (l *memLedger) Freeze(_ context.Context, accountID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	return l.apply(accountID, amount.Neg(), amount, func(acc *models.Account) error {
		if acc.Balance.LessThan(amount) {
			return ledger.ErrInsufficientFunds
		}
		return nil
	})
}

func (l *memLedger) Unfreeze(_ context.Context, accountID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	return l.apply(accountID, amount, amount.Neg(), func(acc *models.Account) error {
		if acc.FrozenBalance.LessThan(amount) {
			return ledger.ErrFrozenShortfall
		}
		return nil
	})
}

func (l *memLedger) Transfer(ctx context.Context, buyerID, sellerID int64, amount, feeRate decimal.Decimal) (ledger.Split, error) {
	if !amount.IsPositive() {
		return ledger.Split{}, ledger.ErrInvalidAmount
	}
	split := ledger.SplitFee(amount, feeRate)
	err := l.apply(buyerID, decimal.Zero, amount.Neg(), func(acc *models.Account) error {
		if acc.FrozenBalance.LessThan(amount) {
			return ledger.ErrFrozenShortfall
		}
		return nil
	})
	if err != nil {
		return ledger.Split{}, err
	}
	if split.SellerReceived.IsPositive() {
		if err := l.Credit(ctx, sellerID, split.SellerReceived); err != nil {
			return ledger.Split{}, err
		}
	}
	return split, nil
}

func (l *memLedger) Credit(_ context.Context, accountID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	return l.apply(accountID, amount, decimal.Zero, nil)
}
