package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// DefaultTxTimeout bounds a single engine transaction.
const DefaultTxTimeout = 30 * time.Second

// TransactionOptions configures transaction behavior
type TransactionOptions struct {
	IsolationLevel sql.IsolationLevel
	Timeout        time.Duration
}

// TransactionManager runs ledger work inside database transactions
type TransactionManager struct {
	db      *bun.DB
	timeout time.Duration
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *bun.DB, timeout time.Duration) *TransactionManager {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &TransactionManager{db: db, timeout: timeout}
}

// StandardTransactionOptions returns read-committed options; row locks provide the serialization.
func (tm *TransactionManager) StandardTransactionOptions() *TransactionOptions {
	return &TransactionOptions{
		IsolationLevel: sql.LevelReadCommitted,
		Timeout:        tm.timeout,
	}
}

// WithTransaction executes a function within a database transaction
func (tm *TransactionManager) WithTransaction(ctx context.Context, opts *TransactionOptions, fn func(context.Context, bun.Tx) error) error {
	if opts == nil {
		opts = tm.StandardTransactionOptions()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	tx, err := tm.db.BeginTx(timeoutCtx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(timeoutCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
