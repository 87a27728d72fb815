package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// RepositoryError represents a repository-level error
type RepositoryError struct {
	Operation string
	Entity    string
	Err       error
}

func (re *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s for %s: %v", re.Operation, re.Entity, re.Err)
}

func (re *RepositoryError) Unwrap() error {
	return re.Err
}

func wrap(operation, entity string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Operation: operation, Entity: entity, Err: err}
}

var _ sqlStateError = pgdriver.Error{}

// sqlStateError is satisfied by pgdriver.Error.
type sqlStateError interface {
	Field(k byte) string
}

func sqlState(err error) string {
	var pgErr sqlStateError
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == uniqueViolation
}

// isLockConflict reports a transaction Postgres aborted to break a lock
// cycle or a serialization conflict. Retrying it is safe.
func isLockConflict(err error) bool {
	switch sqlState(err) {
	case serializationFailure, deadlockDetected:
		return true
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
