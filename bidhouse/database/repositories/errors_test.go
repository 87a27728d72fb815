package repositories

import (
	"errors"
	"fmt"
	"testing"
)

type fakePgError struct {
	code string
}

func (e fakePgError) Error() string {
	return "pg error " + e.code
}

func (e fakePgError) Field(k byte) string {
	if k == 'C' {
		return e.code
	}
	return ""
}

func TestIsLockConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", fakePgError{code: deadlockDetected}, true},
		{"serialization failure", fakePgError{code: serializationFailure}, true},
		{"wrapped deadlock", wrap("update", "account", fmt.Errorf("failed to freeze bid funds: %w", fakePgError{code: deadlockDetected})), true},
		{"unique violation", fakePgError{code: uniqueViolation}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLockConflict(tt.err); got != tt.want {
				t.Errorf("isLockConflict(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(wrap("insert", "bid", fakePgError{code: uniqueViolation})) {
		t.Error("isUniqueViolation() = false for a wrapped 23505")
	}
	if isUniqueViolation(fakePgError{code: deadlockDetected}) {
		t.Error("isUniqueViolation() = true for 40P01")
	}
}
