// internal/ledger/errors.go
package ledger

import (
	"errors"
	"fmt"
)

// Business-rule violations. These are expected outcomes of calling Borrow or
// Return against the wrong state, not faults.
var (
	ErrUserNotFound        = errors.New("ledger: user not found")
	ErrDocumentNotFound    = errors.New("ledger: document not found")
	ErrDocumentUnavailable = errors.New("ledger: document is not available")
	ErrNoActiveLoan        = errors.New("ledger: no active loan for this document and user")
)

// ErrStoreUnavailable wraps collaborator failures. When it is returned from a
// mutation the operation's effects are unknown: some of the sequential writes
// may have been applied. Callers must not retry blindly; the reconciliation
// pass is the repair path.
var ErrStoreUnavailable = errors.New("ledger: store unavailable")

// ErrCounterCorrupt signals an invariant violation detected at write time,
// e.g. a return that would push a user's active-loan counter below zero.
var ErrCounterCorrupt = errors.New("ledger: active-loan counter corrupt")

// BorrowLimitExceededError is returned when a user already holds as many
// active loans as their account allows. It carries the limit for display.
type BorrowLimitExceededError struct {
	Limit int
}

func (e *BorrowLimitExceededError) Error() string {
	return fmt.Sprintf("ledger: borrow limit of %d reached", e.Limit)
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
