// internal/ledger/service.go
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"shelfmark/internal/catalog"
)

// LoanStore is the persistence port for loan records.
type LoanStore interface {
	Insert(ctx context.Context, loan *Loan) error
	// FindActive returns the active loan for (document, user), or
	// store.ErrNotFound when there is none.
	FindActive(ctx context.Context, documentID, userID uuid.UUID) (*Loan, error)
	// MarkReturned closes the loan. Conditional on the loan still being
	// active; store.ErrNoMatch means it was already returned.
	MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) error
	FindOverdue(ctx context.Context, asOf time.Time) ([]*Loan, error)
	// ActiveCountByDocument and ActiveCountByUser feed the reconciliation
	// pass. Documents or users without active loans are absent from the map.
	ActiveCountByDocument(ctx context.Context) (map[uuid.UUID]int, error)
	ActiveCountByUser(ctx context.Context) (map[uuid.UUID]int, error)
}

// Service is the loan ledger: it owns the mutual consistency of a document's
// availability flag, a user's active-loan counter and the loan records across
// borrow and return.
type Service interface {
	// Borrow lends the document to the user and returns the due date.
	Borrow(ctx context.Context, documentID, userID uuid.UUID) (time.Time, error)
	// Return closes the user's active loan on the document.
	Return(ctx context.Context, documentID, userID uuid.UUID) error
	// Toggle flips a document's availability without touching loan or user
	// records. Admin override only: mixing it with Borrow/Return breaks the
	// availability/loan correspondence until the next reconciliation.
	Toggle(ctx context.Context, documentID uuid.UUID) (catalog.Availability, error)
	// Stats reports aggregate document counts from a single consistent read.
	Stats(ctx context.Context) (Stats, error)
	// OverdueLoans lists active loans due before asOf.
	OverdueLoans(ctx context.Context, asOf time.Time) ([]*Loan, error)
	// Reconcile cross-checks availability flags, active loans and user
	// counters. It reports and never repairs.
	Reconcile(ctx context.Context) ([]Discrepancy, error)
}
