// internal/ledger/domain.go
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// LoanPeriod is the fixed lending window: a borrowed document falls due this
// long after the borrow timestamp.
const LoanPeriod = 30 * 24 * time.Hour

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// Loan records one borrow event. A loan is created only by Borrow, closed
// only by Return, and never deleted.
type Loan struct {
	ID         uuid.UUID  `json:"id"`
	DocumentID uuid.UUID  `json:"document_id"`
	UserID     uuid.UUID  `json:"user_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	Status     LoanStatus `json:"status"`
}

// Overdue reports whether the loan is still open past its due date.
func (l *Loan) Overdue(asOf time.Time) bool {
	return l.Status == LoanActive && l.DueAt.Before(asOf)
}

// Stats aggregates the document collection for the admin dashboard.
// TotalBorrows counts historical borrow events, so it is not the same as
// Borrowed, which counts documents currently out.
type Stats struct {
	TotalDocuments int64 `json:"total_documents"`
	Available      int64 `json:"available"`
	Borrowed       int64 `json:"borrowed"`
	TotalBorrows   int64 `json:"total_borrows"`
}

// Discrepancy is one inconsistency found by the reconciliation pass: the
// borrow/return writes span three records with no cross-collection
// transaction, so a crash between writes (or an admin toggle) can leave them
// disagreeing.
type Discrepancy struct {
	Kind       string     `json:"kind"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Detail     string     `json:"detail"`
}

// Discrepancy kinds reported by Reconcile.
const (
	DiscrepancyBorrowedNoLoan  = "document_borrowed_without_loan"
	DiscrepancyAvailableLoaned = "document_available_with_active_loan"
	DiscrepancyMultipleLoans   = "document_with_multiple_active_loans"
	DiscrepancyUserCounter     = "user_counter_mismatch"
)
