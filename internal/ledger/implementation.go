// internal/ledger/implementation.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shelfmark/internal/accounts"
	"shelfmark/internal/catalog"
	"shelfmark/internal/store"
)

// service implements the Service interface.
//
// Borrow and Return are sagas: three ordered single-record writes with no
// cross-collection transaction. A crash between writes leaves a transient
// inconsistency that Reconcile can detect. Per-document serialization comes
// from the document store's conditional MarkBorrowed, not from a lock, so
// concurrent borrows of different documents never contend.
type service struct {
	documents catalog.DocumentStore
	users     accounts.UserStore
	loans     LoanStore
	tracer    trace.Tracer
}

// NewService creates a new loan ledger backed by the given stores.
func NewService(documents catalog.DocumentStore, users accounts.UserStore, loans LoanStore) Service {
	return &service{
		documents: documents,
		users:     users,
		loans:     loans,
		tracer:    otel.Tracer("shelfmark/ledger"),
	}
}

// Borrow lends a document to a user.
//
// Preconditions are checked in order, first failure wins: user exists, user
// is under their borrow limit, document exists and is available. Effects are
// three sequential writes: document marked borrowed, loan inserted, user
// counter incremented. If a later write fails the earlier ones are
// compensated on a best-effort basis and the caller gets an error either way.
func (s *service) Borrow(ctx context.Context, documentID, userID uuid.UUID) (time.Time, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.borrow",
		trace.WithAttributes(
			attribute.String("document.id", documentID.String()),
			attribute.String("user.id", userID.String()),
		),
	)
	defer span.End()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, ErrUserNotFound
		}
		return time.Time{}, storeFailure("find user", err)
	}

	if user.ActiveBorrowCount >= user.BorrowLimit {
		span.AddEvent("borrow.rejected", trace.WithAttributes(attribute.Int("borrow.limit", user.BorrowLimit)))
		return time.Time{}, &BorrowLimitExceededError{Limit: user.BorrowLimit}
	}

	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, ErrDocumentNotFound
		}
		return time.Time{}, storeFailure("find document", err)
	}
	if doc.Availability != catalog.Available {
		return time.Time{}, ErrDocumentUnavailable
	}

	now := time.Now().UTC()

	// Write 1: document. The availability guard inside MarkBorrowed is what
	// makes at most one concurrent borrow per document succeed.
	if err := s.documents.MarkBorrowed(ctx, documentID, userID, now); err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			span.AddEvent("borrow.lost_race")
			return time.Time{}, ErrDocumentUnavailable
		}
		return time.Time{}, storeFailure("mark document borrowed", err)
	}

	loan := &Loan{
		ID:         uuid.New(),
		DocumentID: documentID,
		UserID:     userID,
		BorrowedAt: now,
		DueAt:      now.Add(LoanPeriod),
		Status:     LoanActive,
	}

	// Write 2: loan record.
	if err := s.loans.Insert(ctx, loan); err != nil {
		s.compensateDocument(ctx, documentID)
		return time.Time{}, storeFailure("insert loan", err)
	}

	// Write 3: user counter.
	if err := s.users.IncrementActiveLoans(ctx, userID, 1); err != nil {
		log.Printf("borrow of %s by %s: counter increment failed, loan %s left active for reconciliation: %v",
			documentID, userID, loan.ID, err)
		return time.Time{}, storeFailure("increment active loans", err)
	}

	span.AddEvent("loan.created", trace.WithAttributes(attribute.String("loan.id", loan.ID.String())))
	return loan.DueAt, nil
}

// compensateDocument rolls the document back to available after a failed
// borrow. The borrow counter stays incremented: it counts attempts that
// reached the document write, and decrementing here could race a concurrent
// successful borrow.
func (s *service) compensateDocument(ctx context.Context, documentID uuid.UUID) {
	log.Printf("compensating failed borrow: releasing document %s", documentID)
	if err := s.documents.MarkReturned(ctx, documentID); err != nil {
		log.Printf("compensation failed for document %s, reconciliation required: %v", documentID, err)
	}
}

// Return closes the user's active loan on the document.
//
// The only precondition is an active loan for (document, user); a document
// borrowed by someone else fails the same way as one never borrowed. Effects
// mirror Borrow in the same write order: document, loan, user.
func (s *service) Return(ctx context.Context, documentID, userID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "ledger.return",
		trace.WithAttributes(
			attribute.String("document.id", documentID.String()),
			attribute.String("user.id", userID.String()),
		),
	)
	defer span.End()

	loan, err := s.loans.FindActive(ctx, documentID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoActiveLoan
		}
		return storeFailure("find active loan", err)
	}

	now := time.Now().UTC()

	// Write 1: document back to available, borrower fields cleared. The
	// historical borrow counter is deliberately untouched.
	if err := s.documents.MarkReturned(ctx, documentID); err != nil {
		return storeFailure("mark document returned", err)
	}

	// Write 2: close the loan. The status guard makes a concurrent double
	// return lose here instead of reaching the counter decrement.
	if err := s.loans.MarkReturned(ctx, loan.ID, now); err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return ErrNoActiveLoan
		}
		return storeFailure("mark loan returned", err)
	}

	// Write 3: user counter. Going below zero means the records were already
	// inconsistent; surface it rather than clamp silently.
	if err := s.users.IncrementActiveLoans(ctx, userID, -1); err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			log.Printf("return of %s by %s: counter already at zero, reconciliation required", documentID, userID)
			return fmt.Errorf("%w: user %s", ErrCounterCorrupt, userID)
		}
		return storeFailure("decrement active loans", err)
	}

	span.AddEvent("loan.returned", trace.WithAttributes(attribute.String("loan.id", loan.ID.String())))
	return nil
}

// Toggle flips a document's availability flag directly. No loan is created or
// closed and no user counter moves, so the flag can disagree with the loan
// records afterwards; Reconcile reports that. Kept as a gated admin override,
// never a substitute for Borrow/Return.
func (s *service) Toggle(ctx context.Context, documentID uuid.UUID) (catalog.Availability, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", storeFailure("find document", err)
	}

	next := doc.Availability.Toggled()
	if err := s.documents.SetAvailability(ctx, documentID, next); err != nil {
		return "", storeFailure("set availability", err)
	}

	log.Printf("admin toggle: document %s forced %s -> %s", documentID, doc.Availability, next)
	return next, nil
}

// Stats reports aggregate document counts. The snapshot quality depends on
// the backend: memory and postgres read under a single lock or statement,
// mongo runs one aggregation pipeline.
func (s *service) Stats(ctx context.Context) (Stats, error) {
	tally, err := s.documents.Tally(ctx)
	if err != nil {
		return Stats{}, storeFailure("tally documents", err)
	}
	return Stats{
		TotalDocuments: tally.Total,
		Available:      tally.Available,
		Borrowed:       tally.Borrowed,
		TotalBorrows:   tally.BorrowTotal,
	}, nil
}

// OverdueLoans lists active loans whose due date has passed as of the given
// time.
func (s *service) OverdueLoans(ctx context.Context, asOf time.Time) ([]*Loan, error) {
	loans, err := s.loans.FindOverdue(ctx, asOf)
	if err != nil {
		return nil, storeFailure("find overdue loans", err)
	}
	return loans, nil
}

// Reconcile is the maintenance pass over the race window left by the
// non-transactional write sequences. It verifies that a document is marked
// borrowed iff exactly one active loan exists for it, and that each user's
// counter matches their active loan count. Read-only.
func (s *service) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.reconcile")
	defer span.End()

	docs, err := s.documents.List(ctx, "")
	if err != nil {
		return nil, storeFailure("list documents", err)
	}
	byDocument, err := s.loans.ActiveCountByDocument(ctx)
	if err != nil {
		return nil, storeFailure("count active loans by document", err)
	}
	byUser, err := s.loans.ActiveCountByUser(ctx)
	if err != nil {
		return nil, storeFailure("count active loans by user", err)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, storeFailure("list users", err)
	}

	var found []Discrepancy
	for _, doc := range docs {
		id := doc.ID
		active := byDocument[id]
		switch {
		case active > 1:
			found = append(found, Discrepancy{
				Kind:       DiscrepancyMultipleLoans,
				DocumentID: &id,
				Detail:     fmt.Sprintf("%d active loans for one document", active),
			})
		case doc.Availability == catalog.Borrowed && active == 0:
			found = append(found, Discrepancy{
				Kind:       DiscrepancyBorrowedNoLoan,
				DocumentID: &id,
				Detail:     "document marked borrowed but no active loan exists",
			})
		case doc.Availability == catalog.Available && active > 0:
			found = append(found, Discrepancy{
				Kind:       DiscrepancyAvailableLoaned,
				DocumentID: &id,
				Detail:     "document marked available while a loan is still active",
			})
		}
	}

	for _, user := range users {
		id := user.ID
		if active := byUser[id]; user.ActiveBorrowCount != active {
			found = append(found, Discrepancy{
				Kind:   DiscrepancyUserCounter,
				UserID: &id,
				Detail: fmt.Sprintf("counter is %d, active loans are %d", user.ActiveBorrowCount, active),
			})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Kind < found[j].Kind })
	span.SetAttributes(attribute.Int("discrepancies.found", len(found)))
	return found, nil
}
