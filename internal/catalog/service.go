// internal/catalog/service.go
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DocumentStore is the persistence port for documents. MarkBorrowed and
// MarkReturned are the only writes that touch loan-related fields; both are
// used by the loan ledger, never by the catalog service itself.
type DocumentStore interface {
	Insert(ctx context.Context, doc *Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*Document, error)
	// List returns documents sorted by title. A non-empty query filters by
	// case-insensitive substring match on title or author.
	List(ctx context.Context, query string) ([]*Document, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// MarkBorrowed transitions the document to Borrowed, records the
	// borrower and timestamp and increments the historical borrow counter.
	// The write is conditional on the document currently being Available;
	// store.ErrNoMatch means another borrower won the race.
	MarkBorrowed(ctx context.Context, id, userID uuid.UUID, at time.Time) error

	// MarkReturned transitions the document to Available and clears the
	// borrower fields. The borrow counter is untouched. Unconditional, so a
	// return can repair a document an admin toggle left in a bad state.
	MarkReturned(ctx context.Context, id uuid.UUID) error

	// SetAvailability writes the availability flag and nothing else. Only
	// the admin toggle uses it.
	SetAvailability(ctx context.Context, id uuid.UUID, av Availability) error

	// Tally counts the collection in one consistent read.
	Tally(ctx context.Context) (Tally, error)
}

// Service defines the interface for the catalog service.
type Service interface {
	AddDocument(ctx context.Context, title, author, isbn string) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context, query string) ([]*Document, error)
	RemoveDocument(ctx context.Context, id uuid.UUID) error
}
