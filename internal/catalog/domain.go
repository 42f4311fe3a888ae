// internal/catalog/domain.go
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Availability is the single source of truth for whether a document can be
// borrowed. It replaces the boolean flag and the free-form status label that
// older code paths kept in parallel.
type Availability string

const (
	Available Availability = "available"
	Borrowed  Availability = "borrowed"
)

// Toggled returns the opposite availability state.
func (a Availability) Toggled() Availability {
	if a == Borrowed {
		return Available
	}
	return Borrowed
}

// Document represents one catalogued item.
type Document struct {
	ID           uuid.UUID    `json:"id"`
	Title        string       `json:"title"`
	Author       string       `json:"author"`
	ISBN         string       `json:"isbn,omitempty"`
	Availability Availability `json:"availability"`
	BorrowedBy   *uuid.UUID   `json:"borrowed_by,omitempty"`
	BorrowedAt   *time.Time   `json:"borrowed_at,omitempty"`
	BorrowCount  int64        `json:"borrow_count"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Tally is a single consistent snapshot of the document collection, used by
// the stats dashboard. BorrowTotal sums the historical borrow counters, so it
// keeps growing after returns.
type Tally struct {
	Total       int64 `json:"total"`
	Available   int64 `json:"available"`
	Borrowed    int64 `json:"borrowed"`
	BorrowTotal int64 `json:"borrow_total"`
}
