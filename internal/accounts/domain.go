// internal/accounts/domain.go
package accounts

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// DefaultBorrowLimit is the number of simultaneous active loans granted to a
// freshly registered account.
const DefaultBorrowLimit = 3

// User is a library account. ActiveBorrowCount mirrors the number of active
// loans held by the user and must never exceed BorrowLimit; the loan ledger
// owns both transitions.
type User struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	BorrowLimit       int       `json:"borrow_limit"`
	ActiveBorrowCount int       `json:"active_borrow_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// Credential holds a user's login secret, kept out of JSON responses.
type Credential struct {
	UserID       uuid.UUID `json:"-"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
}
