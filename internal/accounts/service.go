// internal/accounts/service.go
package accounts

import (
	"context"

	"github.com/google/uuid"
)

// UserStore is the persistence port for users and their credentials.
type UserStore interface {
	// Insert stores the user and credential together. store.ErrDuplicate is
	// returned when the email is already taken.
	Insert(ctx context.Context, user *User, cred *Credential) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Credential(ctx context.Context, userID uuid.UUID) (*Credential, error)
	List(ctx context.Context) ([]*User, error)

	// IncrementActiveLoans adds delta to the active-loan counter. The write
	// is conditional on the result staying non-negative; store.ErrNoMatch
	// signals the counter would have gone below zero.
	IncrementActiveLoans(ctx context.Context, id uuid.UUID, delta int) error
}

// Service defines the interface for the accounts service.
type Service interface {
	Register(ctx context.Context, email, name, password string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}
