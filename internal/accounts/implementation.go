// internal/accounts/implementation.go
package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"shelfmark/internal/store"
)

var (
	ErrUserNotFound       = errors.New("accounts: user not found")
	ErrEmailTaken         = errors.New("accounts: email already registered")
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")
	ErrRateLimited        = errors.New("accounts: rate limit exceeded")
)

// service implements the Service interface.
type service struct {
	users       UserStore
	rateLimiter *rate.Limiter
}

// NewService creates a new accounts service instance.
func NewService(users UserStore) Service {
	return &service{
		users:       users,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute), 5), // 5 requests per minute
	}
}

// Register creates a new member account with the default borrow limit.
func (s *service) Register(ctx context.Context, email, name, password string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:          uuid.New(),
		Email:       email,
		Name:        name,
		Role:        RoleMember,
		BorrowLimit: DefaultBorrowLimit,
		CreatedAt:   time.Now().UTC(),
	}
	cred := &Credential{
		UserID:       user.ID,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	if err := s.users.Insert(ctx, user, cred); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// Authenticate verifies a user's credentials and returns the user if
// successful. Lookup failures and bad passwords produce the same error so the
// response does not reveal which emails exist.
func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	cred, err := s.users.Credential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}

	ok, err := verifyPassword(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// NewAdmin builds an admin user and matching credential, used by the hosting
// process to seed the first admin account.
func NewAdmin(email, password string) (*User, *Credential, error) {
	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:          uuid.New(),
		Email:       email,
		Name:        "Administrator",
		Role:        RoleAdmin,
		BorrowLimit: DefaultBorrowLimit,
		CreatedAt:   time.Now().UTC(),
	}
	cred := &Credential{
		UserID:       user.ID,
		PasswordHash: passwordHash,
		Salt:         salt,
	}
	return user, cred, nil
}

// GetUser retrieves a user by ID.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
