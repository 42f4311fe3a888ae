// internal/accounts/implementation_test.go
package accounts_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/accounts"
	"shelfmark/internal/store/memory"
)

func TestRegister(t *testing.T) {
	svc := accounts.NewService(memory.New().Users())

	user, err := svc.Register(context.Background(), "reader@example.com", "A Reader", "opensesame")
	require.NoError(t, err)

	assert.Equal(t, accounts.RoleMember, user.Role)
	assert.Equal(t, accounts.DefaultBorrowLimit, user.BorrowLimit)
	assert.Equal(t, 0, user.ActiveBorrowCount)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := accounts.NewService(memory.New().Users())

	_, err := svc.Register(context.Background(), "reader@example.com", "First", "opensesame")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "reader@example.com", "Second", "different")
	assert.ErrorIs(t, err, accounts.ErrEmailTaken)
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	svc := accounts.NewService(memory.New().Users())

	_, err := svc.Register(context.Background(), "", "Nameless", "opensesame")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	_, err = svc.Register(context.Background(), "reader@example.com", "A Reader", "")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
}

func TestAuthenticate(t *testing.T) {
	svc := accounts.NewService(memory.New().Users())

	registered, err := svc.Register(context.Background(), "reader@example.com", "A Reader", "opensesame")
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "reader@example.com", "opensesame")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
}

func TestAuthenticateUniformFailure(t *testing.T) {
	svc := accounts.NewService(memory.New().Users())

	_, err := svc.Register(context.Background(), "reader@example.com", "A Reader", "opensesame")
	require.NoError(t, err)

	// Wrong password and unknown email are indistinguishable to the caller.
	_, wrongPassword := svc.Authenticate(context.Background(), "reader@example.com", "notquite")
	_, unknownEmail := svc.Authenticate(context.Background(), "stranger@example.com", "opensesame")

	assert.ErrorIs(t, wrongPassword, accounts.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, accounts.ErrInvalidCredentials)
}

func TestRateLimit(t *testing.T) {
	svc := accounts.NewService(memory.New().Users())

	// The limiter allows a burst of five, then refills one per minute.
	for i := 0; i < 5; i++ {
		_, err := svc.Authenticate(context.Background(), "nobody@example.com", "whatever")
		assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
	}

	_, err := svc.Authenticate(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, accounts.ErrRateLimited)
}

func TestGetUser(t *testing.T) {
	svc := accounts.NewService(memory.New().Users())

	registered, err := svc.Register(context.Background(), "reader@example.com", "A Reader", "opensesame")
	require.NoError(t, err)

	user, err := svc.GetUser(context.Background(), registered.ID)
	require.NoError(t, err)
	assert.Equal(t, registered.Email, user.Email)

	_, err = svc.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)
}

func TestNewAdmin(t *testing.T) {
	user, cred, err := accounts.NewAdmin("admin@example.com", "sup3rsecret")
	require.NoError(t, err)

	assert.Equal(t, accounts.RoleAdmin, user.Role)
	assert.Equal(t, user.ID, cred.UserID)
	assert.NotEmpty(t, cred.PasswordHash)
	assert.NotEmpty(t, cred.Salt)

	// The seeded credential must work with the normal login path.
	st := memory.New()
	require.NoError(t, st.Users().Insert(context.Background(), user, cred))
	svc := accounts.NewService(st.Users())

	authed, err := svc.Authenticate(context.Background(), "admin@example.com", "sup3rsecret")
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleAdmin, authed.Role)
}
