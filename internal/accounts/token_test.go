// internal/accounts/token_test.go
package accounts_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmark/internal/accounts"
)

func TestTokenSignAndParse(t *testing.T) {
	signer, err := accounts.NewTokenSigner("test-secret", time.Hour)
	require.NoError(t, err)

	user := &accounts.User{ID: uuid.New(), Role: accounts.RoleAdmin}
	raw, err := signer.Sign(user)
	require.NoError(t, err)

	claims, err := signer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, accounts.RoleAdmin, claims.Role)
}

func TestTokenSignerRequiresSecret(t *testing.T) {
	_, err := accounts.NewTokenSigner("", time.Hour)
	assert.Error(t, err)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	signer, err := accounts.NewTokenSigner("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := accounts.NewTokenSigner("different-secret", time.Hour)
	require.NoError(t, err)

	raw, err := signer.Sign(&accounts.User{ID: uuid.New(), Role: accounts.RoleMember})
	require.NoError(t, err)

	_, err = other.Parse(raw)
	assert.ErrorIs(t, err, accounts.ErrInvalidToken)
}

func TestTokenRejectsGarbage(t *testing.T) {
	signer, err := accounts.NewTokenSigner("test-secret", time.Hour)
	require.NoError(t, err)

	for _, raw := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		_, err := signer.Parse(raw)
		assert.ErrorIs(t, err, accounts.ErrInvalidToken)
	}
}

func TestTokenRejectsExpired(t *testing.T) {
	signer, err := accounts.NewTokenSigner("test-secret", time.Hour)
	require.NoError(t, err)

	// Well past the 30 second parse leeway.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	raw, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = signer.Parse(raw)
	assert.ErrorIs(t, err, accounts.ErrInvalidToken)
}

func TestTokenRejectsUnsignedAlg(t *testing.T) {
	signer, err := accounts.NewTokenSigner("test-secret", time.Hour)
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.Parse(raw)
	assert.ErrorIs(t, err, accounts.ErrInvalidToken)
}
