package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riptide/riptide/internal/auth"
	"github.com/riptide/riptide/internal/testutil"
)

func newService(t *testing.T, secret string) *auth.Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	svc, err := auth.NewService(tdb.Conn, secret)
	require.NoError(t, err)
	return svc
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newService(t, "test-secret")

	token, err := svc.GenerateToken(1, "admin", []string{auth.ScopeStream})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	user, err := svc.ValidateToken(token, auth.ScopeStream)
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "admin", user.Username)
	assert.Contains(t, user.Scopes, auth.ScopeStream)
}

func TestValidateTokenMissing(t *testing.T) {
	svc := newService(t, "test-secret")

	_, err := svc.ValidateToken("", auth.ScopeStream)
	assert.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := newService(t, "test-secret")

	_, err := svc.ValidateToken("not.a.jwt", auth.ScopeStream)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := newService(t, "secret-a")
	verifier := newService(t, "secret-b")

	token, err := issuer.GenerateToken(1, "admin", []string{auth.ScopeStream})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token, auth.ScopeStream)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := newService(t, "test-secret")

	claims := &auth.Claims{
		UserID:   1,
		Username: "admin",
		Scopes:   []string{auth.ScopeStream},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token, auth.ScopeStream)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestValidateTokenInsufficientScope(t *testing.T) {
	svc := newService(t, "test-secret")

	token, err := svc.GenerateToken(1, "admin", []string{"other"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(token, auth.ScopeStream)
	assert.ErrorIs(t, err, auth.ErrInsufficientScope)
}

func TestValidateTokenNoScopeRequired(t *testing.T) {
	svc := newService(t, "test-secret")

	token, err := svc.GenerateToken(1, "admin", nil)
	require.NoError(t, err)

	user, err := svc.ValidateToken(token, "")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
}

func TestGeneratedSecretPersists(t *testing.T) {
	tdb := testutil.NewTestDB(t)

	first, err := auth.NewService(tdb.Conn, "")
	require.NoError(t, err)

	token, err := first.GenerateToken(1, "admin", []string{auth.ScopeStream})
	require.NoError(t, err)

	// A second service over the same database loads the stored secret and
	// accepts tokens minted by the first.
	second, err := auth.NewService(tdb.Conn, "")
	require.NoError(t, err)

	user, err := second.ValidateToken(token, auth.ScopeStream)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
}
