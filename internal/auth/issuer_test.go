package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/domain"
)

const (
	testAccessSecret  = "test-access-secret"
	testRefreshSecret = "test-refresh-secret"
)

func newTestIssuer(accessExpiry, refreshExpiry time.Duration) *Issuer {
	return NewIssuer(testAccessSecret, testRefreshSecret, accessExpiry, refreshExpiry)
}

func testUser() *domain.User {
	return &domain.User{
		ID:            "user-1",
		Email:         "alice@example.com",
		Role:          domain.RoleCustomer,
		EmailVerified: true,
	}
}

func TestIssuePair_AccessClaimsSnapshotUser(t *testing.T) {
	issuer := newTestIssuer(15*time.Minute, 168*time.Hour)
	user := testUser()
	user.DefaultAdmin = true
	user.AdminOnboardingComplete = false
	user.Role = domain.RoleAdmin

	pair, err := issuer.IssuePair(user)
	require.NoError(t, err)

	claims, err := issuer.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.True(t, claims.EmailVerified)
	assert.True(t, claims.DefaultAdmin)
	assert.False(t, claims.OnboardingComplete)
}

func TestIssuePair_SessionIDOnlyInRefreshToken(t *testing.T) {
	issuer := newTestIssuer(15*time.Minute, 168*time.Hour)

	pair, err := issuer.IssuePair(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, pair.SessionID)

	refreshClaims, err := issuer.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, pair.SessionID, refreshClaims.SessionID)

	// Access tokens never carry a session ID, and each pair gets a new one.
	other, err := issuer.IssuePair(testUser())
	require.NoError(t, err)
	assert.NotEqual(t, pair.SessionID, other.SessionID)
}

func TestVerifyAccess_Expired(t *testing.T) {
	issuer := newTestIssuer(-time.Minute, 168*time.Hour)

	pair, err := issuer.IssuePair(testUser())
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestVerifyAccess_WrongSecret(t *testing.T) {
	issuer := newTestIssuer(15*time.Minute, 168*time.Hour)
	forged := NewIssuer("some-other-secret", testRefreshSecret, 15*time.Minute, 168*time.Hour)

	pair, err := forged.IssuePair(testUser())
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(pair.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSignatureInvalid)
}

func TestVerifyAccess_Malformed(t *testing.T) {
	issuer := newTestIssuer(15*time.Minute, 168*time.Hour)

	_, err := issuer.VerifyAccess("not.a.token")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTokenMalformed)
}

func TestSecretsAreNotInterchangeable(t *testing.T) {
	issuer := newTestIssuer(15*time.Minute, 168*time.Hour)

	pair, err := issuer.IssuePair(testUser())
	require.NoError(t, err)

	// A refresh token must not verify as an access token or vice versa.
	_, err = issuer.VerifyAccess(pair.RefreshToken)
	assert.Error(t, err)

	_, err = issuer.VerifyRefresh(pair.AccessToken)
	assert.Error(t, err)
}

func TestSignAccessToken_ReflectsCurrentState(t *testing.T) {
	issuer := newTestIssuer(15*time.Minute, 168*time.Hour)
	user := testUser()
	user.EmailVerified = false

	first, err := issuer.SignAccessToken(user)
	require.NoError(t, err)

	firstClaims, err := issuer.VerifyAccess(first)
	require.NoError(t, err)
	assert.False(t, firstClaims.EmailVerified)

	// After the record changes, a reissued token carries the new state.
	user.EmailVerified = true
	second, err := issuer.SignAccessToken(user)
	require.NoError(t, err)

	secondClaims, err := issuer.VerifyAccess(second)
	require.NoError(t, err)
	assert.True(t, secondClaims.EmailVerified)
}
