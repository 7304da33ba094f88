package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/domain"
)

const tokenIssuer = "storefront-auth"

// AccessClaims is the signed snapshot of user state carried by an access
// token. It can be stale for up to one access-token lifetime; anything that
// cannot tolerate staleness must re-read the user record instead.
type AccessClaims struct {
	UserID             string `json:"user_id"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	EmailVerified      bool   `json:"email_verified"`
	DefaultAdmin       bool   `json:"default_admin"`
	OnboardingComplete bool   `json:"onboarding_complete"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. SessionID binds the token
// to its session store entry; it appears in no other token.
type RefreshClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies token pairs. Access and refresh tokens are signed
// with separate secrets. Issuing performs no I/O; the caller persists the
// session and writes the cookies.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewIssuer creates an issuer with the given secrets and lifetimes.
func NewIssuer(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// AccessExpiry returns the access token lifetime.
func (i *Issuer) AccessExpiry() time.Duration { return i.accessExpiry }

// RefreshExpiry returns the refresh token lifetime, which is also the
// session store TTL.
func (i *Issuer) RefreshExpiry() time.Duration { return i.refreshExpiry }

// IssuePair mints an access/refresh token pair from the current user
// snapshot, generating a fresh session ID that is embedded only in the
// refresh token.
func (i *Issuer) IssuePair(user *domain.User) (*domain.TokenPair, error) {
	sessionID := uuid.New().String()

	accessToken, err := i.SignAccessToken(user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	refreshClaims := &RefreshClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshExpiry)),
			Issuer:    tokenIssuer,
		},
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(i.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
	}, nil
}

// SignAccessToken mints a new access token from the current user snapshot.
// Used alone by the refresh flow, which reissues only the access token.
func (i *Issuer) SignAccessToken(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := &AccessClaims{
		UserID:             user.ID,
		Email:              user.Email,
		Role:               user.Role,
		EmailVerified:      user.EmailVerified,
		DefaultAdmin:       user.DefaultAdmin,
		OnboardingComplete: user.AdminOnboardingComplete,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessExpiry)),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// VerifyAccess parses and verifies an access token, returning its claims.
// Failures map onto the token error taxonomy so callers can branch with
// errors.Is.
func (i *Issuer) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.verify(tokenString, claims, i.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and verifies a refresh token, returning its claims.
func (i *Issuer) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.verify(tokenString, claims, i.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) verify(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return classifyJWTError(err)
	}
	if !token.Valid {
		return apperrors.TokenMalformed()
	}
	return nil
}

// classifyJWTError maps jwt parse failures onto the taxonomy. Expiry and
// signature failures drive different redirects, so they must stay distinct.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.TokenExpired()
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &apperrors.AppError{
			Code:    "TOKEN_SIGNATURE_INVALID",
			Message: "token signature verification failed",
			Status:  http.StatusUnauthorized,
			Err:     apperrors.ErrSignatureInvalid,
		}
	default:
		return apperrors.TokenMalformed()
	}
}
