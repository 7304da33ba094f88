package refreshclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/auth"
)

func TestEndpointRefresh_ReadsAccessCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.CookieRefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "the-refresh-token", cookie.Value)

		http.SetCookie(w, &http.Cookie{Name: auth.CookieAccessToken, Value: "new-access"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	refresh := NewEndpointRefresh(srv.URL, func() string { return "the-refresh-token" }, newTestLogger())

	token, err := refresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
}

func TestEndpointRefresh_MapsSessionExpiredBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"SESSION_EXPIRED","message":"session has expired, please log in again"}}`))
	}))
	defer srv.Close()

	refresh := NewEndpointRefresh(srv.URL, func() string { return "dead-token" }, newTestLogger())

	token, err := refresh(context.Background())

	assert.Empty(t, token)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestEndpointRefresh_MissingCookieIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	refresh := NewEndpointRefresh(srv.URL, func() string { return "token" }, newTestLogger())

	_, err := refresh(context.Background())

	assert.Error(t, err)
}
