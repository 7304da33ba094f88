package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/storefront/internal/domain"
)

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestSetPair_Attributes(t *testing.T) {
	writer := NewCookieWriter(true, 15*time.Minute, 168*time.Hour)
	rec := httptest.NewRecorder()

	writer.SetPair(rec, &domain.TokenPair{AccessToken: "acc", RefreshToken: "ref"})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	access := findCookie(t, cookies, CookieAccessToken)
	assert.Equal(t, "acc", access.Value)
	assert.Equal(t, "/", access.Path)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.Equal(t, int((15 * time.Minute).Seconds()), access.MaxAge)

	refresh := findCookie(t, cookies, CookieRefreshToken)
	assert.Equal(t, "ref", refresh.Value)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, int((168 * time.Hour).Seconds()), refresh.MaxAge)
}

func TestSetAccess_LeavesRefreshUntouched(t *testing.T) {
	writer := NewCookieWriter(false, 15*time.Minute, 168*time.Hour)
	rec := httptest.NewRecorder()

	writer.SetAccess(rec, "new-access")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieAccessToken, cookies[0].Name)
	assert.False(t, cookies[0].Secure)
}

func TestClear_ExpiresBothTokens(t *testing.T) {
	writer := NewCookieWriter(true, 15*time.Minute, 168*time.Hour)
	rec := httptest.NewRecorder()

	writer.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestSetNotice_ReadableByClient(t *testing.T) {
	writer := NewCookieWriter(true, 15*time.Minute, 168*time.Hour)
	rec := httptest.NewRecorder()

	writer.SetNotice(rec, NoticeSessionExpired)

	notice := findCookie(t, rec.Result().Cookies(), CookieAuthNotice)
	assert.Equal(t, NoticeSessionExpired, notice.Value)
	assert.False(t, notice.HttpOnly, "application shell must be able to read the notice")
	assert.Positive(t, notice.MaxAge)
}
