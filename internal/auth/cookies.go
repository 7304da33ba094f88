package auth

import (
	"net/http"
	"time"

	"github.com/harborline/storefront/internal/domain"
)

// Cookie names used by the auth flows.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"

	// CookieAuthNotice is a short-lived, client-readable marker written when a
	// refresh fails. The next page navigation reads it to decide between a
	// "session expired" and a "service unavailable" message instead of the
	// server forcing an immediate redirect.
	CookieAuthNotice = "auth_notice"
)

// Values carried by the auth notice cookie.
const (
	NoticeSessionExpired     = "session_expired"
	NoticeServiceUnavailable = "service_unavailable"
)

const noticeTTL = 30 * time.Second

// CookieWriter sets and clears the auth cookies with consistent attributes:
// http-only, SameSite=Lax, path /, secure outside development, max-age equal
// to the corresponding token lifetime.
type CookieWriter struct {
	secure        bool
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewCookieWriter creates a cookie writer. secure should be true in any
// deployed environment so the cookies are never sent over plain HTTP.
func NewCookieWriter(secure bool, accessExpiry, refreshExpiry time.Duration) *CookieWriter {
	return &CookieWriter{
		secure:        secure,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// SetPair writes both token cookies.
func (c *CookieWriter) SetPair(w http.ResponseWriter, pair *domain.TokenPair) {
	c.SetAccess(w, pair.AccessToken)
	http.SetCookie(w, c.build(CookieRefreshToken, pair.RefreshToken, c.refreshExpiry, true))
}

// SetAccess writes only the access token cookie. Used by the refresh flow,
// which leaves the refresh cookie untouched.
func (c *CookieWriter) SetAccess(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.build(CookieAccessToken, token, c.accessExpiry, true))
}

// Clear expires both token cookies.
func (c *CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.build(CookieAccessToken, "", -time.Second, true))
	http.SetCookie(w, c.build(CookieRefreshToken, "", -time.Second, true))
}

// SetNotice writes the short-lived marker cookie. It is intentionally not
// http-only so the client application shell can read it.
func (c *CookieWriter) SetNotice(w http.ResponseWriter, value string) {
	http.SetCookie(w, c.build(CookieAuthNotice, value, noticeTTL, false))
}

// ClearNotice expires the marker cookie.
func (c *CookieWriter) ClearNotice(w http.ResponseWriter) {
	http.SetCookie(w, c.build(CookieAuthNotice, "", -time.Second, false))
}

func (c *CookieWriter) build(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	return cookie
}
