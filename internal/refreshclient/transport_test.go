package refreshclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/auth"
)

// tokenCheckingServer accepts only requests carrying the given access token
// cookie and counts rejections.
func tokenCheckingServer(t *testing.T, accepted string, rejections *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.CookieAccessToken)
		if err != nil || cookie.Value != accepted {
			if rejections != nil {
				rejections.Add(1)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransport_RetriesOnceAfterRefresh(t *testing.T) {
	srv := tokenCheckingServer(t, "fresh-token", nil)

	var refreshCalls atomic.Int32
	c := NewCoordinator(func(ctx context.Context) (string, error) {
		refreshCalls.Add(1)
		return "fresh-token", nil
	}, newTestLogger())
	c.SetToken("stale-token")

	client := &http.Client{Transport: NewTransport(nil, c)}

	resp, err := client.Get(srv.URL + "/api/v1/users/me")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, "fresh-token", c.Token())
}

func TestTransport_RetriedRequestNeverRefreshesAgain(t *testing.T) {
	var rejections atomic.Int32
	srv := tokenCheckingServer(t, "never-issued", &rejections)

	var refreshCalls atomic.Int32
	c := NewCoordinator(func(ctx context.Context) (string, error) {
		refreshCalls.Add(1)
		return "still-rejected", nil
	}, newTestLogger())

	client := &http.Client{Transport: NewTransport(nil, c)}

	resp, err := client.Get(srv.URL + "/api/v1/users/me")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// The retried request came back 401 too; that is the final answer.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), refreshCalls.Load(), "a retry must not trigger another refresh")
	assert.Equal(t, int32(2), rejections.Load())
}

func TestTransport_FailedRefreshReturnsOriginalResponse(t *testing.T) {
	srv := tokenCheckingServer(t, "never-issued", nil)

	c := NewCoordinator(func(ctx context.Context) (string, error) {
		return "", apperrors.SessionExpired()
	}, newTestLogger())
	c.SetToken("stale-token")

	client := &http.Client{Transport: NewTransport(nil, c)}

	resp, err := client.Get(srv.URL + "/api/v1/users/me")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, c.Token())
	assert.Equal(t, auth.NoticeSessionExpired, c.Notice())
}

// opaqueReader hides the underlying reader type so http.NewRequest cannot
// derive a GetBody for it.
type opaqueReader struct{ r io.Reader }

func (o opaqueReader) Read(p []byte) (int, error) { return o.r.Read(p) }

func TestTransport_UnreplayableBodyKeepsOriginal401(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body), "a replay would arrive with an empty stream")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	var refreshCalls atomic.Int32
	c := NewCoordinator(func(ctx context.Context) (string, error) {
		refreshCalls.Add(1)
		return "fresh-token", nil
	}, newTestLogger())
	c.SetToken("stale-token")

	client := &http.Client{Transport: NewTransport(nil, c)}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/admin/profile", opaqueReader{strings.NewReader("payload")})
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// The consumed body cannot be rebuilt, so the first 401 is the answer;
	// the refreshed token still benefits later requests.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, "fresh-token", c.Token())
}

func TestTransport_ConcurrentExpiryConvergesOnOneRefresh(t *testing.T) {
	srv := tokenCheckingServer(t, "fresh-token", nil)

	var refreshCalls atomic.Int32
	c := NewCoordinator(func(ctx context.Context) (string, error) {
		refreshCalls.Add(1)
		// Hold the wave open long enough for every rejected request to join.
		time.Sleep(200 * time.Millisecond)
		return "fresh-token", nil
	}, newTestLogger())
	c.SetToken("stale-token")

	client := &http.Client{Transport: NewTransport(nil, c)}

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	statuses := make([]int, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/api/v1/users/me")
			if err != nil {
				errs[i] = err
				return
			}
			defer func() { _ = resp.Body.Close() }()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshCalls.Load(), "concurrent expiry must converge on a single refresh call")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, statuses[i])
	}
}
