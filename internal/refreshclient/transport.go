package refreshclient

import (
	"context"
	"io"
	"net/http"

	"github.com/harborline/storefront/internal/auth"
)

type retryMarker struct{}

// markRetried tags a context so the retried request can never trigger another
// refresh, which would loop forever against a persistently rejecting server.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryMarker{}, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retryMarker{}).(bool)
	return retried
}

// Transport is an http.RoundTripper that attaches the coordinator's access
// token to every request and, on a 401, waits for a coordinated refresh and
// replays the request once with the new token. Requests failing while a
// refresh is in flight join that wave instead of starting their own.
type Transport struct {
	base        http.RoundTripper
	coordinator *Coordinator
}

// NewTransport wraps base with refresh coordination. A nil base uses
// http.DefaultTransport.
func NewTransport(base http.RoundTripper, coordinator *Coordinator) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, coordinator: coordinator}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(t.withToken(req, t.coordinator.Token()))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isRetried(req.Context()) {
		return resp, nil
	}

	token, refreshErr := t.coordinator.Refresh(req.Context())
	if refreshErr != nil {
		// The original 401 stands; the coordinator has recorded the notice
		// marker and the next navigation decides what to show.
		return resp, nil
	}

	if req.Body != nil && req.GetBody == nil {
		// The first attempt consumed a body that cannot be rebuilt. The token
		// is refreshed for later requests, but this one cannot be replayed.
		return resp, nil
	}

	drain(resp)

	retry := req.Clone(markRetried(req.Context()))
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, bodyErr
		}
		retry.Body = body
	}

	return t.base.RoundTrip(t.withToken(retry, token))
}

// withToken returns a clone carrying the access token cookie. The original
// request is never mutated, per the RoundTripper contract.
func (t *Transport) withToken(req *http.Request, token string) *http.Request {
	if token == "" {
		return req
	}
	clone := req.Clone(req.Context())
	clone.AddCookie(&http.Cookie{Name: auth.CookieAccessToken, Value: token})
	return clone
}

// drain discards the rejected response body so its connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
