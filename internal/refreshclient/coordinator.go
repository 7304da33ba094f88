// Package refreshclient implements the client-side refresh coordination for
// callers of the storefront API. When an access token expires, many requests
// can fail with 401 at almost the same moment; the coordinator guarantees at
// most one call reaches the refresh endpoint per wave while every other
// failing request waits on that call's outcome and then retries.
package refreshclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/auth"
)

// RefreshFunc performs one call to the refresh endpoint and returns the new
// access token. Implementations must not retry: a failed refresh call settles
// the whole wave.
type RefreshFunc func(ctx context.Context) (string, error)

// wave is one refresh attempt and the set of waiters attached to it. The
// outcome fields are written exactly once, before done is closed.
type wave struct {
	done  chan struct{}
	token string
	err   error
}

// Coordinator serializes refresh calls. It also holds the client's copy of
// the access token and the notice marker left behind by an unrecoverable
// refresh failure, which the application shell reads to choose between a
// "session expired" and a "service unavailable" message.
type Coordinator struct {
	refresh RefreshFunc
	logger  *slog.Logger

	mu       sync.Mutex
	inflight *wave
	token    string
	notice   string
}

// NewCoordinator creates a coordinator around the given refresh call.
func NewCoordinator(refresh RefreshFunc, logger *slog.Logger) *Coordinator {
	return &Coordinator{refresh: refresh, logger: logger}
}

// Token returns the client's current access token copy, which may be empty.
func (c *Coordinator) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken replaces the token copy, typically after a login.
func (c *Coordinator) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.notice = ""
}

// Notice returns and clears the marker left by the last failed refresh.
func (c *Coordinator) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	notice := c.notice
	c.notice = ""
	return notice
}

// Refresh returns a fresh access token, joining the in-flight wave if one
// exists or starting a new one otherwise. Every caller that joins a wave
// observes that wave's single outcome. A wave is scoped to one refresh
// attempt: callers arriving after it settles start a new one.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if w := c.inflight; w != nil {
		c.mu.Unlock()
		return c.await(ctx, w)
	}

	w := &wave{done: make(chan struct{})}
	c.inflight = w
	c.mu.Unlock()

	token, err := c.refresh(ctx)

	c.mu.Lock()
	// Detach the wave before releasing its waiters so later failures open a
	// new wave instead of observing this settled one.
	c.inflight = nil
	if err == nil {
		c.token = token
		c.notice = ""
	} else {
		c.token = ""
		c.notice = classifyFailure(err)
		c.logger.Warn("token refresh failed",
			slog.String("notice", c.notice),
			slog.String("error", err.Error()),
		)
	}
	c.mu.Unlock()

	w.token = token
	w.err = err
	close(w.done)

	return token, err
}

// await blocks until the wave settles or the caller's context ends.
func (c *Coordinator) await(ctx context.Context, w *wave) (string, error) {
	select {
	case <-w.done:
		return w.token, w.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// classifyFailure picks the notice marker for a failed refresh. Only
// server-returned rejections mean the session is gone; anything else,
// including network-layer failures with no response at all, is reported as
// the service being unavailable so the user is not logged out spuriously.
func classifyFailure(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrSessionExpired),
		errors.Is(err, apperrors.ErrTokenExpired),
		errors.Is(err, apperrors.ErrTokenMalformed):
		return auth.NoticeSessionExpired
	default:
		return auth.NoticeServiceUnavailable
	}
}
