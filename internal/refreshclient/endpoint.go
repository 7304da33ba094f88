package refreshclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	apperrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/httpclient"

	"github.com/harborline/storefront/internal/auth"
)

// NewEndpointRefresh builds a RefreshFunc that posts to the refresh endpoint
// with the caller's refresh-token cookie. The call goes through a circuit
// breaker and is never retried at the transport level: one settled wave per
// attempt. refreshToken is read per call so a re-login is picked up.
func NewEndpointRefresh(baseURL string, refreshToken func() string, logger *slog.Logger) RefreshFunc {
	cfg := httpclient.DefaultConfig()
	// A refresh call is never replayed. Its failure settles the wave.
	cfg.MaxRetries = 0

	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(cfg),
		httpclient.DefaultCircuitBreakerConfig("auth-refresh"),
		logger,
	)

	url := baseURL + "/api/v1/auth/refresh"

	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
		if err != nil {
			return "", fmt.Errorf("create refresh request: %w", err)
		}
		req.AddCookie(&http.Cookie{Name: auth.CookieRefreshToken, Value: refreshToken()})

		resp, err := client.Do(ctx, req)
		if err != nil {
			if errors.Is(err, httpclient.ErrCircuitOpen) {
				return "", apperrors.Unavailable("refresh endpoint")
			}
			return "", err
		}

		if resp.StatusCode != http.StatusOK {
			return "", httpclient.ParseResponseError(resp, "refresh endpoint")
		}
		defer func() { _ = resp.Body.Close() }()

		for _, c := range resp.Cookies() {
			if c.Name == auth.CookieAccessToken && c.Value != "" {
				return c.Value, nil
			}
		}
		return "", fmt.Errorf("refresh endpoint returned no access token cookie")
	}
}
