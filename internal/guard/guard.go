// Package guard implements the per-request page authorization decision. It
// runs before any protected page handler as an ordered pipeline of stages
// over a single evaluation value. The guard verifies the access token
// signature locally and never touches the database or the session store
// itself; when only a refresh token is present it delegates to the refresh
// flow, which owns the stateful checks.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/auth"
	"github.com/harborline/storefront/internal/domain"
	"github.com/harborline/storefront/internal/service"
)

// Refresher exchanges a refresh token for a new access token backed by the
// current user record. *service.AuthService satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*service.RefreshResult, error)
}

// Decision is the outcome of evaluating one request. A zero RedirectTo means
// the request proceeds to its handler. Cookie side effects accumulate
// independently of the redirect: a decision can both attach a fresh access
// token and redirect.
type Decision struct {
	RedirectTo     string
	SetAccessToken string
	Notice         string
	ClearAuth      bool

	// Outcome labels the decision for metrics.
	Outcome string
}

// Allowed reports whether the request may proceed to its handler.
func (d Decision) Allowed() bool { return d.RedirectTo == "" }

// evaluation is the mutable state threaded through the stage pipeline.
type evaluation struct {
	path  string
	route RouteClass

	accessToken  string
	refreshToken string

	// claims is non-nil once the caller is authenticated, either by a valid
	// access token or by a successful refresh.
	claims *auth.AccessClaims

	// Accumulated cookie side effects.
	setAccessToken string
	notice         string
	clearAuth      bool
}

// stage inspects the evaluation and either returns a terminal decision or
// nil to pass control to the next stage.
type stage func(ctx context.Context, e *evaluation) *Decision

// Guard evaluates page requests.
type Guard struct {
	issuer    *auth.Issuer
	refresher Refresher
	logger    *slog.Logger
	stages    []stage
}

// New creates a guard with the standard stage order: token classification,
// refresh delegation, public-route bypass, authentication, role rules,
// onboarding gate, verification gate.
func New(issuer *auth.Issuer, refresher Refresher, logger *slog.Logger) *Guard {
	g := &Guard{
		issuer:    issuer,
		refresher: refresher,
		logger:    logger,
	}
	g.stages = []stage{
		g.classifyTokens,
		g.refreshSession,
		g.redirectAuthenticatedAway,
		g.requireAuth,
		g.enforceRole,
		g.enforceOnboarding,
		g.enforceVerification,
	}
	return g
}

// Evaluate runs the stage pipeline for one request and returns the decision.
func (g *Guard) Evaluate(r *http.Request) Decision {
	decision, _ := g.evaluateWithClaims(r)
	return decision
}

// finish folds the accumulated cookie side effects into the decision.
func (e *evaluation) finish(d Decision) Decision {
	d.SetAccessToken = e.setAccessToken
	d.Notice = e.notice
	d.ClearAuth = e.clearAuth
	recordDecision(d.Outcome)
	return d
}

// classifyTokens verifies the access token signature if one is present. An
// unverifiable access token is treated the same as a missing one; whether
// that ends in a refresh or a login redirect is decided downstream.
func (g *Guard) classifyTokens(ctx context.Context, e *evaluation) *Decision {
	if e.accessToken == "" {
		return nil
	}

	claims, err := g.issuer.VerifyAccess(e.accessToken)
	if err != nil {
		if !errors.Is(err, apperrors.ErrTokenExpired) {
			// Expiry is routine; anything else is worth a log line.
			g.logger.WarnContext(ctx, "unverifiable access token",
				slog.String("path", e.path),
				slog.String("error", err.Error()),
			)
		}
		if e.refreshToken == "" {
			e.clearAuth = true
		}
		return nil
	}

	e.claims = claims
	return nil
}

// refreshSession delegates to the refresh flow when only a refresh token is
// usable. Session expiry redirects to login with a marker; store
// unavailability lets the request proceed with a notice cookie so the client
// shell can warn without forcing a logout.
func (g *Guard) refreshSession(ctx context.Context, e *evaluation) *Decision {
	if e.claims != nil || e.refreshToken == "" {
		return nil
	}

	result, err := g.refresher.Refresh(ctx, e.refreshToken)
	if err == nil {
		e.setAccessToken = result.AccessToken
		e.claims = claimsFromUser(result.User)
		return nil
	}

	if !sessionRejected(err) {
		// The session may still be valid; a dependency failed. Degrade with
		// the notice instead of logging the caller out.
		if !errors.Is(err, apperrors.ErrUnavailable) {
			g.logger.WarnContext(ctx, "refresh failed transiently",
				slog.String("path", e.path),
				slog.String("error", err.Error()),
			)
		}
		e.notice = auth.NoticeServiceUnavailable
		return nil
	}

	e.clearAuth = true
	if e.route == RoutePublicAuth || e.route == RouteOpen {
		// Already somewhere an anonymous caller may be. Drop the dead
		// cookies and let the request through.
		return nil
	}
	return &Decision{
		RedirectTo: PathLogin + "?session=expired",
		Outcome:    "expired_redirect",
	}
}

// redirectAuthenticatedAway keeps authenticated callers off the login and
// registration forms.
func (g *Guard) redirectAuthenticatedAway(_ context.Context, e *evaluation) *Decision {
	if e.route != RoutePublicAuth {
		return nil
	}
	if e.claims == nil {
		return &Decision{Outcome: "allow"}
	}
	return &Decision{
		RedirectTo: DashboardFor(e.claims.Role),
		Outcome:    "away_redirect",
	}
}

// requireAuth redirects anonymous callers on protected routes to login. When
// a refresh failed only because the session store was unreachable, the
// request proceeds with the notice cookie instead.
func (g *Guard) requireAuth(_ context.Context, e *evaluation) *Decision {
	if e.claims != nil {
		return nil
	}
	if e.route == RouteOpen {
		return &Decision{Outcome: "allow"}
	}
	if e.notice == auth.NoticeServiceUnavailable {
		return &Decision{Outcome: "unavailable_notice"}
	}
	return &Decision{RedirectTo: PathLogin, Outcome: "login_redirect"}
}

// enforceRole sends a caller on the wrong side of the admin boundary to
// their own dashboard. A mismatch is a redirect, never an error page.
func (g *Guard) enforceRole(_ context.Context, e *evaluation) *Decision {
	isAdmin := e.claims.Role == domain.RoleAdmin
	switch e.route {
	case RouteAdmin:
		if !isAdmin {
			return &Decision{RedirectTo: DashboardFor(e.claims.Role), Outcome: "role_redirect"}
		}
	case RouteCustomer:
		if isAdmin {
			return &Decision{RedirectTo: PathAdmin, Outcome: "role_redirect"}
		}
	}
	return nil
}

// enforceOnboarding pins the seeded default administrator to the onboarding
// page until the credential change succeeds, and keeps everyone else off it.
func (g *Guard) enforceOnboarding(_ context.Context, e *evaluation) *Decision {
	pending := e.claims.DefaultAdmin && !e.claims.OnboardingComplete
	onOnboarding := e.path == PathAdminOnboarding

	if pending && !onOnboarding {
		return &Decision{RedirectTo: PathAdminOnboarding, Outcome: "onboarding_redirect"}
	}
	if !pending && onOnboarding {
		return &Decision{RedirectTo: DashboardFor(e.claims.Role), Outcome: "away_redirect"}
	}
	return nil
}

// enforceVerification sends callers with an unproven email to the
// verification page, carrying the identifiers its form needs.
func (g *Guard) enforceVerification(_ context.Context, e *evaluation) *Decision {
	onVerification := e.path == PathVerifyEmail

	if !e.claims.EmailVerified && !onVerification {
		q := url.Values{}
		q.Set("user_id", e.claims.UserID)
		q.Set("email", e.claims.Email)
		return &Decision{
			RedirectTo: PathVerifyEmail + "?" + q.Encode(),
			Outcome:    "verification_redirect",
		}
	}
	if e.claims.EmailVerified && onVerification {
		return &Decision{RedirectTo: DashboardFor(e.claims.Role), Outcome: "away_redirect"}
	}
	return nil
}

// sessionRejected reports whether a refresh failure means the session itself
// is gone, as opposed to a dependency being down. Only a rejection may clear
// the caller's cookies.
func sessionRejected(err error) bool {
	return errors.Is(err, apperrors.ErrSessionExpired) ||
		errors.Is(err, apperrors.ErrTokenExpired) ||
		errors.Is(err, apperrors.ErrTokenMalformed) ||
		errors.Is(err, apperrors.ErrSignatureInvalid)
}

// claimsFromUser builds access claims from a live user record. Used after a
// refresh, where the record is fresher than any token.
func claimsFromUser(user *domain.User) *auth.AccessClaims {
	return &auth.AccessClaims{
		UserID:             user.ID,
		Email:              user.Email,
		Role:               user.Role,
		EmailVerified:      user.EmailVerified,
		DefaultAdmin:       user.DefaultAdmin,
		OnboardingComplete: user.AdminOnboardingComplete,
	}
}
