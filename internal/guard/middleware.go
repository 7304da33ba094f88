package guard

import (
	"net/http"

	"github.com/harborline/storefront/internal/auth"
)

// Middleware applies the guard to page routes. Cookie side effects are
// written before the redirect or the handler runs, so a reissued access
// token survives either way. Verified claims are attached to the request
// context for the page handler.
func (g *Guard) Middleware(cookies *auth.CookieWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, claims := g.evaluateWithClaims(r)

			if decision.ClearAuth {
				cookies.Clear(w)
			}
			if decision.SetAccessToken != "" {
				cookies.SetAccess(w, decision.SetAccessToken)
			}
			if decision.Notice != "" {
				cookies.SetNotice(w, decision.Notice)
			}

			if !decision.Allowed() {
				http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
				return
			}

			if claims != nil {
				r = r.WithContext(auth.ContextWithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// evaluateWithClaims runs the pipeline and also surfaces the claims the
// pipeline established, so handlers behind the guard do not re-verify the
// token.
func (g *Guard) evaluateWithClaims(r *http.Request) (Decision, *auth.AccessClaims) {
	e := &evaluation{
		path:  r.URL.Path,
		route: Classify(r.URL.Path),
	}
	if c, err := r.Cookie(auth.CookieAccessToken); err == nil {
		e.accessToken = c.Value
	}
	if c, err := r.Cookie(auth.CookieRefreshToken); err == nil {
		e.refreshToken = c.Value
	}

	for _, s := range g.stages {
		if d := s(r.Context(), e); d != nil {
			return e.finish(*d), e.claims
		}
	}
	return e.finish(Decision{Outcome: "allow"}), e.claims
}
