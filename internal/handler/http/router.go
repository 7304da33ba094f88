package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborline/storefront/pkg/health"
	"github.com/harborline/storefront/pkg/middleware"

	"github.com/harborline/storefront/internal/auth"
	"github.com/harborline/storefront/internal/domain"
	"github.com/harborline/storefront/internal/guard"
	"github.com/harborline/storefront/internal/service"
)

// NewRouter creates a chi router with the API and page routes registered.
func NewRouter(
	authService *service.AuthService,
	verifier *service.VerificationService,
	onboarding *service.OnboardingService,
	issuer *auth.Issuer,
	routeGuard *guard.Guard,
	cookies *auth.CookieWriter,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
	rateLimitRPS, rateLimitBurst int,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(authService, verifier, cookies, logger)

	// Auth endpoints (public)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.RateLimit(rateLimitRPS, rateLimitBurst, logger))

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/logout", authHandler.Logout)
		r.Post("/verify-email", authHandler.VerifyEmail)
		r.Post("/resend-code", authHandler.ResendCode)

		// Present in the UI, not implemented.
		r.Get("/oauth/{provider}", authHandler.OAuth)
		r.Get("/oauth/{provider}/callback", authHandler.OAuth)

		// Authenticated auth endpoints
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(issuer))
			r.Post("/logout-all", authHandler.LogoutAll)
		})
	})

	// User endpoints (auth required)
	userHandler := NewUserHandler(authService, logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(RequireAuth(issuer))

		r.Get("/me", userHandler.Me)
	})

	// Admin endpoints (admin role required)
	adminHandler := NewAdminHandler(onboarding, cookies, logger)
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(RequireAuth(issuer))
		r.Use(RequireRole(domain.RoleAdmin))

		r.Patch("/profile", adminHandler.UpdateProfile)
	})

	// Page routes behind the route guard
	pages := NewPageHandler(logger)
	r.Group(func(r chi.Router) {
		r.Use(routeGuard.Middleware(cookies))

		r.Get(guard.PathHome, pages.Page("home", "Home"))
		r.Get(guard.PathLogin, pages.Page("login", "Sign In"))
		r.Get(guard.PathRegister, pages.Page("register", "Create Account"))
		r.Get(guard.PathForgotPassword, pages.Page("forgot-password", "Forgot Password"))
		r.Get(guard.PathDashboard, pages.Page("dashboard", "Dashboard"))
		r.Get(guard.PathAccount, pages.Page("account", "Account"))
		r.Get(guard.PathVerifyEmail, pages.Page("verify-email", "Verify Email"))
		r.Get(guard.PathAdmin, pages.Page("admin", "Admin"))
		r.Get(guard.PathAdminOnboarding, pages.Page("admin-onboarding", "Complete Setup"))
	})

	return r
}
