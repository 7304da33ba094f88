package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/httputil"
	"github.com/harborline/storefront/pkg/validator"

	"github.com/harborline/storefront/internal/auth"
	"github.com/harborline/storefront/internal/service"
)

// AdminHandler handles HTTP requests for the admin endpoints.
type AdminHandler struct {
	onboarding *service.OnboardingService
	cookies    *auth.CookieWriter
	logger     *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(onboarding *service.OnboardingService, cookies *auth.CookieWriter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{onboarding: onboarding, cookies: cookies, logger: logger}
}

// UpdateProfileRequest is the JSON request body for the seeded administrator
// credential change.
type UpdateProfileRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewEmail        string `json:"new_email" validate:"required,email"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// UpdateProfile handles PATCH /api/v1/admin/profile. Completing onboarding
// revokes every session for the account, so the caller's own cookies are
// cleared and a fresh login under the new credentials is required.
func (h *AdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, err := h.onboarding.UpdateAdminProfile(r.Context(), claims.UserID, service.UpdateProfileInput{
		CurrentPassword: req.CurrentPassword,
		NewEmail:        req.NewEmail,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.Clear(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]any{
			"user":    user,
			"message": "profile updated, please log in with your new credentials",
		},
	})
}
