package http

import (
	"log/slog"
	"net/http"

	apperrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/httputil"

	"github.com/harborline/storefront/internal/auth"
	"github.com/harborline/storefront/internal/service"
)

// UserHandler handles HTTP requests for the user endpoints.
type UserHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// Me handles GET /api/v1/users/me. The record is read fresh so the response
// reflects state newer than the access token's claims.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}
