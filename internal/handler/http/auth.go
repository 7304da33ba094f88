package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/harborline/storefront/pkg/errors"
	"github.com/harborline/storefront/pkg/httputil"
	"github.com/harborline/storefront/pkg/validator"

	"github.com/harborline/storefront/internal/auth"
	"github.com/harborline/storefront/internal/service"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service  *service.AuthService
	verifier *service.VerificationService
	cookies  *auth.CookieWriter
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(
	svc *service.AuthService,
	verifier *service.VerificationService,
	cookies *auth.CookieWriter,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{service: svc, verifier: verifier, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyEmailRequest is the JSON request body for an OTP check.
type VerifyEmailRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// ResendCodeRequest is the JSON request body for requesting a fresh OTP.
type ResendCodeRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// --- Response types ---

// AuthResponse is the body returned by login and register. The tokens
// themselves travel only in cookies.
type AuthResponse struct {
	User                  any  `json:"user"`
	RequiresProfileUpdate bool `json:"requires_profile_update"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.SetPair(w, result.Tokens)
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data: AuthResponse{User: result.User},
	})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.SetPair(w, result.Tokens)
	h.cookies.ClearNotice(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: AuthResponse{
			User:                  result.User,
			RequiresProfileUpdate: result.RequiresProfileUpdate,
		},
	})
}

// Refresh handles POST /api/v1/auth/refresh. Cookie-only: no request body.
// On success only the access-token cookie is replaced; the refresh cookie
// and the session entry stay as they are.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.CookieRefreshToken)
	if err != nil || cookie.Value == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("refresh token required"), h.logger)
		return
	}

	result, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if isSessionRejection(err) {
			h.cookies.Clear(w)
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.SetAccess(w, result.AccessToken)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]any{"user": result.User},
	})
}

// Logout handles POST /api/v1/auth/logout. The cookies are cleared even when
// the presented refresh token is invalid.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := ""
	if cookie, err := r.Cookie(auth.CookieRefreshToken); err == nil {
		refreshToken = cookie.Value
	}

	if err := h.service.Logout(r.Context(), refreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.Clear(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "logged out"},
	})
}

// LogoutAll handles POST /api/v1/auth/logout-all. Requires authentication;
// revokes every session for the caller.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	if err := h.service.LogoutAll(r.Context(), claims.UserID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.Clear(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "all sessions revoked"},
	})
}

// VerifyEmail handles POST /api/v1/auth/verify-email. On success, if the
// caller still holds a live session, a fresh access token carrying the
// verified flag is attached so the gate lifts without a re-login.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.verifier.Check(r.Context(), req.UserID, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	data := map[string]any{"user": user, "message": "email verified"}

	if cookie, cerr := r.Cookie(auth.CookieRefreshToken); cerr == nil && cookie.Value != "" {
		if result, rerr := h.service.Refresh(r.Context(), cookie.Value); rerr == nil {
			h.cookies.SetAccess(w, result.AccessToken)
		}
		// A dead session here is not an error: verification succeeded and the
		// next login picks up the verified state.
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: data})
}

// ResendCode handles POST /api/v1/auth/resend-code. The fresh code replaces
// any previous one and resets the attempt counter. The code itself is never
// in the response; it travels by email.
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req ResendCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.verifier.CreateOrRefresh(r.Context(), req.UserID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "a new verification code has been sent"},
	})
}

// OAuth handles the social login routes, which exist in the UI but are not
// implemented.
func (h *AuthHandler) OAuth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusNotImplemented, httputil.Response{
		Error: &httputil.ErrorResponse{
			Code:    "NOT_IMPLEMENTED",
			Message: "social login is not available",
		},
	})
}

// decode reads and validates a JSON request body, writing the error response
// itself on failure.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}

	if err := validator.Validate(v); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}

	return true
}

// isSessionRejection reports whether a refresh failure means the session is
// gone for good, in which case the dead cookies are cleared. A transient
// store failure keeps them: the session may still be valid.
func isSessionRejection(err error) bool {
	return errors.Is(err, apperrors.ErrSessionExpired) ||
		errors.Is(err, apperrors.ErrTokenExpired) ||
		errors.Is(err, apperrors.ErrTokenMalformed) ||
		errors.Is(err, apperrors.ErrSignatureInvalid)
}
