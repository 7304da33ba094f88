package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/auth"
	"github.com/harborline/storefront/internal/domain"
	"github.com/harborline/storefront/internal/event"
	"github.com/harborline/storefront/internal/repository"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// SessionStore is the session persistence surface the auth flows need.
// *session.Store satisfies it.
type SessionStore interface {
	Set(ctx context.Context, userID, sessionID, refreshToken string) error
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, userID, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// AuthService implements login, registration, refresh, and logout.
type AuthService struct {
	userRepo repository.UserRepository
	sessions SessionStore
	issuer   *auth.Issuer
	verifier *VerificationService
	producer *event.Producer
	logger   *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	userRepo repository.UserRepository,
	sessions SessionStore,
	issuer *auth.Issuer,
	verifier *VerificationService,
	producer *event.Producer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		sessions: sessions,
		issuer:   issuer,
		verifier: verifier,
		producer: producer,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is the outcome of a successful login or registration.
type LoginResult struct {
	User   *domain.User
	Tokens *domain.TokenPair

	// RequiresProfileUpdate flags the seeded default administrator that has
	// not yet rotated its placeholder credentials.
	RequiresProfileUpdate bool
}

// RefreshResult is the outcome of a successful token refresh. Only the
// access token is reissued; the refresh token and session entry stay as-is.
type RefreshResult struct {
	User        *domain.User
	AccessToken string
}

// Register creates a new customer account, issues a token pair, and creates
// an email verification code.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*LoginResult, error) {
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	tokens, err := s.issueAndStore(ctx, user)
	if err != nil {
		return nil, err
	}

	// Email verification starts at signup. A failure here is not fatal: the
	// user can request a resend.
	if _, err := s.verifier.CreateOrRefresh(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to create verification code at signup",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user_registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &LoginResult{User: user, Tokens: tokens}, nil
}

// Login authenticates a user with email and password. Session store
// unavailability is a hard failure: no tokens are handed out without a
// session record backing them.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			recordLogin("failed")
			return nil, apperrors.Credentials()
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		recordLogin("failed")
		return nil, apperrors.Credentials()
	}

	tokens, err := s.issueAndStore(ctx, user)
	if err != nil {
		recordLogin("error")
		return nil, err
	}

	if err := s.producer.PublishUserLoggedIn(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user_logged_in event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	recordLogin("success")
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &LoginResult{
		User:                  user,
		Tokens:                tokens,
		RequiresProfileUpdate: user.RequiresOnboarding(),
	}, nil
}

// Refresh validates a refresh token against the session store and the live
// user record, then reissues the access token from current state. The
// refresh token itself is not rotated; sessions end only by expiry or
// explicit invalidation.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		// Expired and malformed stay distinct: callers force re-login on
		// expiry but treat malformed as an invalid session.
		recordRefresh("rejected")
		return nil, err
	}

	// Always load the current record. Role, verification, and onboarding
	// changes propagate through here without a re-login.
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			recordRefresh("rejected")
			return nil, apperrors.SessionExpired()
		}
		recordRefresh("error")
		return nil, err
	}

	stored, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			recordRefresh("rejected")
			return nil, apperrors.SessionExpired()
		}
		// Store unreachable is recoverable, unlike an invalid session.
		recordRefresh("unavailable")
		return nil, err
	}

	// The stored value must equal the presented token verbatim. A mismatch
	// covers both real expiry and replay of a rotated token.
	if stored != refreshToken {
		recordRefresh("rejected")
		return nil, apperrors.SessionExpired()
	}

	accessToken, err := s.issuer.SignAccessToken(user)
	if err != nil {
		recordRefresh("error")
		return nil, err
	}

	recordRefresh("success")
	s.logger.DebugContext(ctx, "access token reissued",
		slog.String("user_id", user.ID),
		slog.String("session_id", claims.SessionID),
	)

	return &RefreshResult{User: user, AccessToken: accessToken}, nil
}

// Logout deletes the session entry for the presented refresh token. An
// invalid token is not an error: the caller's cookies get cleared either way.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}

	if err := s.sessions.Delete(ctx, claims.UserID, claims.SessionID); err != nil {
		return err
	}

	if err := s.producer.PublishSessionRevoked(ctx, claims.UserID, claims.SessionID, event.RevokeReasonLogout); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session_revoked event",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", claims.UserID),
		slog.String("session_id", claims.SessionID),
	)

	return nil
}

// LogoutAll deletes every session for the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}

	if err := s.producer.PublishSessionRevoked(ctx, userID, "", event.RevokeReasonLogoutAll); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session_revoked event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "all sessions revoked",
		slog.String("user_id", userID),
	)

	return nil
}

// GetUser returns the current user record.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, err
	}
	return user, nil
}

// issueAndStore mints a token pair and persists the session entry. The
// session write must succeed before any token leaves the server.
func (s *AuthService) issueAndStore(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	tokens, err := s.issuer.IssuePair(user)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	if err := s.sessions.Set(ctx, user.ID, tokens.SessionID, tokens.RefreshToken); err != nil {
		return nil, err
	}

	return tokens, nil
}
