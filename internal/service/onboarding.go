package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/domain"
	"github.com/harborline/storefront/internal/event"
	"github.com/harborline/storefront/internal/repository"
)

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// OnboardingService implements the mandatory credential-change flow for the
// seeded default administrator.
type OnboardingService struct {
	userRepo repository.UserRepository
	sessions SessionStore
	verifier *VerificationService
	producer *event.Producer
	logger   *slog.Logger
}

// NewOnboardingService creates a new onboarding service.
func NewOnboardingService(
	userRepo repository.UserRepository,
	sessions SessionStore,
	verifier *VerificationService,
	producer *event.Producer,
	logger *slog.Logger,
) *OnboardingService {
	return &OnboardingService{
		userRepo: userRepo,
		sessions: sessions,
		verifier: verifier,
		producer: producer,
		logger:   logger,
	}
}

// UpdateProfileInput holds the parameters for the admin credential change.
type UpdateProfileInput struct {
	CurrentPassword string
	NewEmail        string
	NewPassword     string
}

// UpdateAdminProfile rotates the seeded administrator's credentials: the
// placeholder password must be presented, the email must actually change,
// and a new password is set. All existing sessions are revoked first so old
// tokens stop working; if the session store is down the operation fails
// before credentials change.
func (s *OnboardingService) UpdateAdminProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, err
	}

	if !user.DefaultAdmin {
		return nil, apperrors.Forbidden("profile update is only for the default administrator")
	}
	if user.AdminOnboardingComplete {
		return nil, apperrors.Conflict("onboarding", "user", userID)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		return nil, apperrors.Unauthorized("current password is incorrect")
	}

	if input.NewEmail == user.Email {
		return nil, apperrors.Validation("new email must differ from the placeholder email", map[string]string{
			"new_email": "must differ from the current email",
		})
	}
	if err := validatePassword(input.NewPassword); err != nil {
		return nil, err
	}
	if input.NewPassword == input.CurrentPassword {
		return nil, apperrors.Validation("new password must differ from the placeholder password", map[string]string{
			"new_password": "must differ from the current password",
		})
	}

	// Revoke every session before touching credentials. When this fails the
	// whole operation fails, so a completed onboarding always implies the old
	// tokens are dead.
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash new password: %w", err)
	}

	user.Email = input.NewEmail
	user.PasswordHash = string(hashedPassword)
	user.AdminOnboardingComplete = true
	// The new address has not been proven yet.
	user.EmailVerified = false

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	// Kick off verification of the new address. Non-fatal: resend exists.
	if _, err := s.verifier.CreateOrRefresh(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to create verification code after onboarding",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishAdminOnboarded(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish admin_onboarded event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.producer.PublishSessionRevoked(ctx, user.ID, "", event.RevokeReasonOnboarding); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session_revoked event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "default administrator onboarding completed",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// validatePassword checks that the password meets minimum complexity
// requirements.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.Validation(
			fmt.Sprintf("password must be at least %d characters", minPasswordLength),
			map[string]string{"password": "too short"},
		)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.Validation(
			"password must contain at least one uppercase letter, one lowercase letter, and one digit",
			map[string]string{"password": "missing required character classes"},
		)
	}

	return nil
}
