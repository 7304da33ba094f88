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

	"github.com/harborline/storefront/internal/domain"
	"github.com/harborline/storefront/internal/repository"
)

// EnsureDefaultAdmin creates the seeded default administrator at bootstrap if
// it does not exist. The account starts with placeholder credentials and must
// complete onboarding before any other administrative action. The placeholder
// email is marked verified since it cannot receive a code; the real address
// gets verified after onboarding.
func EnsureDefaultAdmin(ctx context.Context, userRepo repository.UserRepository, email, password string, logger *slog.Logger) error {
	_, err := userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("look up default admin: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := &domain.User{
		ID:                      uuid.New().String(),
		Email:                   email,
		PasswordHash:            string(hashedPassword),
		Role:                    domain.RoleAdmin,
		EmailVerified:           true,
		DefaultAdmin:            true,
		AdminOnboardingComplete: false,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := userRepo.Create(ctx, admin); err != nil {
		// Another instance may have seeded concurrently.
		if errors.Is(err, apperrors.ErrConflict) {
			return nil
		}
		return fmt.Errorf("create default admin: %w", err)
	}

	logger.Info("default administrator seeded",
		slog.String("user_id", admin.ID),
		slog.String("email", admin.Email),
	)

	return nil
}
