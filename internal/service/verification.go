package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/domain"
	"github.com/harborline/storefront/internal/event"
	"github.com/harborline/storefront/internal/repository"
)

// maxGenerationRetries caps how often code generation retries when the drawn
// code collides with another live one.
const maxGenerationRetries = 10

// invalidCode is the 422 error for a wrong but well-formed code.
func invalidCode() *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "INVALID_CODE",
		Message: "verification code is incorrect",
		Status:  http.StatusUnprocessableEntity,
		Err:     apperrors.ErrValidation,
	}
}

// expiredCode is the 422 error for a code past its TTL.
func expiredCode() *apperrors.AppError {
	return &apperrors.AppError{
		Code:    "CODE_EXPIRED",
		Message: "verification code has expired, request a new one",
		Status:  http.StatusUnprocessableEntity,
		Err:     apperrors.ErrValidation,
	}
}

// VerificationService implements one-time-code email verification with
// attempt limiting.
type VerificationService struct {
	verificationRepo repository.VerificationRepository
	userRepo         repository.UserRepository
	producer         *event.Producer
	logger           *slog.Logger
}

// NewVerificationService creates a new verification service.
func NewVerificationService(
	verificationRepo repository.VerificationRepository,
	userRepo repository.UserRepository,
	producer *event.Producer,
	logger *slog.Logger,
) *VerificationService {
	return &VerificationService{
		verificationRepo: verificationRepo,
		userRepo:         userRepo,
		producer:         producer,
		logger:           logger,
	}
}

// CreateOrRefresh generates a fresh 6-digit code for the user, replacing any
// existing record and resetting its attempt counter. Generation retries on
// collision with another live code, capped at 10 attempts.
func (s *VerificationService) CreateOrRefresh(ctx context.Context, userID string) (*domain.Verification, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, err
	}

	if user.EmailVerified {
		return nil, apperrors.Conflict("verification", "user", userID)
	}

	code, err := s.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	verification := &domain.Verification{
		UserID:    userID,
		Code:      code,
		ExpiresAt: now.Add(domain.VerificationTTL),
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.verificationRepo.Upsert(ctx, verification); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "verification code issued",
		slog.String("user_id", userID),
		slog.Time("expires_at", verification.ExpiresAt),
	)

	return verification, nil
}

// Check validates a submitted code. Failure order: no record, expired,
// attempts exhausted, wrong code. An exhausted record rejects even the
// correct code. A wrong code increments the attempt counter before the error
// is returned. On success the user is marked verified and the record deleted
// atomically.
func (s *VerificationService) Check(ctx context.Context, userID, submittedCode string) (*domain.User, error) {
	verification, err := s.verificationRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("verification", userID)
		}
		return nil, err
	}

	now := time.Now().UTC()
	if verification.Expired(now) {
		recordVerification("expired")
		return nil, expiredCode()
	}

	if verification.Exhausted() {
		recordVerification("exhausted")
		return nil, apperrors.AttemptsExceeded()
	}

	if verification.Code != submittedCode {
		// The attempt must be counted before the rejection; an uncounted
		// wrong guess would stretch the attempt cap.
		if err := s.verificationRepo.IncrementAttempts(ctx, userID); err != nil {
			return nil, err
		}
		recordVerification("invalid")
		return nil, invalidCode()
	}

	if err := s.verificationRepo.CompleteVerification(ctx, userID); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishUserVerified(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user_verified event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	recordVerification("success")
	s.logger.InfoContext(ctx, "email verified",
		slog.String("user_id", userID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// generateCode draws a random 6-digit code, retrying while the drawn code is
// already held by another live record.
func (s *VerificationService) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxGenerationRetries; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(1000000))
		if err != nil {
			return "", fmt.Errorf("generate verification code: %w", err)
		}
		code := fmt.Sprintf("%06d", n.Int64())

		exists, err := s.verificationRepo.ActiveCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("generate verification code: %d consecutive collisions", maxGenerationRetries)
}
