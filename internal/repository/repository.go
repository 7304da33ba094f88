package repository

import (
	"context"

	"github.com/harborline/storefront/internal/domain"
)

// UserRepository defines the persistence operations for user accounts.
type UserRepository interface {
	// Create inserts a new user. A duplicate email returns a conflict error.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update modifies an existing user. A duplicate email returns a
	// conflict error.
	Update(ctx context.Context, user *domain.User) error
}

// VerificationRepository defines the persistence operations for email
// verification records. At most one live record exists per user.
type VerificationRepository interface {
	// Upsert creates or replaces the user's verification record, resetting
	// the attempt counter.
	Upsert(ctx context.Context, v *domain.Verification) error

	// GetByUserID retrieves the live verification record for the user.
	GetByUserID(ctx context.Context, userID string) (*domain.Verification, error)

	// IncrementAttempts bumps the attempt counter after a wrong code.
	IncrementAttempts(ctx context.Context, userID string) error

	// ActiveCodeExists reports whether any live record holds the given code.
	// Used to retry generation on a collision.
	ActiveCodeExists(ctx context.Context, code string) (bool, error)

	// CompleteVerification marks the user verified and deletes the record in
	// a single transaction so a crash cannot leave one effect without the
	// other.
	CompleteVerification(ctx context.Context, userID string) error
}
