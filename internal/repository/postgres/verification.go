package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harborline/storefront/pkg/database"
	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/domain"
)

// VerificationRepository implements repository.VerificationRepository using
// PostgreSQL. The user_id primary key enforces at most one live record per
// user.
type VerificationRepository struct {
	db database.DBTX
}

// NewVerificationRepository creates a new PostgreSQL-backed verification repository.
func NewVerificationRepository(db database.DBTX) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Upsert creates or replaces the user's verification record. Replacing resets
// the attempt counter and invalidates the previous code.
func (r *VerificationRepository) Upsert(ctx context.Context, v *domain.Verification) error {
	query := `
		INSERT INTO email_verifications (user_id, otp_code, expires_at, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET otp_code = EXCLUDED.otp_code,
		    expires_at = EXCLUDED.expires_at,
		    attempts = 0,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		v.UserID,
		v.Code,
		v.ExpiresAt,
		v.Attempts,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert verification: %w", err)
	}

	return nil
}

// GetByUserID retrieves the live verification record for the user.
func (r *VerificationRepository) GetByUserID(ctx context.Context, userID string) (*domain.Verification, error) {
	query := `
		SELECT user_id, otp_code, expires_at, attempts, created_at, updated_at
		FROM email_verifications
		WHERE user_id = $1`

	var v domain.Verification
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&v.UserID,
		&v.Code,
		&v.ExpiresAt,
		&v.Attempts,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification: %w", err)
	}

	return &v, nil
}

// IncrementAttempts bumps the attempt counter after a wrong code.
func (r *VerificationRepository) IncrementAttempts(ctx context.Context, userID string) error {
	query := `
		UPDATE email_verifications
		SET attempts = attempts + 1, updated_at = $1
		WHERE user_id = $2`

	ct, err := r.db.Exec(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("increment verification attempts: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("verification", userID)
	}

	return nil
}

// ActiveCodeExists reports whether any unexpired record holds the given code.
func (r *VerificationRepository) ActiveCodeExists(ctx context.Context, code string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM email_verifications
			WHERE otp_code = $1 AND expires_at > NOW()
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active code: %w", err)
	}

	return exists, nil
}

// CompleteVerification marks the user verified and deletes the record in a
// single transaction. The two effects are indivisible: a crash cannot leave
// the user verified with a residual record or vice versa.
func (r *VerificationRepository) CompleteVerification(ctx context.Context, userID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin verification transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE users SET email_verified = true, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", userID)
	}

	ct, err = tx.Exec(ctx,
		`DELETE FROM email_verifications WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("delete verification: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("verification", userID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit verification transaction: %w", err)
	}

	return nil
}
