package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/storefront/pkg/database"
	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/domain"
)

func newUserRepo(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return NewUserRepository(mock), mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:            "user-001",
		Email:         "alice@example.com",
		PasswordHash:  "$2a$12$hash",
		FirstName:     "Alice",
		LastName:      "Doe",
		Role:          domain.RoleCustomer,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func userRows(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "password_hash", "first_name", "last_name", "role",
		"email_verified", "default_admin", "admin_onboarding_complete",
		"created_at", "updated_at",
	}).AddRow(
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.EmailVerified, u.DefaultAdmin, u.AdminOnboardingComplete,
		u.CreatedAt, u.UpdatedAt,
	)
}

func TestUserRepository_Create_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
			u.EmailVerified, u.DefaultAdmin, u.AdminOnboardingComplete,
			u.CreatedAt, u.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), u)
	require.NoError(t, err)
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
			u.EmailVerified, u.DefaultAdmin, u.AdminOnboardingComplete,
			u.CreatedAt, u.UpdatedAt,
		).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), u)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestUserRepository_GetByID_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	u := sampleUser()
	u.DefaultAdmin = true
	u.AdminOnboardingComplete = false

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs(u.ID).
		WillReturnRows(userRows(u))

	got, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.True(t, got.DefaultAdmin)
	assert.False(t, got.AdminOnboardingComplete)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_GetByEmail_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	u := sampleUser()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs(u.Email).
		WillReturnRows(userRows(u))

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUserRepository_Update_Success(t *testing.T) {
	repo, mock := newUserRepo(t)
	u := sampleUser()
	u.EmailVerified = true

	mock.ExpectExec("UPDATE users").
		WithArgs(
			u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
			u.EmailVerified, u.DefaultAdmin, u.AdminOnboardingComplete,
			pgxmock.AnyArg(), u.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), u)
	require.NoError(t, err)
}

func TestUserRepository_Update_NotFound(t *testing.T) {
	repo, mock := newUserRepo(t)
	u := sampleUser()

	mock.ExpectExec("UPDATE users").
		WithArgs(
			u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
			u.EmailVerified, u.DefaultAdmin, u.AdminOnboardingComplete,
			pgxmock.AnyArg(), u.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), u)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_Update_DuplicateEmail(t *testing.T) {
	repo, mock := newUserRepo(t)
	u := sampleUser()

	mock.ExpectExec("UPDATE users").
		WithArgs(
			u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
			u.EmailVerified, u.DefaultAdmin, u.AdminOnboardingComplete,
			pgxmock.AnyArg(), u.ID,
		).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Update(context.Background(), u)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("some other error")))
	assert.False(t, isUniqueViolation(nil))
}
