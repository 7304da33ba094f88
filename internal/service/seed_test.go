package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/harborline/storefront/pkg/errors"

	"github.com/harborline/storefront/internal/domain"
)

func TestEnsureDefaultAdmin_CreatesSeededAccount(t *testing.T) {
	userRepo := &mockUserRepository{}
	defer userRepo.AssertExpectations(t)

	userRepo.On("GetByEmail", mock.Anything, "admin@example.com").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleAdmin &&
			u.DefaultAdmin &&
			!u.AdminOnboardingComplete &&
			u.EmailVerified &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Admin1234")) == nil
	})).Return(nil)

	err := EnsureDefaultAdmin(context.Background(), userRepo, "admin@example.com", "Admin1234", newTestLogger())

	require.NoError(t, err)
}

func TestEnsureDefaultAdmin_ExistingAccountIsLeftAlone(t *testing.T) {
	userRepo := &mockUserRepository{}
	defer userRepo.AssertExpectations(t)

	userRepo.On("GetByEmail", mock.Anything, "admin@example.com").
		Return(&domain.User{ID: "admin-001", Email: "admin@example.com"}, nil)

	err := EnsureDefaultAdmin(context.Background(), userRepo, "admin@example.com", "Admin1234", newTestLogger())

	require.NoError(t, err)
	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEnsureDefaultAdmin_ConcurrentSeedIsNotAnError(t *testing.T) {
	userRepo := &mockUserRepository{}
	defer userRepo.AssertExpectations(t)

	userRepo.On("GetByEmail", mock.Anything, "admin@example.com").Return(nil, apperrors.ErrNotFound)
	userRepo.On("Create", mock.Anything, mock.Anything).
		Return(apperrors.Conflict("user", "email", "admin@example.com"))

	err := EnsureDefaultAdmin(context.Background(), userRepo, "admin@example.com", "Admin1234", newTestLogger())

	require.NoError(t, err)
}

func TestEnsureDefaultAdmin_LookupFailurePropagates(t *testing.T) {
	userRepo := &mockUserRepository{}
	defer userRepo.AssertExpectations(t)

	dbErr := errors.New("connection reset")
	userRepo.On("GetByEmail", mock.Anything, "admin@example.com").Return(nil, dbErr)

	err := EnsureDefaultAdmin(context.Background(), userRepo, "admin@example.com", "Admin1234", newTestLogger())

	assert.ErrorIs(t, err, dbErr)
}
