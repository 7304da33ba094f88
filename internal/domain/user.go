package domain

import (
	"time"
)

// User represents an account in the persistent store. Only the fields that
// feed authorization decisions are modeled here.
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	PasswordHash  string `json:"-"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`

	// DefaultAdmin marks the account seeded at bootstrap. It never changes
	// after creation; onboarding completion is tracked separately.
	DefaultAdmin bool `json:"default_admin"`

	// AdminOnboardingComplete is the single source of truth for whether the
	// seeded administrator has rotated its placeholder credentials.
	AdminOnboardingComplete bool `json:"admin_onboarding_complete"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequiresOnboarding reports whether this account must complete the
// credential-change flow before any other action is permitted.
func (u *User) RequiresOnboarding() bool {
	return u.DefaultAdmin && !u.AdminOnboardingComplete
}

// TokenPair holds an issued access and refresh token together with the
// session ID embedded in the refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"-"`
}
