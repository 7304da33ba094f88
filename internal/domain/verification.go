package domain

import "time"

// MaxVerificationAttempts caps how many wrong codes may be submitted against
// one verification record before it is permanently invalidated.
const MaxVerificationAttempts = 3

// VerificationTTL is how long a one-time code stays valid after issuance.
const VerificationTTL = 15 * time.Minute

// Verification is the at-most-one live email verification record per user.
type Verification struct {
	UserID    string    `json:"user_id"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the code is past its TTL at the given instant.
func (v *Verification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// Exhausted reports whether the attempt cap has been reached. An exhausted
// record rejects even a correct code; a new one must be requested.
func (v *Verification) Exhausted() bool {
	return v.Attempts >= MaxVerificationAttempts
}
