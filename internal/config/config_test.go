package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnvs is a helper that sets multiple env vars for the test's lifetime.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

const (
	strongAccessSecret  = "access-secret-that-is-long-enough-for-production-1"
	strongRefreshSecret = "refresh-secret-that-is-long-enough-for-production"
)

func TestLoad_Development_AcceptsDefaultSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, devAccessSecret, cfg.JWTAccessSecret)
	assert.Equal(t, devRefreshSecret, cfg.JWTRefreshSecret)
}

func TestLoad_Production_RejectsDefaultAccessSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":        "production",
		"JWT_REFRESH_SECRET": strongRefreshSecret,
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsDefaultRefreshSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":       "production",
		"JWT_ACCESS_SECRET": strongAccessSecret,
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_REFRESH_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsShortAccessSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":        "production",
		"JWT_ACCESS_SECRET":  "short-but-not-default",
		"JWT_REFRESH_SECRET": strongRefreshSecret,
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_SECRET must be at least 32 characters")
}

func TestLoad_Production_RejectsIdenticalSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":        "production",
		"JWT_ACCESS_SECRET":  strongAccessSecret,
		"JWT_REFRESH_SECRET": strongAccessSecret,
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_Production_AcceptsStrongSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":        "production",
		"JWT_ACCESS_SECRET":  strongAccessSecret,
		"JWT_REFRESH_SECRET": strongRefreshSecret,
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, strongAccessSecret, cfg.JWTAccessSecret)
	assert.Equal(t, strongRefreshSecret, cfg.JWTRefreshSecret)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_TokenLifetimeDefaults(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshExpiry)
}

func TestLoad_RejectsAccessExpiryLongerThanRefresh(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":              "development",
		"JWT_ACCESS_TOKEN_EXPIRY":  "200h",
		"JWT_REFRESH_TOKEN_EXPIRY": "168h",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token expiry must be shorter")
}

func TestLoad_SeededAdminDefaults(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", cfg.DefaultAdminEmail)
	assert.NotEmpty(t, cfg.DefaultAdminPassword)
}
