package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_ACCESS_TOKEN_SECRET", "")
	t.Setenv("AUTH_REFRESH_TOKEN_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL())
	assert.NotEqual(t, cfg.Auth.AccessTokenSecret, cfg.Auth.RefreshTokenSecret)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	t.Setenv("AUTH_ACCESS_TOKEN_SECRET", "same")
	t.Setenv("AUTH_REFRESH_TOKEN_SECRET", "same")

	_, err := Load()
	assert.Error(t, err)
}

func TestAuthConfigValidate(t *testing.T) {
	t.Run("access ttl must be shorter", func(t *testing.T) {
		cfg := AuthConfig{
			AccessTokenSecret:     "a",
			RefreshTokenSecret:    "b",
			AccessTokenTTLMinutes: 120,
			RefreshTokenTTLHours:  1,
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("valid", func(t *testing.T) {
		cfg := AuthConfig{
			AccessTokenSecret:     "a",
			RefreshTokenSecret:    "b",
			AccessTokenTTLMinutes: 15,
			RefreshTokenTTLHours:  168,
		}
		assert.NoError(t, cfg.Validate())
	})
}
