package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afenda/internal/ratelimit/models"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ScopePolicy{Window: 15 * time.Minute, MaxAttempts: 5, Lockout: 15 * time.Minute, CaptchaAfter: 3}, cfg.Email)
	assert.Equal(t, ScopePolicy{Window: time.Hour, MaxAttempts: 10, Lockout: time.Hour, CaptchaAfter: 3}, cfg.IP)
	assert.Equal(t, time.Hour, cfg.MaxWindow())

	p, ok := cfg.Policy(models.ScopeIP)
	require.True(t, ok)
	assert.Equal(t, 10, p.WindowPolicy().MaxAttempts)

	_, ok = cfg.Policy(models.Scope("device"))
	assert.False(t, ok)
}

func TestFromLookup(t *testing.T) {
	t.Run("overrides per scope", func(t *testing.T) {
		cfg, warnings, err := FromLookup(lookupFrom(map[string]string{
			"LOGIN_EMAIL_MAX_ATTEMPTS": "7",
			"LOGIN_IP_WINDOW":          "30m",
		}))
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, 7, cfg.Email.MaxAttempts)
		assert.Equal(t, 30*time.Minute, cfg.IP.Window)
	})

	t.Run("garbage falls back with warning", func(t *testing.T) {
		cfg, warnings, err := FromLookup(lookupFrom(map[string]string{
			"LOGIN_EMAIL_LOCKOUT": "forever",
		}))
		require.NoError(t, err)
		assert.Len(t, warnings, 1)
		assert.Equal(t, 15*time.Minute, cfg.Email.Lockout)
	})

	t.Run("captcha threshold above max fails startup", func(t *testing.T) {
		_, _, err := FromLookup(lookupFrom(map[string]string{
			"LOGIN_EMAIL_MAX_ATTEMPTS":  "2",
			"LOGIN_EMAIL_CAPTCHA_AFTER": "3",
		}))
		assert.ErrorContains(t, err, "email policy")
	})

	t.Run("zero max attempts fails startup", func(t *testing.T) {
		_, _, err := FromLookup(lookupFrom(map[string]string{"LOGIN_IP_MAX_ATTEMPTS": "0"}))
		assert.ErrorContains(t, err, "ip policy")
	})
}
