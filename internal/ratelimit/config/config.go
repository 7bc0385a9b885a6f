package config

import (
	"fmt"
	"os"
	"time"

	"afenda/internal/platform/config"
	"afenda/internal/ratelimit/models"
)

// ScopePolicy holds the thresholds for one scope.
type ScopePolicy struct {
	Window       time.Duration
	MaxAttempts  int
	Lockout      time.Duration
	CaptchaAfter int
}

// WindowPolicy is the subset the counter store evaluates.
func (p ScopePolicy) WindowPolicy() models.WindowPolicy {
	return models.WindowPolicy{Window: p.Window, MaxAttempts: p.MaxAttempts, Lockout: p.Lockout}
}

func (p ScopePolicy) Validate() error {
	switch {
	case p.Window <= 0:
		return fmt.Errorf("window must be positive")
	case p.Lockout <= 0:
		return fmt.Errorf("lockout must be positive")
	case p.MaxAttempts <= 0:
		return fmt.Errorf("max attempts must be positive")
	case p.CaptchaAfter < 0:
		return fmt.Errorf("captcha threshold must not be negative")
	case p.CaptchaAfter > p.MaxAttempts:
		return fmt.Errorf("captcha threshold %d exceeds max attempts %d", p.CaptchaAfter, p.MaxAttempts)
	}
	return nil
}

// Config holds login protection configuration.
type Config struct {
	Email ScopePolicy
	IP    ScopePolicy

	// CleanupInterval is how often idle counters and expired unlock tokens
	// are pruned.
	CleanupInterval time.Duration

	// UnlockTokenTTL bounds how long an emailed unlock link stays valid.
	UnlockTokenTTL time.Duration
}

// DefaultConfig returns the stock policy: 5 failures per 15 minutes per
// email and 10 per hour per IP, CAPTCHA after 3 of either.
func DefaultConfig() *Config {
	return &Config{
		Email: ScopePolicy{
			Window:       15 * time.Minute,
			MaxAttempts:  5,
			Lockout:      15 * time.Minute,
			CaptchaAfter: 3,
		},
		IP: ScopePolicy{
			Window:       60 * time.Minute,
			MaxAttempts:  10,
			Lockout:      60 * time.Minute,
			CaptchaAfter: 3,
		},
		CleanupInterval: 15 * time.Minute,
		UnlockTokenTTL:  time.Hour,
	}
}

// Policy returns the policy for scope.
func (c *Config) Policy(scope models.Scope) (ScopePolicy, bool) {
	switch scope {
	case models.ScopeEmail:
		return c.Email, true
	case models.ScopeIP:
		return c.IP, true
	}
	return ScopePolicy{}, false
}

// MaxWindow is the longest window across scopes. Counters idle for longer
// than this cannot influence any decision.
func (c *Config) MaxWindow() time.Duration {
	return max(c.Email.Window, c.IP.Window)
}

func (c *Config) Validate() error {
	if err := c.Email.Validate(); err != nil {
		return fmt.Errorf("email policy: %w", err)
	}
	if err := c.IP.Validate(); err != nil {
		return fmt.Errorf("ip policy: %w", err)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}
	if c.UnlockTokenTTL <= 0 {
		return fmt.Errorf("unlock token ttl must be positive")
	}
	return nil
}

// FromEnv overlays LOGIN_* variables on the defaults.
func FromEnv() (*Config, []string, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup is FromEnv with an injectable lookup. Unparseable values fall
// back to defaults and are returned as warnings; a policy that parses but is
// inconsistent is an error.
func FromLookup(lookup func(string) (string, bool)) (*Config, []string, error) {
	env := config.NewEnv(lookup)
	def := DefaultConfig()

	cfg := &Config{
		Email: ScopePolicy{
			Window:       env.Duration("LOGIN_EMAIL_WINDOW", def.Email.Window),
			MaxAttempts:  env.Int("LOGIN_EMAIL_MAX_ATTEMPTS", def.Email.MaxAttempts),
			Lockout:      env.Duration("LOGIN_EMAIL_LOCKOUT", def.Email.Lockout),
			CaptchaAfter: env.Int("LOGIN_EMAIL_CAPTCHA_AFTER", def.Email.CaptchaAfter),
		},
		IP: ScopePolicy{
			Window:       env.Duration("LOGIN_IP_WINDOW", def.IP.Window),
			MaxAttempts:  env.Int("LOGIN_IP_MAX_ATTEMPTS", def.IP.MaxAttempts),
			Lockout:      env.Duration("LOGIN_IP_LOCKOUT", def.IP.Lockout),
			CaptchaAfter: env.Int("LOGIN_IP_CAPTCHA_AFTER", def.IP.CaptchaAfter),
		},
		CleanupInterval: env.Duration("LOGIN_CLEANUP_INTERVAL", def.CleanupInterval),
		UnlockTokenTTL:  env.Duration("LOGIN_UNLOCK_TOKEN_TTL", def.UnlockTokenTTL),
	}
	if err := cfg.Validate(); err != nil {
		return nil, env.Warnings(), err
	}
	return cfg, env.Warnings(), nil
}
