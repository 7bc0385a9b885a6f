package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Counter store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultCaptchaVerifyURL is the hCaptcha siteverify endpoint.
const DefaultCaptchaVerifyURL = "https://hcaptcha.com/siteverify"

// Server captures process level configuration. Login protection policy lives
// in internal/ratelimit/config.
type Server struct {
	Addr            string
	Environment     string
	ShutdownTimeout time.Duration

	DatabaseURL    string
	Redis          RedisConfig
	CounterBackend string

	IdentityProviderURL *url.URL
	ProviderTimeout     time.Duration
	SignInPathSuffix    string
	TrustedProxies      []string

	Captcha CaptchaConfig

	KafkaBrokers string
	AuditTopic   string

	AdminAPIToken string

	// Warnings lists values that could not be parsed and fell back to their
	// defaults. main logs them once the logger exists.
	Warnings []string
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CaptchaConfig configures the verification service client.
type CaptchaConfig struct {
	Provider  string
	SecretKey string
	VerifyURL string
	Timeout   time.Duration
}

// IsProduction reports whether dev conveniences must be disabled.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// LoadDotEnv loads a .env file into the process environment when present.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup is FromEnv with an injectable lookup, for tests.
func FromLookup(lookup func(string) (string, bool)) (Server, error) {
	env := NewEnv(lookup)

	cfg := Server{
		Addr:            env.String("AFENDA_ADDR", ":8080"),
		Environment:     env.String("ENVIRONMENT", "development"),
		ShutdownTimeout: env.Duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		DatabaseURL:     env.String("DATABASE_URL", ""),
		Redis: RedisConfig{
			URL:          env.String("REDIS_URL", ""),
			PoolSize:     env.Int("REDIS_POOL_SIZE", 20),
			MinIdleConns: env.Int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  env.Duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  env.Duration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: env.Duration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		CounterBackend:   strings.ToLower(env.String("LOGIN_COUNTER_BACKEND", BackendPostgres)),
		ProviderTimeout:  env.Duration("SIGNIN_PROVIDER_TIMEOUT", 10*time.Second),
		SignInPathSuffix: env.String("SIGNIN_PATH_SUFFIX", "/sign-in"),
		TrustedProxies:   env.List("TRUSTED_PROXIES"),
		Captcha: CaptchaConfig{
			Provider:  strings.ToLower(env.String("CAPTCHA_PROVIDER", "hcaptcha")),
			SecretKey: env.String("CAPTCHA_SECRET_KEY", ""),
			VerifyURL: env.String("CAPTCHA_VERIFY_URL", DefaultCaptchaVerifyURL),
			Timeout:   env.Duration("CAPTCHA_TIMEOUT", 5*time.Second),
		},
		KafkaBrokers:  env.String("KAFKA_BROKERS", ""),
		AuditTopic:    env.String("AUDIT_TOPIC", "afenda.audit"),
		AdminAPIToken: env.String("ADMIN_API_TOKEN", ""),
	}
	cfg.Warnings = env.Warnings()

	switch cfg.CounterBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required when LOGIN_COUNTER_BACKEND=postgres")
		}
	case BackendRedis:
		if cfg.Redis.URL == "" {
			return cfg, errors.New("REDIS_URL is required when LOGIN_COUNTER_BACKEND=redis")
		}
	default:
		return cfg, fmt.Errorf("LOGIN_COUNTER_BACKEND must be %q or %q, got %q", BackendPostgres, BackendRedis, cfg.CounterBackend)
	}

	rawProvider := env.String("IDENTITY_PROVIDER_URL", "")
	if rawProvider == "" {
		return cfg, errors.New("IDENTITY_PROVIDER_URL is required")
	}
	providerURL, err := url.Parse(rawProvider)
	if err != nil || providerURL.Scheme == "" || providerURL.Host == "" {
		return cfg, fmt.Errorf("IDENTITY_PROVIDER_URL is not an absolute URL: %q", rawProvider)
	}
	cfg.IdentityProviderURL = providerURL

	if !strings.HasPrefix(cfg.SignInPathSuffix, "/") {
		cfg.SignInPathSuffix = "/" + cfg.SignInPathSuffix
	}
	return cfg, nil
}
