// Package captcha verifies challenge tokens with an external verification
// service.
package captcha

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"afenda/internal/platform/config"
)

//go:generate mockgen -source=captcha.go -destination=mocks/mocks.go -package=mocks

const (
	ProviderHCaptcha = "hcaptcha"

	ErrNotConfigured       = "CAPTCHA provider is not configured"
	ErrUnsupportedProvider = "Unsupported CAPTCHA provider"
	ErrVerificationFailed  = "CAPTCHA verification failed"
)

// Result is the outcome of one verification. Error is a user-safe message.
type Result struct {
	Success bool
	Error   string
}

// Verifier checks a challenge token. Failures are reported in Result; the
// error return is reserved for cancellation of ctx.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*Result, error)
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*HCaptchaClient)

func WithHTTPClient(client HTTPDoer) Option {
	return func(c *HCaptchaClient) {
		if client != nil {
			c.client = client
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *HCaptchaClient) {
		c.logger = logger
	}
}

// HCaptchaClient posts tokens to the hCaptcha siteverify endpoint. A client
// without a secret fails every verification.
type HCaptchaClient struct {
	provider  string
	secret    string
	verifyURL string
	timeout   time.Duration
	client    HTTPDoer
	logger    *slog.Logger
}

func New(cfg config.CaptchaConfig, opts ...Option) *HCaptchaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = config.DefaultCaptchaVerifyURL
	}
	c := &HCaptchaClient{
		provider:  strings.ToLower(strings.TrimSpace(cfg.Provider)),
		secret:    cfg.SecretKey,
		verifyURL: verifyURL,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether verifications can ever succeed.
func (c *HCaptchaClient) Configured() bool {
	return c.provider == ProviderHCaptcha && c.secret != ""
}

type siteVerifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (c *HCaptchaClient) Verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	if c.provider == "" || c.secret == "" {
		return &Result{Error: ErrNotConfigured}, nil
	}
	if c.provider != ProviderHCaptcha {
		return &Result{Error: ErrUnsupportedProvider}, nil
	}

	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.WarnContext(ctx, "captcha request could not be built", "error", err)
		return &Result{Error: ErrVerificationFailed}, nil
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.WarnContext(ctx, "captcha verification request failed", "error", err)
		return &Result{Error: ErrVerificationFailed}, nil
	}
	defer resp.Body.Close()

	var body siteVerifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		c.logger.WarnContext(ctx, "captcha verification response unreadable",
			"status", resp.StatusCode,
			"error", err,
		)
		return &Result{Error: ErrVerificationFailed}, nil
	}
	if !body.Success {
		c.logger.DebugContext(ctx, "captcha token rejected", "error_codes", body.ErrorCodes)
		return &Result{Error: ErrVerificationFailed}, nil
	}
	return &Result{Success: true}, nil
}
