package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"afenda/internal/app"
	"afenda/internal/captcha"
	"afenda/internal/platform/config"
	"afenda/internal/ratelimit/store/loginattempt"
	"afenda/internal/ratelimit/store/unlocktoken"
	"afenda/internal/signin/provider"
	"afenda/pkg/platform/audit"
	"afenda/pkg/platform/audit/publisher"
	"afenda/pkg/platform/audit/sink"
)

const (
	CorrectPassword = "correct-password"
	ValidCaptcha    = "valid-captcha"
	AdminToken      = "e2e-admin-token"
)

// TestContext is one in-process deployment: the gate in front of a fake
// identity provider and a fake hCaptcha endpoint, counting in miniredis.
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	ClientIP         string

	redis         *miniredis.Miniredis
	gateway       *httptest.Server
	idp           *httptest.Server
	captcha       *httptest.Server
	providerCalls *atomic.Int32
	closers       []func()
}

func NewTestContext() (*TestContext, error) {
	tc := &TestContext{
		providerCalls: new(atomic.Int32),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start miniredis: %w", err)
	}
	tc.redis = mr
	tc.closers = append(tc.closers, mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	tc.closers = append(tc.closers, func() { _ = client.Close() })

	tc.idp = httptest.NewServer(http.HandlerFunc(tc.identityProvider))
	tc.captcha = httptest.NewServer(http.HandlerFunc(siteVerify))
	tc.closers = append(tc.closers, tc.idp.Close, tc.captcha.Close)

	logger := slog.New(slog.DiscardHandler)
	target, _ := url.Parse(tc.idp.URL)
	upstream, err := provider.New(target, provider.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	pub := publisher.NewPublisher(sink.NewLog(logger))

	svc, err := app.New(app.Options{
		Logger:      logger,
		Environment: "e2e",
		Counters:    loginattempt.NewRedis(client),
		Tokens:      unlocktoken.NewRedis(client),
		Verifier: captcha.New(config.CaptchaConfig{
			Provider:  captcha.ProviderHCaptcha,
			SecretKey: "e2e-secret",
			VerifyURL: tc.captcha.URL,
			Timeout:   2 * time.Second,
		}, captcha.WithLogger(logger)),
		Provider:        upstream,
		Auditor:         audit.NewLogger(logger, pub),
		ProviderTimeout: 2 * time.Second,
		TrustedProxies:  []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")},
		AdminToken:      AdminToken,
		Registry:        prometheus.NewRegistry(),
	})
	if err != nil {
		tc.Close()
		return nil, err
	}
	tc.gateway = httptest.NewServer(svc.Handler)
	tc.closers = append(tc.closers, tc.gateway.Close)
	tc.BaseURL = tc.gateway.URL
	return tc, nil
}

// identityProvider accepts CorrectPassword for any email.
func (tc *TestContext) identityProvider(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	tc.providerCalls.Add(1)

	w.Header().Set("Content-Type", "application/json")
	if body.Password != CorrectPassword {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Invalid email or password"}`)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"user": map[string]string{"email": body.Email}})
}

// siteVerify accepts ValidCaptcha only.
func siteVerify(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	if r.PostForm.Get("response") == ValidCaptcha {
		_, _ = io.WriteString(w, `{"success":true}`)
		return
	}
	_, _ = io.WriteString(w, `{"success":false,"error-codes":["invalid-input-response"]}`)
}

func (tc *TestContext) Close() {
	for i := len(tc.closers) - 1; i >= 0; i-- {
		tc.closers[i]()
	}
	tc.closers = nil
}

// StopCounterStore makes every counter operation fail.
func (tc *TestContext) StopCounterStore() {
	tc.redis.Close()
}

func (tc *TestContext) ProviderCalls() int {
	return int(tc.providerCalls.Load())
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.POSTWithHeaders(path, body, nil)
}

// POSTWithHeaders sends body as JSON from the current client IP.
func (tc *TestContext) POSTWithHeaders(path string, body any, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	if tc.ClientIP != "" {
		req.Header.Set("X-Forwarded-For", tc.ClientIP)
	}
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// GetResponseField reads a top-level field, or a dotted path into nested
// objects, from the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	var cur any = data
	for part := range strings.SplitSeq(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return cur, nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.LastResponse == nil {
		return ""
	}
	return tc.LastResponse.Header.Get(name)
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) SetClientIP(ip string) {
	tc.ClientIP = ip
}
