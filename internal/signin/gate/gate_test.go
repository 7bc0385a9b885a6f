package gate

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"afenda/internal/captcha"
	captchamocks "afenda/internal/captcha/mocks"
	"afenda/internal/ratelimit/config"
	"afenda/internal/ratelimit/models"
	"afenda/internal/ratelimit/service/eligibility"
	"afenda/internal/ratelimit/service/limiter"
	"afenda/internal/ratelimit/store/loginattempt"
	"afenda/internal/signin/gate/mocks"
	"afenda/internal/signin/provider"
	"afenda/pkg/platform/audit"
	"afenda/pkg/platform/middleware/requesttime"
	"afenda/pkg/requestcontext"
)

const (
	clientIP   = "198.51.100.23"
	signInPath = "/api/auth/sign-in/email"
	password   = "correct horse"
)

// GateSuite drives the gate against a real counter stack and a fake identity
// provider.
//
// Justification: the gate's contract is about what reaches the provider and
// what is counted, which only shows up with real counters behind it.
type GateSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *loginattempt.RedisStore
	verifier  *captchamocks.MockVerifier
	auditor   *mocks.MockAuditLogger
	metrics   *Metrics
	gate      *Gate
	upstream  *httptest.Server
	upstreamF http.HandlerFunc
	hits      atomic.Int32
	release   chan struct{}
	now       time.Time
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.now = time.Date(2026, 7, 14, 9, 0, 0, 0, time.UTC)
	s.hits.Store(0)

	mr := miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.store = loginattempt.NewRedis(client)

	cfg := config.DefaultConfig()
	emailLimiter, err := limiter.New(s.store, models.ScopeEmail, cfg.Email)
	s.Require().NoError(err)
	ipLimiter, err := limiter.New(s.store, models.ScopeIP, cfg.IP)
	s.Require().NoError(err)
	checker, err := eligibility.New(emailLimiter, ipLimiter, eligibility.WithLogger(slog.New(slog.DiscardHandler)))
	s.Require().NoError(err)

	s.upstreamF = s.credentialCheck
	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.upstreamF(w, r)
	}))
	s.T().Cleanup(s.upstream.Close)
	// Runs before upstream.Close so a stalled handler cannot block shutdown.
	s.release = make(chan struct{})
	s.T().Cleanup(func() {
		close(s.release)
		s.upstream.CloseClientConnections()
	})
	target, _ := url.Parse(s.upstream.URL)
	upstream, err := provider.New(target)
	s.Require().NoError(err)

	s.verifier = captchamocks.NewMockVerifier(s.ctrl)
	s.auditor = mocks.NewMockAuditLogger(s.ctrl)
	s.metrics = NewMetricsWith(prometheus.NewRegistry())
	s.gate, err = New(checker, s.verifier, upstream,
		WithAuditor(s.auditor),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithProviderTimeout(200*time.Millisecond),
	)
	s.Require().NoError(err)
}

// stall consumes the request and then holds the reply until the client goes
// away or the test ends.
func (s *GateSuite) stall(entered chan<- struct{}) http.HandlerFunc {
	return func(_ http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if entered != nil {
			close(entered)
		}
		select {
		case <-r.Context().Done():
		case <-s.release:
		}
	}
}

func (s *GateSuite) credentialCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	w.Header().Set("Content-Type", "application/json")
	if body.Password == password {
		w.Header().Set("Set-Cookie", "session=ok")
		_, _ = io.WriteString(w, `{"user":{"id":"u1"}}`)
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = io.WriteString(w, `{"message":"Invalid email or password"}`)
}

func (s *GateSuite) request(ctx context.Context, email, pass, token string) *http.Request {
	fields := map[string]string{"email": email, "password": pass}
	if token != "" {
		fields["captchaToken"] = token
	}
	body, _ := json.Marshal(fields)
	req := httptest.NewRequest(http.MethodPost, signInPath, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	ctx = requesttime.WithTime(ctx, s.now)
	ctx = requestcontext.WithClientMetadata(ctx, clientIP, "test-agent")
	return req.WithContext(ctx)
}

func (s *GateSuite) signIn(email, pass, token string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.gate.ServeHTTP(rec, s.request(context.Background(), email, pass, token))
	return rec
}

func (s *GateSuite) attempts(identifier string) int {
	counter, err := s.store.Get(context.Background(), identifier)
	s.Require().NoError(err)
	if counter == nil {
		return 0
	}
	return counter.Attempts
}

func (s *GateSuite) decisions(state State) float64 {
	return testutil.ToFloat64(s.metrics.Decisions.WithLabelValues(string(state)))
}

func (s *GateSuite) TestFailureIsForwardedVerbatimAndCounted() {
	rec := s.signIn("alice@example.com", "wrong", "")

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.JSONEq(`{"message":"Invalid email or password"}`, rec.Body.String())
	s.Equal(1, s.attempts("email:alice@example.com"))
	s.Equal(1, s.attempts("ip:"+clientIP))
	s.Equal(float64(1), s.decisions(StateFailure))
}

func (s *GateSuite) TestSuccessResetsBothScopes() {
	s.signIn("alice@example.com", "wrong", "")
	s.signIn("alice@example.com", "wrong", "")

	rec := s.signIn("alice@example.com", password, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("session=ok", rec.Header().Get("Set-Cookie"))
	s.Zero(s.attempts("email:alice@example.com"))
	s.Zero(s.attempts("ip:" + clientIP))
	s.Equal(float64(1), s.decisions(StateSuccess))
}

// Scenario A over HTTP: captcha from the third failure, lock on the fifth.
func (s *GateSuite) TestLockoutFlow() {
	s.verifier.EXPECT().Verify(gomock.Any(), "solved", clientIP).Return(&captcha.Result{Success: true}, nil).Times(2)
	s.auditor.EXPECT().Record(gomock.Any(), audit.EventAccountLocked, gomock.Any()).Do(
		func(_ context.Context, _ audit.AuditEvent, event audit.Event) {
			s.Equal("email", event.Scope)
			s.Equal("a***@example.com", event.Email)
			s.Require().NotNil(event.LockedUntil)
			s.True(s.now.Add(15 * time.Minute).Equal(*event.LockedUntil))
		})

	for range 3 {
		s.Equal(http.StatusUnauthorized, s.signIn("alice@example.com", "wrong", "").Code)
	}

	rec := s.signIn("alice@example.com", "wrong", "")
	s.Equal(http.StatusForbidden, rec.Code)
	s.JSONEq(`{"error":"CAPTCHA required","code":"captcha_required","requiresCaptcha":true}`, rec.Body.String())

	s.Equal(http.StatusUnauthorized, s.signIn("alice@example.com", "wrong", "solved").Code)
	s.Equal(http.StatusUnauthorized, s.signIn("alice@example.com", "wrong", "solved").Code)
	s.Equal(5, s.attempts("email:alice@example.com"))

	hitsBefore := s.hits.Load()
	rec = s.signIn("alice@example.com", password, "solved")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("900", rec.Header().Get("Retry-After"))
	var body challengeResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("too_many_attempts", body.Code)
	s.True(body.RequiresCaptcha)
	s.Require().NotNil(body.RetryAfterSeconds)
	s.Equal(900, *body.RetryAfterSeconds)
	s.Equal(hitsBefore, s.hits.Load(), "blocked attempt must not reach the provider")
}

// Scenario C: rejected CAPTCHA tokens are not login failures.
func (s *GateSuite) TestFailedCaptchaIsNotCounted() {
	for range 3 {
		s.signIn("bob@example.com", "wrong", "")
	}
	s.verifier.EXPECT().Verify(gomock.Any(), "bogus", clientIP).
		Return(&captcha.Result{Error: captcha.ErrVerificationFailed}, nil).Times(3)

	hitsBefore := s.hits.Load()
	for range 3 {
		rec := s.signIn("bob@example.com", "wrong", "bogus")
		s.Equal(http.StatusForbidden, rec.Code)
		s.Contains(rec.Body.String(), `"code":"captcha_failed"`)
	}

	s.Equal(3, s.attempts("email:bob@example.com"))
	s.Equal(3, s.attempts("ip:"+clientIP))
	s.Equal(hitsBefore, s.hits.Load())
	s.Equal(float64(3), s.decisions(StateCaptchaFailed))
}

func (s *GateSuite) TestCaptchaTokenFromHeader() {
	for range 3 {
		s.signIn("carol@example.com", "wrong", "")
	}
	s.verifier.EXPECT().Verify(gomock.Any(), "from-header", clientIP).Return(&captcha.Result{Success: true}, nil)

	req := s.request(context.Background(), "carol@example.com", password, "")
	req.Header.Set(HeaderCaptchaToken, "from-header")
	rec := httptest.NewRecorder()
	s.gate.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *GateSuite) TestIPLockoutIsAudited() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(&captcha.Result{Success: true}, nil).AnyTimes()
	s.auditor.EXPECT().Record(gomock.Any(), audit.EventIPLocked, gomock.Any())

	for i := range 10 {
		email := string(rune('a'+i)) + "@example.com"
		s.signIn(email, "wrong", "solved")
	}
	rec := s.signIn("zed@example.com", password, "solved")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("3600", rec.Header().Get("Retry-After"))
}

func (s *GateSuite) TestAnonymousAttemptsShareUnknownIPBucket() {
	s.verifier.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(&captcha.Result{Success: true}, nil).AnyTimes()
	s.auditor.EXPECT().Record(gomock.Any(), audit.EventIPLocked, gomock.Any()).Do(
		func(_ context.Context, _ audit.AuditEvent, event audit.Event) {
			s.Equal("ip", event.Scope)
		})

	anonymous := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, signInPath, strings.NewReader(`{"password":"wrong","captchaToken":"solved"}`))
		req.Header.Set("Content-Type", "application/json")
		ctx := requesttime.WithTime(context.Background(), s.now)
		ctx = requestcontext.WithClientMetadata(ctx, "unknown", "test-agent")
		rec := httptest.NewRecorder()
		s.gate.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	for range 10 {
		s.Equal(http.StatusUnauthorized, anonymous().Code)
	}
	s.Equal(10, s.attempts("ip:unknown"))

	rec := anonymous()
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("3600", rec.Header().Get("Retry-After"))
}

func (s *GateSuite) TestProviderTimeoutCountsAsFailure() {
	s.upstreamF = s.stall(nil)

	rec := s.signIn("dave@example.com", "wrong", "")
	s.Equal(http.StatusGatewayTimeout, rec.Code)
	s.Equal(1, s.attempts("email:dave@example.com"))
	s.Equal(float64(1), s.decisions(StateTimeout))
}

func (s *GateSuite) TestProviderUnreachableIsNotCounted() {
	target, _ := url.Parse("http://127.0.0.1:1")
	down, err := provider.New(target)
	s.Require().NoError(err)
	s.gate.provider = down

	rec := s.signIn("erin@example.com", "wrong", "")
	s.Equal(http.StatusBadGateway, rec.Code)
	s.Zero(s.attempts("email:erin@example.com"))
	s.Equal(float64(1), s.decisions(StateUpstreamError))
}

func (s *GateSuite) TestClientCancelDuringDelegationIsNotCounted() {
	entered := make(chan struct{})
	s.upstreamF = s.stall(entered)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()
	rec := httptest.NewRecorder()
	s.gate.ServeHTTP(rec, s.request(ctx, "frank@example.com", "wrong", ""))

	s.Zero(s.attempts("email:frank@example.com"))
	s.Equal(float64(1), s.decisions(StateCancelled))
}

func (s *GateSuite) TestNonSignInRequestsBypass() {
	s.upstreamF = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-up/email", strings.NewReader(`{"email":"x@example.com"}`))
	rec := httptest.NewRecorder()
	s.gate.ServeHTTP(rec, req)

	s.Equal(http.StatusCreated, rec.Code)
	s.Zero(s.attempts("email:x@example.com"))

	get := httptest.NewRequest(http.MethodGet, "/api/auth/sign-in/social", nil)
	s.False(s.gate.IsSignIn(get))
}

func (s *GateSuite) TestBodyReachesProviderIntact() {
	var received string
	s.upstreamF = func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received = string(b)
		w.WriteHeader(http.StatusUnauthorized)
	}
	req := httptest.NewRequest(http.MethodPost, signInPath, strings.NewReader("email=gina%40example.com&password=pw"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(requestcontext.WithClientMetadata(requesttime.WithTime(req.Context(), s.now), clientIP, ""))
	s.gate.ServeHTTP(httptest.NewRecorder(), req)

	s.Equal("email=gina%40example.com&password=pw", received)
	s.Equal(1, s.attempts("email:gina@example.com"))
}

// CheckerSuite isolates the gate from the counters.
type CheckerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	checker  *mocks.MockChecker
	verifier *captchamocks.MockVerifier
	upstream *httptest.Server
	gate     *Gate
}

func TestCheckerSuite(t *testing.T) {
	suite.Run(t, new(CheckerSuite))
}

func (s *CheckerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.checker = mocks.NewMockChecker(s.ctrl)
	s.verifier = captchamocks.NewMockVerifier(s.ctrl)
	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	s.T().Cleanup(s.upstream.Close)
	target, _ := url.Parse(s.upstream.URL)
	upstream, err := provider.New(target)
	s.Require().NoError(err)
	s.gate, err = New(s.checker, s.verifier, upstream, WithLogger(slog.New(slog.DiscardHandler)))
	s.Require().NoError(err)
}

func (s *CheckerSuite) post(ctx context.Context) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, signInPath, strings.NewReader(`{"email":"hana@example.com"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.gate.ServeHTTP(rec, req)
	return rec
}

// Scenario D: a degraded (fail-open) check proceeds to the provider.
func (s *CheckerSuite) TestDegradedEligibilityProceeds() {
	s.checker.EXPECT().CheckLoginEligibility(gomock.Any(), eligibility.Subject{Email: "hana@example.com"}).
		Return(&models.Eligibility{Allowed: true, Degraded: true}, nil)
	s.checker.EXPECT().RecordOutcome(gomock.Any(), gomock.Any(), true).Return(&models.OutcomeResult{}, nil)

	rec := s.post(context.Background())
	s.Equal(http.StatusOK, rec.Code)
}

func (s *CheckerSuite) TestCancelledBeforeDelegationRecordsNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	s.checker.EXPECT().CheckLoginEligibility(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, eligibility.Subject) (*models.Eligibility, error) {
			cancel()
			return &models.Eligibility{Allowed: true}, nil
		})

	s.post(ctx)
}

func (s *CheckerSuite) TestEligibilityErrorRecordsNothing() {
	s.checker.EXPECT().CheckLoginEligibility(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)
	s.post(context.Background())
}

func (s *CheckerSuite) TestBookkeepingErrorDoesNotChangeResponse() {
	s.checker.EXPECT().CheckLoginEligibility(gomock.Any(), gomock.Any()).Return(&models.Eligibility{Allowed: true}, nil)
	s.checker.EXPECT().RecordOutcome(gomock.Any(), gomock.Any(), true).Return(nil, context.DeadlineExceeded)

	rec := s.post(context.Background())
	s.Equal(http.StatusOK, rec.Code)
}

func (s *CheckerSuite) TestNewValidatesDependencies() {
	_, err := New(nil, s.verifier, nil)
	s.Error(err)
	_, err = New(s.checker, nil, nil)
	s.Error(err)
	_, err = New(s.checker, s.verifier, nil)
	s.Error(err)
}
