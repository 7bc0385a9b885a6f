// Package gate places login protection in front of sign-in requests bound for
// the identity provider.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"afenda/internal/captcha"
	"afenda/internal/ratelimit/models"
	"afenda/internal/ratelimit/service/eligibility"
	"afenda/internal/signin/provider"
	dErrors "afenda/pkg/domain-errors"
	"afenda/pkg/platform/audit"
	"afenda/pkg/platform/httputil"
	"afenda/pkg/platform/privacy"
	"afenda/pkg/requestcontext"
)

//go:generate mockgen -source=gate.go -destination=mocks/mocks.go -package=mocks

const (
	DefaultProviderTimeout = 10 * time.Second
	DefaultSignInSuffix    = "/sign-in"

	bookkeepingTimeout = 5 * time.Second
)

// State is a step of the gate's decision. The terminal state of every
// sign-in attempt is logged and counted.
type State string

const (
	StateStart              State = "start"
	StateEligibilityChecked State = "eligibility_checked"
	StateBlocked            State = "blocked"
	StateCaptchaRequired    State = "captcha_required"
	StateCaptchaFailed      State = "captcha_failed"
	StateProceed            State = "proceed"
	StateDelegated          State = "delegated"
	StateSuccess            State = "success"
	StateFailure            State = "failure"
	StateTimeout            State = "timeout"
	StateUpstreamError      State = "upstream_error"
	StateCancelled          State = "cancelled"
)

// Checker is the eligibility aggregator.
type Checker interface {
	CheckLoginEligibility(ctx context.Context, subject eligibility.Subject) (*models.Eligibility, error)
	RecordOutcome(ctx context.Context, subject eligibility.Subject, success bool) (*models.OutcomeResult, error)
}

type AuditLogger interface {
	Record(ctx context.Context, action audit.AuditEvent, event audit.Event)
}

// Decision is what the gate did with one sign-in attempt.
type Decision struct {
	State          State
	Eligibility    *models.Eligibility
	Outcome        *models.OutcomeResult
	ProviderStatus int
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithAuditor(a AuditLogger) Option {
	return func(g *Gate) {
		g.auditor = a
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gate) {
		if t != nil {
			g.tracer = t
		}
	}
}

func WithProviderTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.providerTimeout = d
		}
	}
}

func WithSignInSuffix(suffix string) Option {
	return func(g *Gate) {
		if suffix != "" {
			g.signInSuffix = suffix
		}
	}
}

type Gate struct {
	checker         Checker
	verifier        captcha.Verifier
	provider        provider.Provider
	auditor         AuditLogger
	logger          *slog.Logger
	metrics         *Metrics
	tracer          trace.Tracer
	providerTimeout time.Duration
	signInSuffix    string
}

func New(checker Checker, verifier captcha.Verifier, upstream provider.Provider, opts ...Option) (*Gate, error) {
	if checker == nil {
		return nil, errors.New("eligibility checker is required")
	}
	if verifier == nil {
		return nil, errors.New("captcha verifier is required")
	}
	if upstream == nil {
		return nil, errors.New("identity provider is required")
	}
	g := &Gate{
		checker:         checker,
		verifier:        verifier,
		provider:        upstream,
		logger:          slog.Default(),
		tracer:          otel.Tracer("afenda/signin"),
		providerTimeout: DefaultProviderTimeout,
		signInSuffix:    DefaultSignInSuffix,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// IsSignIn reports whether r is a credential submission the gate protects.
func (g *Gate) IsSignIn(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.Contains(r.URL.Path, g.signInSuffix)
}

// ServeHTTP gates sign-in requests and passes everything else through.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.IsSignIn(r) {
		g.provider.ServeHTTP(w, r)
		return
	}
	decision := g.handleSignIn(w, r)
	if g.metrics != nil {
		g.metrics.IncrementDecision(decision.State)
	}
}

func (g *Gate) handleSignIn(w http.ResponseWriter, r *http.Request) Decision {
	ctx, span := g.tracer.Start(r.Context(), "signin.gate")
	defer span.End()

	p := extractPayload(r)
	subject := eligibility.Subject{Email: p.Email, IP: requestcontext.ClientIP(ctx)}
	decision := Decision{State: StateStart}
	defer func() {
		span.SetAttributes(attribute.String("signin.state", string(decision.State)))
		g.logDecision(ctx, subject, decision)
	}()

	elig, err := g.checkEligibility(ctx, subject)
	if err != nil {
		decision.State = StateCancelled
		return decision
	}
	decision.State = StateEligibilityChecked
	decision.Eligibility = elig

	if !elig.Allowed {
		decision.State = StateBlocked
		writeBlocked(ctx, w, elig)
		return decision
	}

	if elig.RequiresCaptcha {
		if p.CaptchaToken == "" {
			decision.State = StateCaptchaRequired
			g.countCaptcha("missing")
			writeChallenge(ctx, w, dErrors.CodeCaptchaRequired, "CAPTCHA required")
			return decision
		}
		res, err := g.verifyCaptcha(ctx, p.CaptchaToken, subject.IP)
		if err != nil {
			decision.State = StateCancelled
			return decision
		}
		if !res.Success {
			decision.State = StateCaptchaFailed
			g.countCaptcha("failure")
			msg := res.Error
			if msg == "" {
				msg = captcha.ErrVerificationFailed
			}
			writeChallenge(ctx, w, dErrors.CodeCaptchaFailed, msg)
			return decision
		}
		g.countCaptcha("success")
	}

	if ctx.Err() != nil {
		decision.State = StateCancelled
		return decision
	}
	decision.State = StateProceed

	resp, err := g.delegate(ctx, r)
	decision.State = StateDelegated
	if err != nil {
		switch {
		case ctx.Err() != nil:
			decision.State = StateCancelled
		case dErrors.HasCode(err, dErrors.CodeTimeout):
			decision.State = StateTimeout
			decision.Outcome = g.recordOutcome(ctx, subject, false)
			httputil.WriteError(w, err)
		default:
			decision.State = StateUpstreamError
			g.logger.WarnContext(ctx, "identity provider unreachable", "error", err)
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUpstream, "identity provider unreachable"))
		}
		return decision
	}

	decision.ProviderStatus = resp.StatusCode
	if resp.Success() {
		decision.State = StateSuccess
		decision.Outcome = g.recordOutcome(ctx, subject, true)
	} else {
		decision.State = StateFailure
		decision.Outcome = g.recordOutcome(ctx, subject, false)
		g.auditLockouts(ctx, subject, decision.Outcome)
	}
	resp.WriteTo(w)
	return decision
}

func (g *Gate) checkEligibility(ctx context.Context, subject eligibility.Subject) (*models.Eligibility, error) {
	ctx, span := g.tracer.Start(ctx, "signin.eligibility")
	defer span.End()

	elig, err := g.checker.CheckLoginEligibility(ctx, subject)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("signin.allowed", elig.Allowed),
		attribute.Bool("signin.requires_captcha", elig.RequiresCaptcha),
		attribute.Bool("signin.degraded", elig.Degraded),
	)
	return elig, nil
}

func (g *Gate) verifyCaptcha(ctx context.Context, token, remoteIP string) (*captcha.Result, error) {
	ctx, span := g.tracer.Start(ctx, "signin.captcha")
	defer span.End()

	res, err := g.verifier.Verify(ctx, token, remoteIP)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("captcha.success", res.Success))
	return res, nil
}

func (g *Gate) delegate(ctx context.Context, r *http.Request) (*provider.Response, error) {
	ctx, span := g.tracer.Start(ctx, "signin.delegate")
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Forward(pctx, r)
	if g.metrics != nil {
		g.metrics.ObserveProviderLatency(time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return resp, nil
}

// recordOutcome runs detached from the client: once the provider has
// answered, the outcome is known even if the client has gone away.
func (g *Gate) recordOutcome(ctx context.Context, subject eligibility.Subject, success bool) *models.OutcomeResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	ctx, span := g.tracer.Start(ctx, "signin.record_outcome", trace.WithAttributes(attribute.Bool("signin.success", success)))
	defer span.End()

	outcome, err := g.checker.RecordOutcome(ctx, subject, success)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		g.logger.ErrorContext(ctx, "login outcome bookkeeping failed",
			"success", success,
			"error", err,
		)
	}
	return outcome
}

func (g *Gate) auditLockouts(ctx context.Context, subject eligibility.Subject, outcome *models.OutcomeResult) {
	if g.auditor == nil {
		return
	}
	for _, scope := range outcome.LockoutTriggered() {
		switch scope {
		case models.ScopeEmail:
			id, err := models.NewEmailIdentifier(subject.Email)
			if err != nil {
				continue
			}
			g.auditor.Record(ctx, audit.EventAccountLocked, audit.Event{
				Scope:       scope.String(),
				Subject:     privacy.HashIdentifier(id.String()),
				Email:       privacy.MaskEmail(id.Value()),
				LockedUntil: outcome.Email.LockedUntil,
				Reason:      "too_many_failed_attempts",
			})
		case models.ScopeIP:
			id, err := models.NewIPIdentifier(subject.IP)
			if err != nil {
				id = models.UnknownIPIdentifier()
			}
			g.auditor.Record(ctx, audit.EventIPLocked, audit.Event{
				Scope:       scope.String(),
				Subject:     privacy.HashIdentifier(id.String()),
				LockedUntil: outcome.IP.LockedUntil,
				Reason:      "too_many_failed_attempts",
			})
		}
	}
}

func (g *Gate) countCaptcha(result string) {
	if g.metrics != nil {
		g.metrics.IncrementCaptcha(result)
	}
}

func (g *Gate) logDecision(ctx context.Context, subject eligibility.Subject, d Decision) {
	attrs := []any{
		"state", d.State,
		"request_id", requestcontext.RequestID(ctx),
		"ip", privacy.AnonymizeIP(subject.IP),
	}
	if subject.Email != "" {
		attrs = append(attrs, "email", privacy.MaskEmail(subject.Email))
	}
	if d.Eligibility != nil && d.Eligibility.Degraded {
		attrs = append(attrs, "degraded", true)
	}
	if d.ProviderStatus != 0 {
		attrs = append(attrs, "provider_status", d.ProviderStatus)
	}
	g.logger.InfoContext(ctx, "login_gate_decision", attrs...)
}

// challengeResponse is the body of every response the gate itself produces
// for a sign-in attempt. It never says whether the account exists.
type challengeResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RequiresCaptcha   bool   `json:"requiresCaptcha"`
	RetryAfterSeconds *int   `json:"retryAfterSeconds,omitempty"`
	RequestID         string `json:"requestId,omitempty"`
}

func writeBlocked(ctx context.Context, w http.ResponseWriter, elig *models.Eligibility) {
	if elig.RetryAfterSeconds != nil {
		w.Header().Set("Retry-After", strconv.Itoa(*elig.RetryAfterSeconds))
	}
	resp := challengeResponse{
		Error:             "Too many failed login attempts. Please try again later.",
		Code:              httputil.DomainCodeToHTTPCode(dErrors.CodeRateLimited),
		RequiresCaptcha:   elig.RequiresCaptcha,
		RetryAfterSeconds: elig.RetryAfterSeconds,
		RequestID:         requestcontext.RequestID(ctx),
	}
	httputil.WriteJSON(w, httputil.DomainCodeToHTTPStatus(dErrors.CodeRateLimited), resp)
}

func writeChallenge(ctx context.Context, w http.ResponseWriter, code dErrors.Code, msg string) {
	httputil.WriteJSON(w, httputil.DomainCodeToHTTPStatus(code), challengeResponse{
		Error:           msg,
		Code:            httputil.DomainCodeToHTTPCode(code),
		RequiresCaptcha: true,
		RequestID:       requestcontext.RequestID(ctx),
	})
}
