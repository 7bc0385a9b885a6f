// Package eligibility combines the per-scope limiters into one decision for a
// sign-in attempt.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"afenda/internal/ratelimit/metrics"
	"afenda/internal/ratelimit/models"
	dErrors "afenda/pkg/domain-errors"
	"afenda/pkg/platform/privacy"
)

// HealthCheckName is the readiness check registered for the counter store.
const HealthCheckName = "login_counter_store"

// Limiter is one scope's rate limiter.
type Limiter interface {
	Scope() models.Scope
	CheckEligibility(ctx context.Context, id models.Identifier) (*models.RateLimitStatus, error)
	RecordFailure(ctx context.Context, id models.Identifier) (*models.RateLimitStatus, error)
	Reset(ctx context.Context, id models.Identifier) error
}

// Subject is the raw input of a sign-in attempt. Either field may be empty.
type Subject struct {
	Email string
	IP    string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithStoreHealth(h *StoreHealth) Option {
	return func(s *Service) {
		s.health = h
	}
}

type Service struct {
	email   Limiter
	ip      Limiter
	health  *StoreHealth
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(email, ip Limiter, opts ...Option) (*Service, error) {
	if email == nil || email.Scope() != models.ScopeEmail {
		return nil, fmt.Errorf("email limiter is required")
	}
	if ip == nil || ip.Scope() != models.ScopeIP {
		return nil, fmt.Errorf("ip limiter is required")
	}
	svc := &Service{
		email:  email,
		ip:     ip,
		health: NewStoreHealth(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Health exposes the store health tracker for readiness registration.
func (s *Service) Health() *StoreHealth {
	return s.health
}

type scoped struct {
	limiter Limiter
	id      models.Identifier
}

// targets resolves the scopes a subject can be counted against. Unusable
// values are dropped so one bad field never disables the other scope. With
// nothing usable the subject is counted in the shared ip:unknown bucket.
func (s *Service) targets(ctx context.Context, subject Subject) []scoped {
	var out []scoped
	if subject.Email != "" {
		id, err := models.NewEmailIdentifier(subject.Email)
		if err != nil {
			s.logger.WarnContext(ctx, "unusable email for login protection, falling back to ip scope",
				"email", privacy.MaskEmail(subject.Email),
				"error", err,
			)
		} else {
			out = append(out, scoped{limiter: s.email, id: id})
		}
	}
	if subject.IP != "" {
		id, err := models.NewIPIdentifier(subject.IP)
		if err != nil {
			s.logger.WarnContext(ctx, "unusable client ip for login protection",
				"ip", subject.IP,
				"error", err,
			)
		} else {
			out = append(out, scoped{limiter: s.ip, id: id})
		}
	}
	if len(out) == 0 {
		s.logger.WarnContext(ctx, "no usable scope for login protection, counting under unknown ip")
		out = append(out, scoped{limiter: s.ip, id: models.UnknownIPIdentifier()})
	}
	return out
}

// CheckLoginEligibility checks every usable scope in parallel and combines the
// results. A store failure fails open: the attempt is allowed and marked
// degraded. Only cancellation of ctx is returned as an error.
func (s *Service) CheckLoginEligibility(ctx context.Context, subject Subject) (*models.Eligibility, error) {
	targets := s.targets(ctx, subject)

	statuses := make([]*models.RateLimitStatus, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			status, err := t.limiter.CheckEligibility(gctx, t.id)
			if err != nil {
				return err
			}
			statuses[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return s.failOpen(ctx, err), nil
	}
	s.storeRecovered(ctx)

	return combine(statuses), nil
}

func combine(statuses []*models.RateLimitStatus) *models.Eligibility {
	result := &models.Eligibility{Allowed: true}
	for _, st := range statuses {
		result.Allowed = result.Allowed && st.Allowed
		result.RequiresCaptcha = result.RequiresCaptcha || st.RequiresCaptcha
		if !st.Allowed && st.RetryAfterSeconds != nil {
			if result.RetryAfterSeconds == nil || *st.RetryAfterSeconds > *result.RetryAfterSeconds {
				v := *st.RetryAfterSeconds
				result.RetryAfterSeconds = &v
			}
		}
	}
	return result
}

func (s *Service) failOpen(ctx context.Context, err error) *models.Eligibility {
	s.logger.ErrorContext(ctx, "login eligibility check failed; allowing attempt",
		"error", err,
		"store_unavailable", dErrors.HasCode(err, dErrors.CodeStoreUnavailable),
	)
	if s.metrics != nil {
		s.metrics.IncrementFailOpen()
	}
	if s.health != nil {
		if t := s.health.RecordFailure(); t.Degraded {
			s.logger.ErrorContext(ctx, "login counter store marked degraded")
			if s.metrics != nil {
				s.metrics.SetStoreDegraded(true)
			}
		}
	}
	return &models.Eligibility{Allowed: true, RequiresCaptcha: false, Degraded: true}
}

func (s *Service) storeRecovered(ctx context.Context) {
	if s.health == nil {
		return
	}
	if t := s.health.RecordSuccess(); t.Recovered {
		s.logger.InfoContext(ctx, "login counter store recovered")
		if s.metrics != nil {
			s.metrics.SetStoreDegraded(false)
		}
	}
}

// RecordOutcome resets every usable scope after a success and counts a
// failure against each otherwise. Statuses that were written are returned even
// when another scope failed; store errors are joined.
func (s *Service) RecordOutcome(ctx context.Context, subject Subject, success bool) (*models.OutcomeResult, error) {
	targets := s.targets(ctx, subject)
	result := &models.OutcomeResult{}

	statuses := make([]*models.RateLimitStatus, len(targets))
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			if success {
				// One anonymous success must not clear the shared bucket.
				if t.id != models.UnknownIPIdentifier() {
					errs[i] = t.limiter.Reset(ctx, t.id)
				}
				return nil
			}
			statuses[i], errs[i] = t.limiter.RecordFailure(ctx, t.id)
			return nil
		})
	}
	_ = g.Wait()

	for i, t := range targets {
		if errs[i] != nil {
			errs[i] = fmt.Errorf("%s scope: %w", t.id.Scope(), errs[i])
			continue
		}
		switch t.id.Scope() {
		case models.ScopeEmail:
			result.Email = statuses[i]
		case models.ScopeIP:
			result.IP = statuses[i]
		}
	}
	return result, errors.Join(errs...)
}
