// Package limiter evaluates one scope's login counter against its policy.
package limiter

import (
	"context"
	"fmt"
	"log/slog"

	"afenda/internal/ratelimit/config"
	"afenda/internal/ratelimit/metrics"
	"afenda/internal/ratelimit/models"
	"afenda/internal/ratelimit/ports"
	dErrors "afenda/pkg/domain-errors"
	"afenda/pkg/platform/middleware/requesttime"
	"afenda/pkg/platform/privacy"
)

// Service is the rate limiter for a single scope. It holds no counter state;
// every decision is derived from the store.
type Service struct {
	store   ports.CounterStore
	scope   models.Scope
	policy  config.ScopePolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
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

func New(store ports.CounterStore, scope models.Scope, policy config.ScopePolicy, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if !scope.IsValid() {
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%s policy: %w", scope, err)
	}

	svc := &Service{
		store:  store,
		scope:  scope,
		policy: policy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Scope returns the scope this limiter is bound to.
func (s *Service) Scope() models.Scope {
	return s.scope
}

// CheckEligibility reports whether identifier may attempt a sign-in. It is a
// plain read; the authoritative decision is re-derived on the next write.
func (s *Service) CheckEligibility(ctx context.Context, id models.Identifier) (*models.RateLimitStatus, error) {
	if err := s.ensureScope(id); err != nil {
		return nil, err
	}
	now := requesttime.Now(ctx)

	counter, err := s.store.Get(ctx, id.String())
	if err != nil {
		s.storeError("check", err)
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "check login eligibility")
	}

	if counter != nil && counter.LockedAt(now) {
		return &models.RateLimitStatus{
			Scope:             s.scope,
			Allowed:           false,
			RemainingAttempts: 0,
			RequiresCaptcha:   true,
			LockedUntil:       counter.LockedUntil,
			RetryAfterSeconds: models.RetryAfterSeconds(counter.LockedUntil, now),
		}, nil
	}

	if counter == nil || counter.WindowExpired(s.policy.Window, now) {
		return s.freshStatus(), nil
	}

	remaining := max(0, s.policy.MaxAttempts-counter.Attempts)
	return &models.RateLimitStatus{
		Scope:             s.scope,
		Allowed:           remaining > 0,
		RemainingAttempts: remaining,
		RequiresCaptcha:   counter.Attempts >= s.policy.CaptchaAfter,
	}, nil
}

// RecordFailure counts one failed sign-in and returns the resulting status.
func (s *Service) RecordFailure(ctx context.Context, id models.Identifier) (*models.RateLimitStatus, error) {
	if err := s.ensureScope(id); err != nil {
		return nil, err
	}
	now := requesttime.Now(ctx)

	result, err := s.store.UpsertFailure(ctx, id.String(), s.policy.WindowPolicy(), now)
	if err != nil {
		s.storeError("record", err)
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "record login failure")
	}
	if s.metrics != nil {
		s.metrics.IncrementFailuresRecorded(s.scope.String())
	}

	locked := result.LockedUntil != nil && result.LockedUntil.After(now)
	status := &models.RateLimitStatus{
		Scope:           s.scope,
		Allowed:         !locked && result.Attempts < s.policy.MaxAttempts,
		RequiresCaptcha: result.Attempts >= s.policy.CaptchaAfter,
	}
	if locked {
		status.LockedUntil = result.LockedUntil
		status.RetryAfterSeconds = models.RetryAfterSeconds(result.LockedUntil, now)
	} else {
		status.RemainingAttempts = max(0, s.policy.MaxAttempts-result.Attempts)
	}

	if locked && s.metrics != nil {
		s.metrics.IncrementLockouts(s.scope.String())
	}
	s.logger.DebugContext(ctx, "login failure recorded",
		"scope", s.scope,
		"identifier_hash", privacy.HashIdentifier(id.String()),
		"attempts", result.Attempts,
		"locked", locked,
	)
	return status, nil
}

// Reset clears the counter after a successful sign-in or an unlock.
func (s *Service) Reset(ctx context.Context, id models.Identifier) error {
	if err := s.ensureScope(id); err != nil {
		return err
	}
	if err := s.store.Reset(ctx, id.String()); err != nil {
		s.storeError("reset", err)
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "reset login attempts")
	}
	return nil
}

func (s *Service) freshStatus() *models.RateLimitStatus {
	return &models.RateLimitStatus{
		Scope:             s.scope,
		Allowed:           true,
		RemainingAttempts: s.policy.MaxAttempts,
		RequiresCaptcha:   false,
	}
}

func (s *Service) ensureScope(id models.Identifier) error {
	if id.Scope() != s.scope {
		return dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("identifier scope %q does not match limiter scope %q", id.Scope(), s.scope))
	}
	return nil
}

func (s *Service) storeError(operation string, err error) {
	if s.metrics != nil {
		s.metrics.IncrementStoreErrors(operation)
	}
	s.logger.Warn("login counter store error",
		"scope", s.scope,
		"operation", operation,
		"error", err,
	)
}
