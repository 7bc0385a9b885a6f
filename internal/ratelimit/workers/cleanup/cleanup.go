package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"afenda/internal/ratelimit/metrics"
	"afenda/internal/ratelimit/ports"
	"afenda/pkg/platform/middleware/requesttime"
)

// CleanupResult contains the results of a cleanup run.
type CleanupResult struct {
	CountersPruned int           // Idle counters deleted
	TokensPruned   int           // Expired unlock tokens deleted
	Duration       time.Duration // Time taken for cleanup run
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithUnlockTokens also sweeps expired unlock tokens on each run.
func WithUnlockTokens(tokens ports.UnlockTokenStore) Option {
	return func(s *Service) {
		s.tokens = tokens
	}
}

// Service periodically deletes counters whose window and lock have both
// lapsed. The Redis store expires keys itself, so there this is a no-op sweep.
type Service struct {
	counters  ports.CounterStore
	tokens    ports.UnlockTokenStore
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	metrics   *metrics.Metrics
}

// New builds a cleanup worker. retention is the longest configured window;
// counters untouched for longer than that can no longer affect a decision.
func New(counters ports.CounterStore, retention time.Duration, opts ...Option) *Service {
	service := &Service{
		counters:  counters,
		retention: retention,
		logger:    slog.Default(),
		interval:  15 * time.Minute,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			startTime := time.Now()
			res, err := s.RunOnce(ctx)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Error("login_attempt_cleanup_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				if s.metrics != nil {
					s.metrics.IncrementCleanupRuns("error")
					s.metrics.ObserveCleanupDuration(duration.Seconds())
				}
				continue
			}

			res.Duration = duration
			s.logger.Info("login_attempt_cleanup_completed",
				"counters_pruned", res.CountersPruned,
				"tokens_pruned", res.TokensPruned,
				"duration_ms", duration.Milliseconds(),
			)

			if s.metrics != nil {
				s.metrics.AddCleanupRowsPruned(res.CountersPruned)
				s.metrics.AddCleanupTokensPruned(res.TokensPruned)
				s.metrics.IncrementCleanupRuns("success")
				s.metrics.ObserveCleanupDuration(duration.Seconds())
			}

		case <-ctx.Done():
			s.logger.Info("login attempt cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run. Logging is handled by the caller (Start).
// A failure in one sweep does not skip the other; both errors are returned.
func (s *Service) RunOnce(ctx context.Context) (*CleanupResult, error) {
	now := requesttime.Now(ctx)
	res := &CleanupResult{}

	var errs []error
	pruned, err := s.counters.PruneBefore(ctx, now.Add(-s.retention), now)
	if err != nil {
		errs = append(errs, err)
	}
	res.CountersPruned = pruned

	if s.tokens != nil {
		deleted, err := s.tokens.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, err)
		}
		res.TokensPruned = deleted
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return res, nil
}
