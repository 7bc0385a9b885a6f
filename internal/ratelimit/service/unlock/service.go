// Package unlock issues and redeems single-use tokens that clear an email
// lockout before it expires.
package unlock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"afenda/internal/ratelimit/metrics"
	"afenda/internal/ratelimit/models"
	"afenda/internal/ratelimit/ports"
	dErrors "afenda/pkg/domain-errors"
	"afenda/pkg/platform/audit"
	"afenda/pkg/platform/middleware/requesttime"
	"afenda/pkg/platform/privacy"
	"afenda/pkg/secrets"
)

const (
	TokenLength     = 32
	DefaultTokenTTL = time.Hour
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Resetter clears an identifier's counter. Satisfied by the email limiter.
type Resetter interface {
	Reset(ctx context.Context, id models.Identifier) error
}

type AuditLogger interface {
	Record(ctx context.Context, action audit.AuditEvent, event audit.Event)
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

func WithAuditor(a AuditLogger) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

type Service struct {
	tokens  ports.UnlockTokenStore
	email   Resetter
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditLogger
}

func New(tokens ports.UnlockTokenStore, email Resetter, opts ...Option) (*Service, error) {
	if tokens == nil {
		return nil, fmt.Errorf("unlock token store is required")
	}
	if email == nil {
		return nil, fmt.Errorf("email limiter is required")
	}
	svc := &Service{
		tokens: tokens,
		email:  email,
		ttl:    DefaultTokenTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateToken issues a token for email. actor names the operator who asked
// for it and is only used for the audit trail.
func (s *Service) CreateToken(ctx context.Context, email, actor string) (*models.UnlockToken, error) {
	id, err := models.NewEmailIdentifier(email)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid email")
	}
	value, err := secrets.GenerateToken(TokenLength)
	if err != nil {
		return nil, err
	}

	now := requesttime.Now(ctx)
	record := &models.UnlockToken{
		IdentifierHash: secrets.HashEmail(id.Value()),
		TokenHash:      secrets.HashToken(value),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store unlock token")
	}
	issued := *record
	issued.Token = value

	s.audit(ctx, audit.EventUnlockTokenIssued, audit.Event{
		Scope:   models.ScopeEmail.String(),
		Subject: privacy.HashIdentifier(id.String()),
		Email:   privacy.MaskEmail(id.Value()),
		Actor:   actor,
	})
	return &issued, nil
}

// Unlock redeems token for email and clears the email counter. Any mismatch
// (unknown, expired, already used, other email) is the same invalid_input.
func (s *Service) Unlock(ctx context.Context, email, token string) error {
	if email == "" || token == "" {
		s.countAttempt("missing")
		return dErrors.New(dErrors.CodeBadRequest, "Missing email or token")
	}
	id, err := models.NewEmailIdentifier(email)
	if err != nil {
		s.countAttempt("invalid")
		return dErrors.New(dErrors.CodeInvalidInput, "Invalid or expired token")
	}

	tokenHash := secrets.HashToken(token)
	stored, err := s.tokens.Consume(ctx, secrets.HashEmail(id.Value()), tokenHash, requesttime.Now(ctx))
	if err != nil {
		s.countAttempt("error")
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "consume unlock token")
	}
	if stored == "" || !secrets.Equal(stored, tokenHash) {
		s.countAttempt("invalid")
		return dErrors.New(dErrors.CodeInvalidInput, "Invalid or expired token")
	}

	if err := s.email.Reset(ctx, id); err != nil {
		s.countAttempt("error")
		return err
	}
	s.countAttempt("success")
	s.audit(ctx, audit.EventAccountUnlocked, audit.Event{
		Scope:   models.ScopeEmail.String(),
		Subject: privacy.HashIdentifier(id.String()),
		Email:   privacy.MaskEmail(id.Value()),
	})
	return nil
}

func (s *Service) countAttempt(result string) {
	if s.metrics != nil {
		s.metrics.IncrementUnlockAttempts(result)
	}
}

func (s *Service) audit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	if s.auditor == nil {
		s.logger.InfoContext(ctx, string(action), "identifier_hash", event.Subject)
		return
	}
	s.auditor.Record(ctx, action, event)
}
