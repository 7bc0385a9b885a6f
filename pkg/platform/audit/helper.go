package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"afenda/pkg/platform/privacy"
	"afenda/pkg/requestcontext"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger writes audit events to the text log and, when an emitter is set,
// to the audit sink.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Record enriches event from the request context and logs it.
//
// Usage:
//
//	logger.Record(ctx, audit.EventAccountLocked, audit.Event{Subject: hash, LockedUntil: &until})
func (l *Logger) Record(ctx context.Context, action AuditEvent, event Event) {
	if l == nil {
		return
	}
	event.Action = string(action)
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IPPrefix == "" {
		if ip := requestcontext.ClientIP(ctx); ip != "" {
			event.IPPrefix = privacy.AnonymizeIP(ip)
		}
	}
	if event.Device == "" {
		event.Device = DeviceSummary(requestcontext.UserAgent(ctx))
	}

	l.logToText(ctx, event)
	l.emitToAudit(ctx, event)
}

func (l *Logger) logToText(ctx context.Context, event Event) {
	if l.textLogger == nil {
		return
	}
	args := []any{
		"event", event.Action,
		"log_type", "audit",
		"audit_id", event.ID.String(),
		"request_id", event.RequestID,
	}
	if event.Scope != "" {
		args = append(args, "scope", event.Scope)
	}
	if event.Subject != "" {
		args = append(args, "identifier_hash", event.Subject)
	}
	if event.IPPrefix != "" {
		args = append(args, "ip_prefix", event.IPPrefix)
	}
	if event.LockedUntil != nil {
		args = append(args, "locked_until", event.LockedUntil.UTC().Format(time.RFC3339))
	}
	if event.Actor != "" {
		args = append(args, "actor", event.Actor)
	}
	l.textLogger.InfoContext(ctx, event.Action, args...)
}

func (l *Logger) emitToAudit(ctx context.Context, event Event) {
	if l.emitter == nil {
		return
	}
	if err := l.emitter.Emit(ctx, event); err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event.Action,
		)
	}
}

// DeviceSummary reduces a User-Agent header to "Browser on OS".
func DeviceSummary(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return strings.TrimSpace("bot " + name)
	}

	browser, _ := ua.Browser()
	os := ua.OS()
	if ua.Mobile() && ua.Platform() != "" {
		os = ua.Platform()
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}
