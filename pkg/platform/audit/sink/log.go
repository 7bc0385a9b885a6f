package sink

import (
	"context"
	"log/slog"

	audit "afenda/pkg/platform/audit"
)

// Log writes events to a dedicated slog logger. Used when no broker is
// configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("sink", "audit")}
}

func (l *Log) Append(ctx context.Context, event audit.Event) error {
	l.logger.InfoContext(ctx, "audit_event",
		"audit_id", event.ID.String(),
		"action", event.Action,
		"scope", event.Scope,
		"identifier_hash", event.Subject,
		"timestamp", event.Timestamp,
	)
	return nil
}
