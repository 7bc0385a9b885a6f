package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"afenda/pkg/requestcontext"
)

type mockEmitter struct {
	events    []Event
	shouldErr bool
}

func (m *mockEmitter) Emit(_ context.Context, event Event) error {
	if m.shouldErr {
		return errors.New("emit failed")
	}
	m.events = append(m.events, event)
	return nil
}

// LoggerSuite tests the audit Logger helper.
//
// Justification: enrichment from the request context and the emit error path
// are not observable from the HTTP surface.
type LoggerSuite struct {
	suite.Suite
	emitter *mockEmitter
	logs    *bytes.Buffer
	logger  *Logger
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) SetupTest() {
	s.emitter = &mockEmitter{}
	s.logs = &bytes.Buffer{}
	s.logger = NewLogger(slog.New(slog.NewJSONHandler(s.logs, nil)), s.emitter)
}

func (s *LoggerSuite) requestContext() context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), "req-12345")
	return requestcontext.WithClientMetadata(ctx, "203.0.113.77",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
}

func (s *LoggerSuite) TestRecordEnrichesFromContext() {
	until := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	s.logger.Record(s.requestContext(), EventAccountLocked, Event{
		Scope:       "email",
		Subject:     "a1b2c3d4e5f6",
		LockedUntil: &until,
	})

	s.Require().Len(s.emitter.events, 1)
	event := s.emitter.events[0]
	s.Equal("account_locked", event.Action)
	s.Equal("req-12345", event.RequestID)
	s.Equal("203.0.113.0", event.IPPrefix)
	s.Contains(event.Device, "Chrome on ")
	s.NotEqual(uuid.Nil, event.ID)
	s.False(event.Timestamp.IsZero())

	s.Contains(s.logs.String(), `"log_type":"audit"`)
	s.Contains(s.logs.String(), `"identifier_hash":"a1b2c3d4e5f6"`)
	s.NotContains(s.logs.String(), "203.0.113.77")
}

func (s *LoggerSuite) TestRecordKeepsExplicitFields() {
	id := uuid.New()
	s.logger.Record(s.requestContext(), EventUnlockTokenIssued, Event{
		ID:        id,
		RequestID: "req-explicit",
		Actor:     "ops-oncall",
	})

	s.Require().Len(s.emitter.events, 1)
	s.Equal(id, s.emitter.events[0].ID)
	s.Equal("req-explicit", s.emitter.events[0].RequestID)
	s.Equal("ops-oncall", s.emitter.events[0].Actor)
}

func (s *LoggerSuite) TestEmitFailureIsLogged() {
	s.emitter.shouldErr = true
	s.logger.Record(context.Background(), EventIPLocked, Event{Scope: "ip"})

	s.Contains(s.logs.String(), "failed to emit audit event")
}

func (s *LoggerSuite) TestNilSafe() {
	var nilLogger *Logger
	s.NotPanics(func() {
		nilLogger.Record(context.Background(), EventAccountUnlocked, Event{})
	})

	textOnly := NewLogger(nil, nil)
	s.NotPanics(func() {
		textOnly.Record(context.Background(), EventAccountUnlocked, Event{})
	})
}

func (s *LoggerSuite) TestDeviceSummary() {
	s.Empty(DeviceSummary(""))
	s.Contains(DeviceSummary("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"), "Firefox on ")
	s.Contains(DeviceSummary("Googlebot/2.1 (+http://www.google.com/bot.html)"), "bot")
}
