package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dErrors "afenda/pkg/domain-errors"
	audit "afenda/pkg/platform/audit"
	"afenda/pkg/platform/audit/metrics"
)

// Publisher hands audit events to a sink. In async mode the request path only
// enqueues; a background goroutine writes to the sink.
type Publisher struct {
	store   audit.Store
	events  chan audit.Event
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
	async   bool
	timeout time.Duration
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithWriteTimeout bounds each background sink write.
func WithWriteTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if p.metrics != nil {
			p.metrics.DecQueueDepth()
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.write(ctx, event)
		cancel()
		if err != nil {
			if p.logger != nil {
				p.logger.Error("failed to persist audit event",
					"error", err,
					"action", event.Action,
					"audit_id", event.ID.String(),
				)
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.IncEventsProcessed()
		}
	}
}

func (p *Publisher) write(ctx context.Context, event audit.Event) error {
	start := time.Now()
	err := p.store.Append(ctx, event)
	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		if err != nil {
			p.metrics.IncPersistFailures()
		}
	}
	return err
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

func (p *Publisher) Emit(ctx context.Context, base audit.Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	if !p.async {
		return p.write(ctx, base)
	}

	select {
	case p.events <- base:
		if p.metrics != nil {
			p.metrics.IncEventsEnqueued()
			p.metrics.IncQueueDepth()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.metrics != nil {
			p.metrics.IncEventsDropped()
		}
		if p.logger != nil {
			p.logger.Warn("audit buffer full, event dropped",
				"action", base.Action,
				"audit_id", base.ID.String(),
			)
		}
		return dErrors.New(dErrors.CodeInternal, "audit buffer full")
	}
}
