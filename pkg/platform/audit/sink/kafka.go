// Package sink holds the audit.Store implementations the server can publish to.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"afenda/internal/platform/kafka/producer"
	audit "afenda/pkg/platform/audit"
)

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Kafka writes each event as a JSON record keyed by its subject, so all
// events for one identifier land on the same partition in order.
type Kafka struct {
	producer Producer
	topic    string
}

func NewKafka(p Producer, topic string) *Kafka {
	return &Kafka{producer: p, topic: topic}
}

func (k *Kafka) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	key := event.Subject
	if key == "" {
		key = event.ID.String()
	}
	return k.producer.Produce(ctx, &producer.Message{
		Topic: k.topic,
		Key:   []byte(key),
		Value: payload,
		Headers: map[string]string{
			"event_type": event.Action,
			"request_id": event.RequestID,
		},
	})
}
