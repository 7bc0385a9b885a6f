// Package kafka holds broker-level helpers shared by producers.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// HealthChecker reports whether the cluster answers metadata requests.
type HealthChecker struct {
	admin *kadm.Client
}

func NewHealthChecker(client *kgo.Client) *HealthChecker {
	return &HealthChecker{admin: kadm.NewClient(client)}
}

// Check succeeds when at least one broker is listed.
func (h *HealthChecker) Check(ctx context.Context) error {
	brokers, err := h.admin.ListBrokers(ctx)
	if err != nil {
		return fmt.Errorf("list kafka brokers: %w", err)
	}
	if len(brokers) == 0 {
		return errors.New("no kafka brokers available")
	}
	return nil
}

func (h *HealthChecker) Name() string {
	return "kafka"
}
