// Package ports defines the storage interfaces shared by the login protection
// services. Implementations live under internal/ratelimit/store.
package ports

import (
	"context"
	"time"

	"afenda/internal/ratelimit/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks

// CounterStore owns the login_attempts keyspace. It is the only component that
// mutates counters; every write is a single conditional statement evaluated by
// the store so concurrent failures are never lost.
type CounterStore interface {
	// UpsertFailure records one failure for identifier in a single round trip.
	// A lapsed window restarts at attempts=1; inside the window attempts is
	// incremented and a lock is set once it reaches policy.MaxAttempts.
	// An existing future lock is kept when the new count is below threshold.
	UpsertFailure(ctx context.Context, identifier string, policy models.WindowPolicy, now time.Time) (*models.FailureResult, error)

	// Get returns the stored counter, or nil when none exists.
	Get(ctx context.Context, identifier string) (*models.LoginAttemptCounter, error)

	// Reset deletes the counter. Deleting an absent counter is not an error.
	Reset(ctx context.Context, identifier string) error

	// PruneBefore removes counters last written before cutoff whose lock, if
	// any, has expired at now.
	PruneBefore(ctx context.Context, cutoff, now time.Time) (int, error)
}

// UnlockTokenStore persists single-use unlock tokens.
type UnlockTokenStore interface {
	Create(ctx context.Context, token *models.UnlockToken) error

	// Consume atomically deletes a matching unexpired token and returns the
	// stored token hash, or "" when nothing matched.
	Consume(ctx context.Context, identifierHash, tokenHash string, now time.Time) (string, error)

	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
