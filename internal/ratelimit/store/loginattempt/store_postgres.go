package loginattempt

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"afenda/internal/ratelimit/models"
	dErrors "afenda/pkg/domain-errors"
)

// PostgresStore is the canonical counter store. Every failure is one
// INSERT ... ON CONFLICT statement, so the window, increment and lock
// decisions are made by Postgres under the row lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed counter store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// $1 identifier, $2 now, $3 window cutoff, $4 max attempts, $5 lock deadline.
const upsertFailureQuery = `
	INSERT INTO login_attempts AS la (identifier, attempts, window_start, locked_until, created_at, updated_at)
	VALUES ($1, 1, $2, CASE WHEN 1 >= $4::int THEN $5::timestamptz END, $2, $2)
	ON CONFLICT (identifier) DO UPDATE SET
		attempts = CASE
			WHEN la.window_start <= $3 THEN 1
			ELSE la.attempts + 1
		END,
		window_start = CASE
			WHEN la.window_start <= $3 THEN $2
			ELSE la.window_start
		END,
		locked_until = CASE
			WHEN la.window_start <= $3 THEN CASE WHEN 1 >= $4::int THEN $5::timestamptz END
			WHEN la.attempts + 1 >= $4::int THEN $5::timestamptz
			ELSE la.locked_until
		END,
		updated_at = $2
	RETURNING attempts, locked_until
`

func (s *PostgresStore) UpsertFailure(ctx context.Context, identifier string, policy models.WindowPolicy, now time.Time) (*models.FailureResult, error) {
	cutoff := now.Add(-policy.Window)
	deadline := now.Add(policy.Lockout)

	var result models.FailureResult
	var lockedUntil sql.NullTime
	err := s.db.QueryRowContext(ctx, upsertFailureQuery,
		identifier, now, cutoff, policy.MaxAttempts, deadline,
	).Scan(&result.Attempts, &lockedUntil)
	if err != nil {
		return nil, dErrors.StoreUnavailable(err, "upsert login attempt")
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		result.LockedUntil = &t
	}
	return &result, nil
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*models.LoginAttemptCounter, error) {
	query := `
		SELECT identifier, attempts, window_start, locked_until, created_at, updated_at
		FROM login_attempts
		WHERE identifier = $1
	`
	counter, err := scanCounter(s.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dErrors.StoreUnavailable(err, "get login attempt")
	}
	return counter, nil
}

func (s *PostgresStore) Reset(ctx context.Context, identifier string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE identifier = $1`, identifier); err != nil {
		return dErrors.StoreUnavailable(err, "reset login attempts")
	}
	return nil
}

// PruneBefore deletes idle counters. Rows still under an active lock are kept
// even when idle, so pruning never ends a lockout early.
func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM login_attempts
		WHERE updated_at < $1
		  AND (locked_until IS NULL OR locked_until <= $2)
	`, cutoff, now)
	if err != nil {
		return 0, dErrors.StoreUnavailable(err, "prune login attempts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dErrors.StoreUnavailable(err, "prune login attempts")
	}
	return int(n), nil
}

type counterRow interface {
	Scan(dest ...any) error
}

func scanCounter(row counterRow) (*models.LoginAttemptCounter, error) {
	var c models.LoginAttemptCounter
	var lockedUntil sql.NullTime
	if err := row.Scan(&c.Identifier, &c.Attempts, &c.WindowStart, &lockedUntil, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		c.LockedUntil = &t
	}
	return &c, nil
}
