// Package unlocktoken persists single-use unlock tokens.
package unlocktoken

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"afenda/internal/ratelimit/models"
	dErrors "afenda/pkg/domain-errors"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, token *models.UnlockToken) error {
	query := `
		INSERT INTO unlock_tokens (identifier_hash, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, token.IdentifierHash, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return dErrors.StoreUnavailable(err, "create unlock token")
	}
	return nil
}

// Consume deletes and returns the token hash in one statement, so two
// concurrent redemptions of the same token cannot both succeed.
func (s *PostgresStore) Consume(ctx context.Context, identifierHash, tokenHash string, now time.Time) (string, error) {
	query := `
		DELETE FROM unlock_tokens
		WHERE identifier_hash = $1 AND token_hash = $2 AND expires_at > $3
		RETURNING token_hash
	`
	var stored string
	err := s.db.QueryRowContext(ctx, query, identifierHash, tokenHash, now).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", dErrors.StoreUnavailable(err, "consume unlock token")
	}
	return stored, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM unlock_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, dErrors.StoreUnavailable(err, "delete expired unlock tokens")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dErrors.StoreUnavailable(err, "delete expired unlock tokens")
	}
	return int(n), nil
}
