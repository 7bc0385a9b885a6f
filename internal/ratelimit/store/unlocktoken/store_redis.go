package unlocktoken

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"afenda/internal/ratelimit/models"
	dErrors "afenda/pkg/domain-errors"
)

const redisKeyPrefix = "unlock_token:"

// RedisStore keeps each token under its own key with a TTL matching its
// expiry, so DeleteExpired has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(identifierHash, tokenHash string) string {
	return redisKeyPrefix + identifierHash + ":" + tokenHash
}

func (s *RedisStore) Create(ctx context.Context, token *models.UnlockToken) error {
	ttl := token.ExpiresAt.Sub(token.CreatedAt)
	if ttl <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "unlock token is already expired")
	}
	ok, err := s.client.SetNX(ctx, redisKey(token.IdentifierHash, token.TokenHash), token.TokenHash, ttl).Result()
	if err != nil {
		return dErrors.StoreUnavailable(err, "create unlock token")
	}
	if !ok {
		return dErrors.New(dErrors.CodeInvariantViolation, "unlock token already exists")
	}
	return nil
}

// Consume relies on GETDEL being atomic. Key expiry stands in for the
// expires_at comparison.
func (s *RedisStore) Consume(ctx context.Context, identifierHash, tokenHash string, _ time.Time) (string, error) {
	stored, err := s.client.GetDel(ctx, redisKey(identifierHash, tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", dErrors.StoreUnavailable(err, "consume unlock token")
	}
	return stored, nil
}

func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
