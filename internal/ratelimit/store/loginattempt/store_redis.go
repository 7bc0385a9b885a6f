package loginattempt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"afenda/internal/ratelimit/models"
	dErrors "afenda/pkg/domain-errors"
)

const redisKeyPrefix = "login_attempts:"

// upsertFailureLua applies one failure to the hash at KEYS[1]. Timestamps are
// unix milliseconds computed by the caller and written back verbatim, so the
// script only compares numbers and never formats them.
//
// ARGV: now, window cutoff, lock deadline, max attempts, ttl
// Returns {attempts, locked_until or ""}.
var upsertFailureLua = redis.NewScript(`
local key = KEYS[1]
local now = ARGV[1]
local cutoff = tonumber(ARGV[2])
local deadline = ARGV[3]
local max = tonumber(ARGV[4])
local ttl = ARGV[5]

redis.call('HSETNX', key, 'created_at', now)
local ws = redis.call('HGET', key, 'window_start')
local attempts
if (not ws) or tonumber(ws) <= cutoff then
  attempts = 1
  redis.call('HSET', key, 'attempts', '1', 'window_start', now)
  redis.call('HDEL', key, 'locked_until')
else
  attempts = redis.call('HINCRBY', key, 'attempts', 1)
end
if attempts >= max then
  redis.call('HSET', key, 'locked_until', deadline)
end
redis.call('HSET', key, 'updated_at', now)
redis.call('PEXPIRE', key, ttl)

local lu = redis.call('HGET', key, 'locked_until')
return {attempts, lu or ''}
`)

// RedisStore keeps counters in Redis hashes. Keys carry a TTL of
// max(window, lockout) from the last write, so idle counters expire on their
// own and PruneBefore has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedis constructs a Redis-backed counter store.
func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(identifier string) string {
	return redisKeyPrefix + identifier
}

func (s *RedisStore) UpsertFailure(ctx context.Context, identifier string, policy models.WindowPolicy, now time.Time) (*models.FailureResult, error) {
	ttl := max(policy.Window, policy.Lockout)
	reply, err := upsertFailureLua.Run(ctx, s.client, []string{redisKey(identifier)},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(-policy.Window).UnixMilli(), 10),
		strconv.FormatInt(now.Add(policy.Lockout).UnixMilli(), 10),
		policy.MaxAttempts,
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, dErrors.StoreUnavailable(err, "upsert login attempt")
	}
	result, err := decodeUpsertReply(reply)
	if err != nil {
		return nil, dErrors.StoreUnavailable(err, "upsert login attempt")
	}
	return result, nil
}

func decodeUpsertReply(reply []any) (*models.FailureResult, error) {
	if len(reply) != 2 {
		return nil, fmt.Errorf("unexpected script reply length %d", len(reply))
	}
	attempts, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected attempts type %T", reply[0])
	}
	result := &models.FailureResult{Attempts: int(attempts)}

	raw, _ := reply[1].(string)
	if raw != "" {
		lockedUntil, err := parseMillis(raw)
		if err != nil {
			return nil, err
		}
		result.LockedUntil = &lockedUntil
	}
	return result, nil
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (*models.LoginAttemptCounter, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(identifier)).Result()
	if err != nil {
		return nil, dErrors.StoreUnavailable(err, "get login attempt")
	}
	if len(fields) == 0 {
		return nil, nil
	}

	counter := &models.LoginAttemptCounter{Identifier: identifier}
	if counter.Attempts, err = strconv.Atoi(fields["attempts"]); err != nil {
		return nil, dErrors.StoreUnavailable(err, "decode login attempt")
	}
	if counter.WindowStart, err = parseMillis(fields["window_start"]); err != nil {
		return nil, dErrors.StoreUnavailable(err, "decode login attempt")
	}
	if raw, ok := fields["locked_until"]; ok {
		lockedUntil, err := parseMillis(raw)
		if err != nil {
			return nil, dErrors.StoreUnavailable(err, "decode login attempt")
		}
		counter.LockedUntil = &lockedUntil
	}
	// created_at and updated_at are informational; tolerate their absence.
	counter.CreatedAt, _ = parseMillis(fields["created_at"])
	counter.UpdatedAt, _ = parseMillis(fields["updated_at"])
	return counter, nil
}

func (s *RedisStore) Reset(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, redisKey(identifier)).Err(); err != nil {
		return dErrors.StoreUnavailable(err, "reset login attempts")
	}
	return nil
}

// PruneBefore is a no-op: key TTLs already remove idle counters.
func (s *RedisStore) PruneBefore(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse millis %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
