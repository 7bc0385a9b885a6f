//go:build integration

package loginattempt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"afenda/internal/ratelimit/models"
	"afenda/internal/ratelimit/store/loginattempt"
	"afenda/pkg/testutil"
	"afenda/pkg/testutil/containers"
)

// RedisIntegrationSuite runs the upsert script on a real Redis server, which
// miniredis only approximates (script caching, HINCRBY reply types).
type RedisIntegrationSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	store  *loginattempt.RedisStore
	policy models.WindowPolicy
}

func TestRedisIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = loginattempt.NewRedis(s.redis.Client)
}

func (s *RedisIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.policy = models.WindowPolicy{Window: 15 * time.Minute, MaxAttempts: 5, Lockout: 15 * time.Minute}
}

func (s *RedisIntegrationSuite) TestLockoutLifecycle() {
	ctx := context.Background()
	id := "email:" + testutil.UniqueEmail()
	now := testutil.FixedNow

	var res *models.FailureResult
	for i := range 5 {
		var err error
		res, err = s.store.UpsertFailure(ctx, id, s.policy, now.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(err)
	}
	s.Equal(5, res.Attempts)
	s.Require().NotNil(res.LockedUntil)
	s.True(res.LockedUntil.Equal(now.Add(19 * time.Minute)))

	counter, err := s.store.Get(ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(counter)
	s.True(counter.WindowStart.Equal(now))
	s.Require().NotNil(counter.LockedUntil)

	ttl, err := s.redis.Client.PTTL(ctx, "login_attempts:"+id).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 15*time.Minute)

	s.Require().NoError(s.store.Reset(ctx, id))
	counter, err = s.store.Get(ctx, id)
	s.NoError(err)
	s.Nil(counter)
}

func (s *RedisIntegrationSuite) TestConcurrentFailuresAreNotLost() {
	id := "ip:" + testutil.TestIPs.Attacker
	const k = 25
	s.policy.MaxAttempts = 100

	result := testutil.RunConcurrent(k, func(int) error {
		_, err := s.store.UpsertFailure(context.Background(), id, s.policy, time.Now())
		return err
	})
	s.Equal(int32(k), result.Successes)
	s.Zero(result.StoreUnavailables)

	counter, err := s.store.Get(context.Background(), id)
	s.Require().NoError(err)
	s.Equal(k, counter.Attempts)
}
