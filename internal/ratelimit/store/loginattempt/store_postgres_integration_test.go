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

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *loginattempt.PostgresStore
	policy   models.WindowPolicy
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = loginattempt.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateLoginTables(context.Background()))
	s.policy = models.WindowPolicy{Window: 15 * time.Minute, MaxAttempts: 5, Lockout: 15 * time.Minute}
}

func (s *PostgresStoreSuite) fail(identifier string, at time.Time) *models.FailureResult {
	res, err := s.store.UpsertFailure(context.Background(), identifier, s.policy, at)
	s.Require().NoError(err)
	return res
}

func (s *PostgresStoreSuite) TestLockoutLifecycle() {
	id := "email:" + testutil.UniqueEmail()
	now := testutil.FixedNow

	for i := range 4 {
		res := s.fail(id, now.Add(time.Duration(i)*time.Minute))
		s.Equal(i+1, res.Attempts)
		s.Nil(res.LockedUntil)
	}

	locked := s.fail(id, now.Add(4*time.Minute))
	s.Equal(5, locked.Attempts)
	s.Require().NotNil(locked.LockedUntil)
	s.WithinDuration(now.Add(19*time.Minute), *locked.LockedUntil, time.Millisecond)

	counter, err := s.store.Get(context.Background(), id)
	s.Require().NoError(err)
	s.Require().NotNil(counter)
	s.Equal(5, counter.Attempts)
	s.WithinDuration(now, counter.WindowStart, time.Millisecond)

	// window_start + 15m has passed: next failure opens a new window.
	reset := s.fail(id, now.Add(15*time.Minute))
	s.Equal(1, reset.Attempts)
	s.Nil(reset.LockedUntil)
}

func (s *PostgresStoreSuite) TestExistingLockIsKeptBelowThreshold() {
	id := "ip:203.0.113.77"
	now := testutil.FixedNow

	s.policy.MaxAttempts = 2
	s.fail(id, now)
	locked := s.fail(id, now.Add(time.Second))
	s.Require().NotNil(locked.LockedUntil)

	s.policy.MaxAttempts = 10
	res := s.fail(id, now.Add(2*time.Second))
	s.Equal(3, res.Attempts)
	s.Require().NotNil(res.LockedUntil)
	s.WithinDuration(*locked.LockedUntil, *res.LockedUntil, time.Millisecond)
}

// TestConcurrentFailuresAreNotLost issues k simultaneous failures for one
// identifier; the single-statement upsert must count every one of them.
func (s *PostgresStoreSuite) TestConcurrentFailuresAreNotLost() {
	id := "email:" + testutil.UniqueEmail()
	const k = 10
	s.policy.MaxAttempts = 100

	result := testutil.RunConcurrent(k, func(int) error {
		_, err := s.store.UpsertFailure(context.Background(), id, s.policy, time.Now())
		return err
	})
	s.Equal(int32(k), result.Successes)

	counter, err := s.store.Get(context.Background(), id)
	s.Require().NoError(err)
	s.Equal(k, counter.Attempts)
}

func (s *PostgresStoreSuite) TestConcurrentFailuresAcrossIdentifiers() {
	const identifiers = 5
	const perIdentifier = 8
	ids := make([]string, identifiers)
	for i := range ids {
		ids[i] = "email:" + testutil.UniqueEmail()
	}

	result := testutil.RunConcurrent(identifiers*perIdentifier, func(idx int) error {
		_, err := s.store.UpsertFailure(context.Background(), ids[idx%identifiers], s.policy, time.Now())
		return err
	})
	s.Equal(int32(identifiers*perIdentifier), result.Successes)

	for _, id := range ids {
		counter, err := s.store.Get(context.Background(), id)
		s.Require().NoError(err)
		s.Equal(perIdentifier, counter.Attempts, "identifier %s", id)
	}
}

func (s *PostgresStoreSuite) TestResetAndPrune() {
	ctx := context.Background()
	now := testutil.FixedNow

	s.Run("reset is idempotent", func() {
		id := "email:" + testutil.UniqueEmail()
		s.fail(id, now)
		s.Require().NoError(s.store.Reset(ctx, id))
		s.Require().NoError(s.store.Reset(ctx, id))

		counter, err := s.store.Get(ctx, id)
		s.NoError(err)
		s.Nil(counter)
	})

	s.Run("prune keeps active locks and recent rows", func() {
		idle := "ip:198.51.100.1"
		lockedID := "ip:198.51.100.2"
		recent := "ip:198.51.100.3"

		s.fail(idle, now.Add(-2*time.Hour))

		s.policy.MaxAttempts = 1
		s.policy.Lockout = 3 * time.Hour
		s.fail(lockedID, now.Add(-2*time.Hour))
		s.policy.MaxAttempts = 5
		s.policy.Lockout = 15 * time.Minute

		s.fail(recent, now)

		n, err := s.store.PruneBefore(ctx, now.Add(-time.Hour), now)
		s.Require().NoError(err)
		s.Equal(1, n)

		gone, err := s.store.Get(ctx, idle)
		s.NoError(err)
		s.Nil(gone)

		kept, err := s.store.Get(ctx, lockedID)
		s.NoError(err)
		s.NotNil(kept)
	})
}
