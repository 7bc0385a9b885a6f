package app

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"afenda/internal/captcha"
	"afenda/internal/platform/config"
	"afenda/internal/ratelimit/store/loginattempt"
	"afenda/internal/ratelimit/store/unlocktoken"
	"afenda/internal/signin/provider"
)

type AppSuite struct {
	suite.Suite
	logs bytes.Buffer
	opts Options
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	s.logs.Reset()

	mr := miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	s.T().Cleanup(idp.Close)
	target, _ := url.Parse(idp.URL)
	upstream, err := provider.New(target)
	s.Require().NoError(err)

	s.opts = Options{
		Logger:   slog.New(slog.NewJSONHandler(&s.logs, nil)),
		Counters: loginattempt.NewRedis(client),
		Tokens:   unlocktoken.NewRedis(client),
		Verifier: captcha.New(config.CaptchaConfig{}),
		Provider: upstream,
		Registry: prometheus.NewRegistry(),
	}
}

func (s *AppSuite) TestRequiresStores() {
	opts := s.opts
	opts.Counters = nil
	_, err := New(opts)
	s.Error(err)

	opts = s.opts
	opts.Tokens = nil
	_, err = New(opts)
	s.Error(err)
}

func (s *AppSuite) TestUnlockIsLoggedWithoutAuditor() {
	a, err := New(s.opts)
	s.Require().NoError(err)

	ctx := context.Background()
	token, err := a.Unlock.CreateToken(ctx, "alice@example.com", "ops")
	s.Require().NoError(err)
	s.Require().NoError(a.Unlock.Unlock(ctx, "alice@example.com", token.Token))

	s.Contains(s.logs.String(), `"msg":"unlock_token_issued"`)
	s.Contains(s.logs.String(), `"msg":"account_unlocked"`)
}
