// Package app is the composition root: it turns stores, a verifier and an
// identity provider into a routable login-protection service. cmd/server and
// the end-to-end suite both build through here.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"afenda/internal/captcha"
	"afenda/internal/platform/health"
	"afenda/internal/ratelimit/config"
	"afenda/internal/ratelimit/metrics"
	"afenda/internal/ratelimit/models"
	"afenda/internal/ratelimit/ports"
	"afenda/internal/ratelimit/service/eligibility"
	"afenda/internal/ratelimit/service/limiter"
	"afenda/internal/ratelimit/service/unlock"
	"afenda/internal/ratelimit/workers/cleanup"
	"afenda/internal/signin/gate"
	signinhandler "afenda/internal/signin/handler"
	"afenda/internal/signin/provider"
	httptransport "afenda/internal/transport/http"
	"afenda/pkg/platform/audit"
	request "afenda/pkg/platform/middleware/request"
)

type Options struct {
	Logger      *slog.Logger
	Environment string
	Policy      *config.Config

	Counters ports.CounterStore
	Tokens   ports.UnlockTokenStore
	Verifier captcha.Verifier
	Provider provider.Provider
	Auditor  *audit.Logger

	ProviderTimeout time.Duration
	SignInSuffix    string
	TrustedProxies  []netip.Prefix
	AdminToken      string

	// Registry receives every collector. Defaults to the global registry.
	Registry *prometheus.Registry
}

type App struct {
	Handler     http.Handler
	Health      *health.Handler
	Eligibility *eligibility.Service
	Unlock      *unlock.Service
	Gate        *gate.Gate
	Cleanup     *cleanup.Service
}

func New(opts Options) (*App, error) {
	if opts.Counters == nil {
		return nil, errors.New("counter store is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("unlock token store is required")
	}
	if opts.Policy == nil {
		opts.Policy = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		reg, gatherer = opts.Registry, opts.Registry
	}
	rlMetrics := metrics.NewWith(reg)

	emailLimiter, err := limiter.New(opts.Counters, models.ScopeEmail, opts.Policy.Email,
		limiter.WithLogger(log), limiter.WithMetrics(rlMetrics))
	if err != nil {
		return nil, err
	}
	ipLimiter, err := limiter.New(opts.Counters, models.ScopeIP, opts.Policy.IP,
		limiter.WithLogger(log), limiter.WithMetrics(rlMetrics))
	if err != nil {
		return nil, err
	}
	elig, err := eligibility.New(emailLimiter, ipLimiter,
		eligibility.WithLogger(log), eligibility.WithMetrics(rlMetrics))
	if err != nil {
		return nil, err
	}

	unlockOpts := []unlock.Option{
		unlock.WithLogger(log),
		unlock.WithMetrics(rlMetrics),
		unlock.WithTokenTTL(opts.Policy.UnlockTokenTTL),
	}
	gateOpts := []gate.Option{
		gate.WithLogger(log),
		gate.WithMetrics(gate.NewMetricsWith(reg)),
		gate.WithProviderTimeout(opts.ProviderTimeout),
		gate.WithSignInSuffix(opts.SignInSuffix),
	}
	// A nil *audit.Logger in an interface is not nil; leave the field unset
	// so the services fall back to their own logging.
	if opts.Auditor != nil {
		unlockOpts = append(unlockOpts, unlock.WithAuditor(opts.Auditor))
		gateOpts = append(gateOpts, gate.WithAuditor(opts.Auditor))
	}

	unlockSvc, err := unlock.New(opts.Tokens, emailLimiter, unlockOpts...)
	if err != nil {
		return nil, err
	}

	g, err := gate.New(elig, opts.Verifier, opts.Provider, gateOpts...)
	if err != nil {
		return nil, err
	}

	healthHandler := health.New(opts.Environment)
	healthHandler.RegisterCheck(eligibility.HealthCheckName, func(context.Context) error {
		return elig.Health().Check()
	})

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		SignIn:         signinhandler.New(g, unlockSvc, log),
		Health:         healthHandler,
		Metrics:        request.NewMetricsWith(reg),
		MetricsHandler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		TrustedProxies: opts.TrustedProxies,
		AdminToken:     opts.AdminToken,
	})

	worker := cleanup.New(opts.Counters, opts.Policy.MaxWindow(),
		cleanup.WithLogger(log),
		cleanup.WithInterval(opts.Policy.CleanupInterval),
		cleanup.WithMetrics(rlMetrics),
		cleanup.WithUnlockTokens(opts.Tokens),
	)

	return &App{
		Handler:     router,
		Health:      healthHandler,
		Eligibility: elig,
		Unlock:      unlockSvc,
		Gate:        g,
		Cleanup:     worker,
	}, nil
}
