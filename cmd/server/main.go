package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"afenda/internal/app"
	"afenda/internal/captcha"
	"afenda/internal/platform/config"
	"afenda/internal/platform/logger"
	rlconfig "afenda/internal/ratelimit/config"
	"afenda/internal/signin/provider"
	"afenda/pkg/platform/middleware/metadata"
)

// main wires the stores, the audit pipeline and the sign-in gate, then serves
// until SIGINT or SIGTERM.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("afenda exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.FromEnv()
	for _, w := range cfg.Warnings {
		log.Warn("config value ignored", "detail", w)
	}
	if err != nil {
		return err
	}
	policy, warnings, err := rlconfig.FromEnv()
	for _, w := range warnings {
		log.Warn("login policy value ignored", "detail", w)
	}
	if err != nil {
		return fmt.Errorf("login policy: %w", err)
	}
	trusted, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing afenda",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"counter_backend", cfg.CounterBackend,
		"identity_provider", cfg.IdentityProviderURL.Host,
	)

	stores, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close(log)

	auditor, closeAudit, err := newAuditPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	verifier := captcha.New(cfg.Captcha, captcha.WithLogger(log))
	if !verifier.Configured() {
		log.Warn("captcha provider not configured; challenged sign-ins will be rejected")
	}
	upstream, err := provider.New(cfg.IdentityProviderURL, provider.WithLogger(log))
	if err != nil {
		return err
	}

	svc, err := app.New(app.Options{
		Logger:          log,
		Environment:     cfg.Environment,
		Policy:          policy,
		Counters:        stores.Counters,
		Tokens:          stores.Tokens,
		Verifier:        verifier,
		Provider:        upstream,
		Auditor:         auditor.Logger,
		ProviderTimeout: cfg.ProviderTimeout,
		SignInSuffix:    cfg.SignInPathSuffix,
		TrustedProxies:  trusted,
		AdminToken:      cfg.AdminAPIToken,
	})
	if err != nil {
		return err
	}
	for name, check := range stores.Checks {
		svc.Health.RegisterCheck(name, check)
	}
	if auditor.Check != nil {
		svc.Health.RegisterCheck("kafka", auditor.Check)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := svc.Cleanup.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
