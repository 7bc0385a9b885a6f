package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"afenda/internal/platform/config"
	"afenda/internal/platform/database"
	"afenda/internal/platform/health"
	"afenda/internal/platform/redis"
	"afenda/internal/ratelimit/ports"
	"afenda/internal/ratelimit/store/loginattempt"
	"afenda/internal/ratelimit/store/unlocktoken"
	"afenda/migrations"
)

// backend is the selected counter and unlock-token storage.
type backend struct {
	Counters ports.CounterStore
	Tokens   ports.UnlockTokenStore
	Checks   map[string]health.CheckFunc

	closers []func() error
}

func (b *backend) Close(log *slog.Logger) {
	for _, c := range b.closers {
		if err := c(); err != nil {
			log.Warn("closing store", "error", err)
		}
	}
}

// openBackend connects the store named by LOGIN_COUNTER_BACKEND. Postgres
// is migrated on startup.
func openBackend(ctx context.Context, cfg config.Server, log *slog.Logger) (*backend, error) {
	switch cfg.CounterBackend {
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		prometheus.MustRegister(redis.NewPoolCollector(client.Client))
		log.Info("using redis login counter store")
		return &backend{
			Counters: loginattempt.NewRedis(client.Client),
			Tokens:   unlocktoken.NewRedis(client.Client),
			Checks:   map[string]health.CheckFunc{"redis": client.Health},
			closers:  []func() error{client.Close},
		}, nil

	default:
		pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		applied, err := database.Migrate(ctx, pool.DB(), migrations.FS)
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("applied migrations", "versions", applied)
		}
		log.Info("using postgres login counter store")
		return &backend{
			Counters: loginattempt.NewPostgres(pool.DB()),
			Tokens:   unlocktoken.NewPostgres(pool.DB()),
			Checks:   map[string]health.CheckFunc{"database": pool.Health},
			closers:  []func() error{pool.Close},
		}, nil
	}
}
