package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flexprice/entitlements/internal/api"
	"github.com/flexprice/entitlements/internal/api/cron"
	"github.com/flexprice/entitlements/internal/api/dto"
	v1 "github.com/flexprice/entitlements/internal/api/v1"
	"github.com/flexprice/entitlements/internal/billing"
	"github.com/flexprice/entitlements/internal/cache"
	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/domain/feature"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	"github.com/flexprice/entitlements/internal/domain/proration"
	"github.com/flexprice/entitlements/internal/domain/settings"
	"github.com/flexprice/entitlements/internal/lock"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/metrics"
	"github.com/flexprice/entitlements/internal/postgres"
	"github.com/flexprice/entitlements/internal/pubsub"
	"github.com/flexprice/entitlements/internal/redis"
	"github.com/flexprice/entitlements/internal/repository/memory"
	pgrepo "github.com/flexprice/entitlements/internal/repository/postgres"
	"github.com/flexprice/entitlements/internal/rest/middleware"
	"github.com/flexprice/entitlements/internal/service"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Infrastructure
			provideRegistry,
			provideMetrics,
			providePostgres,
			provideRedis,
			provideLocker,
			cache.NewCache,
			billing.NewCollaborator,
			pubsub.NewPubSub,
			provideEventPublisher,
			proration.NewCalculator,

			// Repositories
			provideRepositories,

			// Services
			service.NewServiceParams,
			service.NewBalanceService,
			service.NewResetService,

			// Handlers
			provideRateLimiter,
			v1.NewBalanceHandler,
			v1.NewProductHandler,
			cron.NewBalanceCronHandler,
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			initSentry,
			startServer,
		),
	)

	app.Run()
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) (*metrics.Metrics, error) {
	return metrics.New(reg)
}

// providePostgres connects only when a component is backed by postgres.
func providePostgres(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (*postgres.Client, error) {
	if cfg.Ledger.Store != "postgres" && cfg.Locks.Backend != config.LockBackendPostgres {
		return nil, nil
	}

	client, err := postgres.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.AutoMigrate {
		if err := postgres.RunMigrations(client.DB()); err != nil {
			_ = client.Close()
			return nil, err
		}
		log.Infow("applied ledger migrations")
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// provideRedis connects only when the lock or cache is backed by redis.
func provideRedis(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (*redis.Client, error) {
	useCache := cfg.Cache.Enabled && cache.CacheType(cfg.Cache.Type) == cache.CacheTypeRedis
	if cfg.Locks.Backend != config.LockBackendRedis && !useCache {
		return nil, nil
	}

	client, err := redis.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func provideLocker(cfg *config.Configuration, log *logger.Logger, pg *postgres.Client, rdb *redis.Client) lock.Locker {
	switch cfg.Locks.Backend {
	case config.LockBackendRedis:
		log.Infow("using redis ledger locks", "ttl", cfg.Locks.TTL)
		return redis.NewLocker(rdb, cfg.Locks.TTL)
	case config.LockBackendPostgres:
		log.Infow("using postgres advisory ledger locks")
		return postgres.NewLocker(pg)
	default:
		log.Infow("using in-process ledger locks")
		return lock.NewMemoryLocker()
	}
}

type repositories struct {
	fx.Out

	Ledger   ledger.Repository
	Feature  feature.Repository
	Settings settings.Repository
}

func provideRepositories(cfg *config.Configuration, log *logger.Logger, pg *postgres.Client) repositories {
	if cfg.Ledger.Store == "postgres" {
		return repositories{
			Ledger:   pgrepo.NewLedgerRepository(pg, log),
			Feature:  pgrepo.NewFeatureRepository(pg, log),
			Settings: pgrepo.NewSettingsRepository(pg, log),
		}
	}

	log.Warnw("ledger store is in memory, balances are lost on restart")
	return repositories{
		Ledger:   memory.NewLedgerStore(),
		Feature:  memory.NewFeatureStore(),
		Settings: memory.NewSettingsStore(),
	}
}

func provideEventPublisher(lc fx.Lifecycle, ps pubsub.PubSub, cfg *config.Configuration, log *logger.Logger) pubsub.EventPublisher {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return ps.Close()
		},
	})
	return pubsub.NewEventPublisher(ps, cfg.Events.Topic, log)
}

func provideRateLimiter(cfg *config.Configuration) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst)
}

func provideHandlers(balance *v1.BalanceHandler, product *v1.ProductHandler, cronBalance *cron.BalanceCronHandler) api.Handlers {
	return api.Handlers{
		Balance:     balance,
		Product:     product,
		CronBalance: cronBalance,
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, log *logger.Logger, reg *prometheus.Registry) *gin.Engine {
	return api.NewRouter(handlers, cfg, log, reg)
}

func initSentry(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) error {
	if !cfg.Sentry.Enabled {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.Sentry.SampleRate,
	})
	if err != nil {
		return err
	}
	log.Infow("sentry initialized", "environment", cfg.Sentry.Environment)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		},
	})
	return nil
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *gin.Engine,
	resetService service.ResetService,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Infow("starting server", "address", cfg.Server.Address, "mode", cfg.Deployment.Mode)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("server failed: %v", err)
				}
			}()

			if cfg.Deployment.Mode == types.ModeWorker {
				go runResetLoop(runCtx, done, cfg.Reset.Interval, resetService, log)
			} else {
				close(done)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("shutting down server")
			cancel()

			if cfg.Server.ShutdownTimeout > 0 {
				var stop context.CancelFunc
				ctx, stop = context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
				defer stop()
			}
			err := srv.Shutdown(ctx)

			select {
			case <-done:
			case <-ctx.Done():
			}
			_ = log.Close()
			return err
		},
	})
}

// runResetLoop runs the reset job on every tick until ctx is cancelled.
func runResetLoop(ctx context.Context, done chan<- struct{}, interval time.Duration, resetService service.ResetService, log *logger.Logger) {
	defer close(done)
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := resetService.ResetDueBalances(ctx, &dto.ResetBalancesRequest{}); err != nil {
				log.Errorw("balance reset run failed", "error", err)
			}
		}
	}
}
