package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avelarde/boostpanel-backend/internal/audit"
	"github.com/avelarde/boostpanel-backend/internal/catalog"
	"github.com/avelarde/boostpanel-backend/internal/cron"
	"github.com/avelarde/boostpanel-backend/internal/orders"
	"github.com/avelarde/boostpanel-backend/internal/providers"
	"github.com/avelarde/boostpanel-backend/internal/reconcile"
	"github.com/avelarde/boostpanel-backend/internal/refund"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/db"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
	"github.com/avelarde/boostpanel-backend/pkg/metrics"
	"github.com/avelarde/boostpanel-backend/pkg/migrate"
	"github.com/avelarde/boostpanel-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	usersRepo := users.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	providersRepo := providers.NewRepository(dbClient.DB())
	auditSink := audit.NewSink(audit.NewRepository(dbClient.DB()), logg)
	gateways := providers.NewFactory(cfg.Provider.HTTPTimeout, logg)

	ledger, err := refund.NewLedger(dbClient, ordersRepo, usersRepo, auditSink, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create refund ledger", err)
		os.Exit(1)
	}

	reconcileJob, err := reconcile.NewJob(reconcile.JobParams{
		Orders:    ordersRepo,
		Providers: providersRepo,
		Services:  catalogRepo,
		Gateways:  gateways,
		Ledger:    ledger,
		Config:    cfg.Reconcile,
		Logger:    logg,
		Metrics:   metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}

	catalogJob, err := catalog.NewSyncJob(catalog.SyncJobParams{
		Catalog:   catalogRepo,
		Providers: providersRepo,
		Gateways:  gateways,
		Config:    cfg.CatalogSync,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog sync job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+cfg.App.Env), cfg.Reconcile.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconcileJob, catalogJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
