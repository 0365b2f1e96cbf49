package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/avelarde/boostpanel-backend/api/routes"
	"github.com/avelarde/boostpanel-backend/internal/audit"
	"github.com/avelarde/boostpanel-backend/internal/catalog"
	"github.com/avelarde/boostpanel-backend/internal/orders"
	"github.com/avelarde/boostpanel-backend/internal/payments"
	"github.com/avelarde/boostpanel-backend/internal/pricing"
	"github.com/avelarde/boostpanel-backend/internal/providers"
	"github.com/avelarde/boostpanel-backend/internal/users"
	"github.com/avelarde/boostpanel-backend/pkg/config"
	"github.com/avelarde/boostpanel-backend/pkg/db"
	"github.com/avelarde/boostpanel-backend/pkg/logger"
	"github.com/avelarde/boostpanel-backend/pkg/migrate"
	"github.com/avelarde/boostpanel-backend/pkg/redis"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	usersRepo := users.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	providersRepo := providers.NewRepository(dbClient.DB())
	rulesRepo := pricing.NewRuleRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	auditSink := audit.NewSink(audit.NewRepository(dbClient.DB()), logg)
	gateways := providers.NewFactory(cfg.Provider.HTTPTimeout, logg)

	orderService, err := orders.NewService(orders.ServiceParams{
		Tx:        dbClient,
		Orders:    ordersRepo,
		Users:     usersRepo,
		Catalog:   catalogRepo,
		Rules:     rulesRepo,
		Providers: providersRepo,
		Gateways:  gateways,
		Limiter:   redisClient,
		Audit:     auditSink,
		Logger:    logg,
		Config:    cfg.Intake,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalogRepo, usersRepo, rulesRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(dbClient, paymentsRepo, usersRepo, auditSink, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:     cfg,
			Logger:     logg,
			Registry:   registry,
			Orders:     orderService,
			Catalog:    catalogService,
			Payments:   paymentService,
			Users:      usersRepo,
			Providers:  providersRepo,
			Gateways:   gateways,
			CatalogJob: catalogJob,
		}),
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped")
}
