package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/repairhub-backend/api/routes"
	"github.com/angelmondragon/repairhub-backend/internal/audit"
	"github.com/angelmondragon/repairhub-backend/internal/logistics"
	"github.com/angelmondragon/repairhub-backend/internal/numbering"
	"github.com/angelmondragon/repairhub-backend/internal/repairs"
	"github.com/angelmondragon/repairhub-backend/internal/scan"
	"github.com/angelmondragon/repairhub-backend/internal/users"
	"github.com/angelmondragon/repairhub-backend/pkg/config"
	"github.com/angelmondragon/repairhub-backend/pkg/db"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	"github.com/angelmondragon/repairhub-backend/pkg/metrics"
	"github.com/angelmondragon/repairhub-backend/pkg/migrate"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox"
	"github.com/angelmondragon/repairhub-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
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
	transitionMetrics := metrics.NewTransitionMetrics(registry)

	numbers, err := numbering.NewGenerator(redisClient, cfg.Numbering)
	if err != nil {
		logg.Error(context.Background(), "failed to create number generator", err)
		os.Exit(1)
	}
	ledger, err := audit.NewService(audit.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit ledger", err)
		os.Exit(1)
	}
	directory, err := users.NewDirectory(users.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create user directory", err)
		os.Exit(1)
	}
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	repairService, err := repairs.NewService(repairs.ServiceParams{
		Repo:        repairs.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Ledger:      ledger,
		Outbox:      emitter,
		Numbers:     numbers,
		Technicians: directory,
		Metrics:     transitionMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create repairs service", err)
		os.Exit(1)
	}

	batchService, err := logistics.NewService(logistics.ServiceParams{
		Repo:    logistics.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Orders:  repairService,
		Outbox:  emitter,
		Numbers: numbers,
		Metrics: transitionMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create logistics service", err)
		os.Exit(1)
	}

	scanService, err := scan.NewService(batchService)
	if err != nil {
		logg.Error(context.Background(), "failed to create scan service", err)
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
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			redisClient,
			registry,
			repairService,
			batchService,
			scanService,
			directory,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
