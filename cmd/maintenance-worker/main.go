package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/repairhub-backend/internal/logistics"
	"github.com/angelmondragon/repairhub-backend/internal/maintenance"
	"github.com/angelmondragon/repairhub-backend/pkg/config"
	"github.com/angelmondragon/repairhub-backend/pkg/db"
	"github.com/angelmondragon/repairhub-backend/pkg/instance"
	"github.com/angelmondragon/repairhub-backend/pkg/logger"
	"github.com/angelmondragon/repairhub-backend/pkg/metrics"
	"github.com/angelmondragon/repairhub-backend/pkg/migrate"
	"github.com/angelmondragon/repairhub-backend/pkg/outbox"
	"github.com/angelmondragon/repairhub-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "maintenance-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "maintenance-worker"

	logg = logger.New(logger.Options{
		ServiceName: "maintenance-worker",
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
	registry.MustRegister(collectors.NewGoCollector())
	jobMetrics := metrics.NewJobMetrics(registry)

	lock, err := maintenance.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance lock", err)
		os.Exit(1)
	}

	retention, err := maintenance.NewOutboxRetentionJob(maintenance.OutboxRetentionParams{
		Logger:        logg,
		Tx:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Maintenance.OutboxRetentionDays,
		MinAttempts:   cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build outbox retention job", err)
		os.Exit(1)
	}
	transitWatch, err := maintenance.NewTransitWatchJob(maintenance.TransitWatchParams{
		Logger:       logg,
		Batches:      logistics.NewRepository(dbClient.DB()),
		Gauge:        jobMetrics,
		OverdueAfter: cfg.Maintenance.TransitOverdueAfter,
		PageSize:     cfg.Maintenance.TransitWatchPageSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build transit watch job", err)
		os.Exit(1)
	}
	jobs, err := maintenance.NewRegistry(retention, transitWatch)
	if err != nil {
		logg.Error(context.Background(), "failed to register maintenance jobs", err)
		os.Exit(1)
	}

	service, err := maintenance.NewService(maintenance.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Maintenance.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create maintenance service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})

	go func() {
		if err := metrics.Serve(ctx, ":"+cfg.App.Port, registry); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(ctx, "starting maintenance worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "maintenance worker shutting down gracefully")
}

// lockKey scopes the leader lock per environment so staging and production
// workers sharing a redis never contend.
func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return redis.Key("lock", "maintenance", env)
}
