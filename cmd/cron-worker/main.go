package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/printlab/printlab-backend/internal/cron"
	"github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/internal/notifications"
	"github.com/printlab/printlab-backend/internal/orders"
	"github.com/printlab/printlab-backend/internal/settings"
	"github.com/printlab/printlab-backend/pkg/config"
	"github.com/printlab/printlab-backend/pkg/db"
	"github.com/printlab/printlab-backend/pkg/instance"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
	"github.com/printlab/printlab-backend/pkg/migrate"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.ConsoleLogs(),
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

	service, err := buildService(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire cron worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":               cfg.App.Env,
		"instance":          instance.ID(),
		"interval":          cfg.Cron.Interval.String(),
		"pending_order_ttl": cfg.Cron.PendingOrderTTL.String(),
	})
	logg.Info(ctx, "starting cron worker")
	if cfg.App.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer); err != nil {
				logg.Error(ctx, "metrics listener stopped", err)
			}
		}()
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	registry := cron.NewRegistry()

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outboxRepo,
		RetentionDays: cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(retention); err != nil {
		return nil, err
	}

	if cfg.Cron.PendingOrderTTL > 0 {
		ordersSvc, err := buildOrdersService(cfg, logg, dbClient, outboxRepo)
		if err != nil {
			return nil, err
		}
		expiry, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
			Logger: logg,
			Orders: ordersSvc,
			TTL:    cfg.Cron.PendingOrderTTL,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(expiry); err != nil {
			return nil, err
		}
	}

	// The lock outlives a cycle so a crashed worker releases it by expiry.
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName, cfg.App.Env), 2*cfg.Cron.Interval)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

func buildOrdersService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, outboxRepo *outbox.Repository) (orders.Service, error) {
	pricing, err := settings.NewService(dbClient.DB(), cfg.Pricing, logg)
	if err != nil {
		return nil, err
	}
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	inventoryRepo := inventory.NewRepository(dbClient.DB())
	resolver, err := inventory.NewResolver(inventoryRepo)
	if err != nil {
		return nil, err
	}
	ledger, err := inventory.NewLedger(inventoryRepo, logg, orderMetrics)
	if err != nil {
		return nil, err
	}
	outboxSvc := outbox.NewService(outboxRepo, logg)
	notifier, err := notifications.NewService(dbClient, outboxSvc, logg)
	if err != nil {
		return nil, err
	}
	return orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Resolver: resolver,
		Ledger:   ledger,
		Pricing:  pricing,
		Notifier: notifier,
		Logger:   logg,
		Metrics:  orderMetrics,
		Location: cfg.App.Location(),
	})
}
