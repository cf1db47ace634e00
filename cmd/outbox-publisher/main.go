package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/printlab/printlab-backend/pkg/config"
	"github.com/printlab/printlab-backend/pkg/db"
	"github.com/printlab/printlab-backend/pkg/instance"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
	"github.com/printlab/printlab-backend/pkg/migrate"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/outbox/registry"
	"github.com/printlab/printlab-backend/pkg/outbox/relay"
	"github.com/printlab/printlab-backend/pkg/pubsub"
)

const (
	serviceName  = "outbox-publisher"
	readyTimeout = 10 * time.Second
)

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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}

	os.Exit(run(cfg, logg, dbClient, pubsubClient))
}

func run(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, pubsubClient *pubsub.Client) int {
	defer func() {
		if err := multierr.Combine(pubsubClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error during shutdown", err)
		}
	}()

	routes, err := registry.New(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		return 1
	}

	r, err := relay.New(relay.Params{
		Logger:       logg,
		DB:           dbClient,
		Rows:         outbox.NewRepository(dbClient.DB()),
		Router:       routes,
		Sender:       pubsubClient,
		Metrics:      metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		PollInterval: time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox relay", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"instance":    instance.ID(),
		"topics":      routes.Topics(),
	})

	if err := ready(ctx, dbClient, pubsubClient); err != nil {
		logg.Error(ctx, "dependencies not ready", err)
		return 1
	}
	logg.Info(ctx, "starting outbox publisher")
	if cfg.App.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer); err != nil {
				logg.Error(ctx, "metrics listener stopped", err)
			}
		}()
	}

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		return 1
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
	return 0
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ready pings every dependency once so a bad credential fails the rollout
// instead of filling the log with batch errors.
func ready(ctx context.Context, database, broker pinger) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return multierr.Combine(database.Ping(ctx), broker.Ping(ctx))
}
