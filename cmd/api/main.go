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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/printlab/printlab-backend/api/routes"
	"github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/internal/notifications"
	"github.com/printlab/printlab-backend/internal/orders"
	"github.com/printlab/printlab-backend/internal/payments"
	"github.com/printlab/printlab-backend/internal/settings"
	"github.com/printlab/printlab-backend/pkg/config"
	"github.com/printlab/printlab-backend/pkg/db"
	"github.com/printlab/printlab-backend/pkg/gateway"
	"github.com/printlab/printlab-backend/pkg/instance"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
	"github.com/printlab/printlab-backend/pkg/migrate"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/redis"
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orderMetrics := metrics.NewOrderMetrics(registry)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	handler, err := buildHandler(cfg, logg, dbClient, redisClient, orderMetrics, paymentMetrics, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire api", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instance.ID(),
		"gateway_mode": gatewayMode(cfg.Gateway),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	)
	if closeErr != nil {
		logg.Error(ctx, "error during shutdown", closeErr)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	logg.Info(ctx, "api server stopped")
}

func buildHandler(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	orderMetrics *metrics.OrderMetrics,
	paymentMetrics *metrics.PaymentMetrics,
	registry *prometheus.Registry,
) (http.Handler, error) {
	pricing, err := settings.NewService(dbClient.DB(), cfg.Pricing, logg)
	if err != nil {
		return nil, err
	}

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	resolver, err := inventory.NewResolver(inventoryRepo)
	if err != nil {
		return nil, err
	}
	ledger, err := inventory.NewLedger(inventoryRepo, logg, orderMetrics)
	if err != nil {
		return nil, err
	}
	stock, err := inventory.NewStock(inventoryRepo, dbClient, ledger, logg)
	if err != nil {
		return nil, err
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	notifier, err := notifications.NewService(dbClient, outboxSvc, logg)
	if err != nil {
		return nil, err
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
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
	if err != nil {
		return nil, err
	}

	gatewayClient, err := gateway.NewClient(
		cfg.Gateway.BaseURL(),
		cfg.Gateway.PrivateKey,
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithMetrics(paymentMetrics),
	)
	if err != nil {
		return nil, err
	}

	replay, err := payments.NewReplayGuard(redisClient, cfg.Gateway.ReplayTTL)
	if err != nil {
		return nil, err
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Orders:   ordersSvc,
		Gateway:  gatewayClient,
		Verifier: payments.NewSignatureVerifier(cfg.Gateway.EventsSecret),
		Replay:   replay,
		Logger:   logg,
		Metrics:  paymentMetrics,
	})
	if err != nil {
		return nil, err
	}
	if !cfg.App.IsProd() && cfg.Gateway.EventsSecret == "" {
		logg.Warn(context.Background(), "payments.signature_verification_disabled")
	}

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return routes.NewRouter(cfg, logg, dbClient, redisClient, ordersSvc, paymentsSvc, stock, metricsHandler), nil
}

func gatewayMode(cfg config.GatewayConfig) string {
	if cfg.TestMode {
		return "sandbox"
	}
	return "production"
}
