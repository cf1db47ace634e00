package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/printlab/printlab-backend/api/controllers"
	inventorycontrollers "github.com/printlab/printlab-backend/api/controllers/inventory"
	ordercontrollers "github.com/printlab/printlab-backend/api/controllers/orders"
	webhookcontrollers "github.com/printlab/printlab-backend/api/controllers/webhooks"
	"github.com/printlab/printlab-backend/api/middleware"
	"github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/internal/orders"
	"github.com/printlab/printlab-backend/internal/payments"
	"github.com/printlab/printlab-backend/pkg/config"
	"github.com/printlab/printlab-backend/pkg/db"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/logger"
	pkgredis "github.com/printlab/printlab-backend/pkg/redis"
)

// RedisStore is the redis surface the HTTP layer needs: idempotency records,
// rate limit counters and the readiness ping.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// PaymentsService covers the webhook, the admin verification view and the
// buyer confirmation fallback.
type PaymentsService interface {
	webhookcontrollers.PaymentWebhookService
	webhookcontrollers.TransactionVerifier
	ConfirmPaymentByTransaction(ctx context.Context, transactionID, orderNumber string, ownerID *uuid.UUID) (*payments.Confirmation, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	ordersSvc orders.Service,
	paymentsSvc PaymentsService,
	stockSvc inventorycontrollers.StockService,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Logging(logg),
	)

	webhookPolicy := middleware.NewRateLimitPolicy(
		"payment_webhook",
		cfg.RateLimit.Window,
		cfg.RateLimit.WebhookIPLimit,
		0,
	)
	confirmPolicy := middleware.NewRateLimitPolicy(
		"payment_confirm",
		cfg.RateLimit.Window,
		cfg.RateLimit.ConfirmIPLimit,
		cfg.RateLimit.ConfirmUserLimit,
	)

	loc := cfg.App.Location()

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisStore))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.WebhookRateLimit(webhookPolicy, redisStore, logg)).Post("/payment", webhookcontrollers.PaymentWebhook(paymentsSvc, logg))
		r.With(
			middleware.Auth(cfg.JWT, logg),
			middleware.RequireRole(enums.UserRoleAdmin, logg),
		).Get("/payment/verify/{transactionId}", webhookcontrollers.VerifyTransaction(paymentsSvc, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Post("/", ordercontrollers.Create(ordersSvc, logg))
		r.Get("/", ordercontrollers.List(ordersSvc, loc, logg))
		r.With(middleware.RateLimit(confirmPolicy, redisStore, logg)).Post("/payments/confirm", ordercontrollers.ConfirmPayment(paymentsSvc, logg))
		r.Get("/number/{orderNumber}", ordercontrollers.DetailByNumber(ordersSvc, logg))
		r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
		r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
	})

	r.Route("/api/admin/v1/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Get("/", ordercontrollers.AdminList(ordersSvc, loc, logg))
		r.Get("/stats", ordercontrollers.AdminStats(ordersSvc, logg))
		r.Get("/{orderId}", ordercontrollers.AdminDetail(ordersSvc, logg))
		r.Patch("/{orderId}/status", ordercontrollers.AdminUpdateStatus(ordersSvc, logg))
	})

	r.Route("/api/admin/v1/inventory", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Get("/variants/{id}/movements", inventorycontrollers.Movements(stockSvc, inventory.SubjectVariant, logg))
		r.Post("/variants/{id}/adjustments", inventorycontrollers.Adjust(stockSvc, inventory.SubjectVariant, logg))
		r.Get("/inputs/{id}/movements", inventorycontrollers.Movements(stockSvc, inventory.SubjectInput, logg))
		r.Post("/inputs/{id}/adjustments", inventorycontrollers.Adjust(stockSvc, inventory.SubjectInput, logg))
	})

	return r
}
