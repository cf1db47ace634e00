package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/printlab/printlab-backend/api/responses"
	"github.com/printlab/printlab-backend/internal/payments"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
)

const maxEventBytes = 1 << 20

type PaymentWebhookService interface {
	HandleWebhook(ctx context.Context, body []byte) payments.Result
}

type TransactionVerifier interface {
	VerifyTransaction(ctx context.Context, transactionID string) (*payments.Verification, error)
}

// PaymentWebhook receives gateway transaction events. The gateway always gets
// a 200 and the outcome travels in the body.
func PaymentWebhook(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "payments.webhook_body_unreadable")
			}
			responses.WriteWebhookAck(w, false, "invalid event payload")
			return
		}

		result := svc.HandleWebhook(ctx, payload)
		responses.WriteWebhookAck(w, result.Success, result.Message)
	}
}

// VerifyTransaction shows an operator what the gateway reports for a
// transaction next to the order it references.
func VerifyTransaction(svc TransactionVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		transactionID := strings.TrimSpace(chi.URLParam(r, "transactionId"))
		if transactionID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required"))
			return
		}

		verification, err := svc.VerifyTransaction(ctx, transactionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, verification)
	}
}
