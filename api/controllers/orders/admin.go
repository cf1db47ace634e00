package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/printlab/printlab-backend/api/middleware"
	"github.com/printlab/printlab-backend/api/responses"
	"github.com/printlab/printlab-backend/api/validators"
	internalorders "github.com/printlab/printlab-backend/internal/orders"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
)

type updateStatusRequest struct {
	Status         string  `json:"status" validate:"required,order_status"`
	Note           string  `json:"note,omitempty" validate:"max=500"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	TrackingURL    *string `json:"tracking_url,omitempty" validate:"omitempty,url,max=500"`
}

// AdminList returns orders across all buyers, optionally narrowed to one via
// user_id.
func AdminList(svc internalorders.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		filters, params, err := parseListQuery(r, loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.ParseQueryUUID(r, "user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.UserID = userID

		list, err := svc.ListOrders(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminStats(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		stats, err := svc.GetStats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// AdminDetail shows an order with the gateway transactions applied to it and
// the stock movements it caused.
func AdminDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		audit, err := svc.GetOrderAudit(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, audit)
	}
}

// AdminUpdateStatus moves an order along the status graph on behalf of an
// operator. Transitions outside the graph are rejected as INVALID_TRANSITION.
func AdminUpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		var actorID *uuid.UUID
		if parsed, err := uuid.Parse(middleware.UserIDFromContext(r.Context())); err == nil {
			actorID = &parsed
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:        orderID,
			Target:         target,
			Note:           strings.TrimSpace(payload.Note),
			TrackingNumber: payload.TrackingNumber,
			TrackingURL:    payload.TrackingURL,
			ActorID:        actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
