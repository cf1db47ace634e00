package inventory

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/printlab/printlab-backend/api/middleware"
	"github.com/printlab/printlab-backend/api/responses"
	"github.com/printlab/printlab-backend/api/validators"
	internalinventory "github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
)

// StockService is the operator surface over the stock ledger.
type StockService interface {
	History(ctx context.Context, subject internalinventory.Subject, id uuid.UUID) (*internalinventory.History, error)
	Adjust(ctx context.Context, adj internalinventory.Adjustment) (*internalinventory.History, error)
}

type adjustmentRequest struct {
	Delta  int    `json:"delta" validate:"required,min=-100000,max=100000"`
	Type   string `json:"type" validate:"required,oneof=ADJUSTMENT RESTOCK"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// Movements lists the ledger of one variant or input with a replay check
// against its stored stock.
func Movements(svc StockService, subject internalinventory.Subject, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), subject, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

// Adjust records a manual correction or restock.
func Adjust(svc StockService, subject internalinventory.Subject, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		id, err := validators.URLParamUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		movementType, err := enums.ParseMovementType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type"))
			return
		}

		var actorID *uuid.UUID
		if parsed, err := uuid.Parse(middleware.UserIDFromContext(r.Context())); err == nil {
			actorID = &parsed
		}

		history, err := svc.Adjust(r.Context(), internalinventory.Adjustment{
			Subject:   subject,
			SubjectID: id,
			Delta:     payload.Delta,
			Type:      movementType,
			Reason:    strings.TrimSpace(payload.Reason),
			ActorID:   actorID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}
