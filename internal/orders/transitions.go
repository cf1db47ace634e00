package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/pkg/db"
	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/outbox/payloads"
)

const (
	noteCancelledByBuyer = "Cancelled by customer"
	notePaymentVoided    = "Payment voided by gateway"
	noteAwaitingPayment  = "awaiting final gateway status"
	gatewaySource        = "payment_gateway"

	maxPaymentAttempts = 3
)

var (
	errStaleOrder      = pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently, reload and retry")
	errAlreadyRecorded = errors.New("gateway transaction already applied")
)

type transitionRequest struct {
	Target         enums.OrderStatus
	Note           string
	TrackingNumber *string
	TrackingURL    *string
	PaymentRef     *string
	Actor          *outbox.ActorRef
}

// transitionResult is what the post-commit hooks need to know.
type transitionResult struct {
	order *models.Order
	from  enums.OrderStatus
	to    enums.OrderStatus
}

// applyTransition moves order to req.Target inside tx, together with the stock
// side effects of that status and the status changed event. It fails with
// errStaleOrder when another writer got there first.
func (s *service) applyTransition(ctx context.Context, tx *gorm.DB, order *models.Order, req transitionRequest) (*transitionResult, error) {
	if err := validateTransition(order.Status, req.Target); err != nil {
		return nil, err
	}

	now := s.now()
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = req.Target.Label()
	}

	updates := map[string]any{
		"status":         req.Target,
		"status_history": order.StatusHistory.Append(string(req.Target), note, now),
		"updated_at":     now,
	}
	switch req.Target {
	case enums.OrderStatusPaid:
		updates["paid_at"] = now
		if req.PaymentRef != nil {
			updates["payment_ref"] = *req.PaymentRef
		}
	case enums.OrderStatusShipped:
		updates["shipped_at"] = now
		if v := trimmedOrNil(req.TrackingNumber); v != nil {
			updates["tracking_number"] = *v
		}
		if v := trimmedOrNil(req.TrackingURL); v != nil {
			updates["tracking_url"] = *v
		}
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
	}

	repo := s.repo.WithTx(tx)
	written, err := repo.UpdateIfCurrent(ctx, order.ID, order.Status, order.Version, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if !written {
		return nil, errStaleOrder
	}

	switch req.Target {
	case enums.OrderStatusPaid:
		resolver := s.resolver.WithTx(tx)
		for _, item := range order.Items {
			res, err := resolver.ForVariant(ctx, item.ProductID, item.VariantID)
			if err != nil {
				return nil, err
			}
			ref := orderReference(order, "order paid")
			ref.Label = item.ProductName
			if err := s.ledger.Consume(ctx, tx, res.Source, item.Quantity, inventory.StageOrderPaid, ref); err != nil {
				return nil, err
			}
		}
	case enums.OrderStatusCancelled:
		if _, err := s.ledger.Restore(ctx, tx, orderReference(order, "order cancelled")); err != nil {
			return nil, err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         req.Actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        order.Status,
			To:          req.Target,
			Note:        note,
			ChangedAt:   now,
		},
		OccurredAt: now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue status changed event")
	}

	updated, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, mapFindError(err)
	}
	return &transitionResult{order: updated, from: order.Status, to: req.Target}, nil
}

// afterTransition runs once the transition is committed.
func (s *service) afterTransition(ctx context.Context, result *transitionResult) {
	s.metrics.IncTransition(string(result.from), string(result.to))
	if result.to == enums.OrderStatusPaid {
		s.metrics.AddPaidRevenue(result.order.Total)
	}
	logCtx := s.logg.WithOrder(ctx, result.order.ID.String(), result.order.OrderNumber)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{"from": result.from, "to": result.to}), "orders.status_changed")
	s.notify(logCtx, result.order, result.to, statusMessage(result.order))
}

func statusMessage(order *models.Order) string {
	switch order.Status {
	case enums.OrderStatusPaid:
		return "Payment for order " + order.OrderNumber + " is confirmed."
	case enums.OrderStatusProcessing:
		return "Order " + order.OrderNumber + " is being produced."
	case enums.OrderStatusShipped:
		msg := "Order " + order.OrderNumber + " is on its way."
		if order.TrackingNumber != nil {
			msg += " Tracking number: " + *order.TrackingNumber + "."
		}
		return msg
	case enums.OrderStatusDelivered:
		return "Order " + order.OrderNumber + " was delivered."
	case enums.OrderStatusCancelled:
		return "Order " + order.OrderNumber + " was cancelled."
	default:
		return "Order " + order.OrderNumber + " was updated."
	}
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error) {
	if !input.Target.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", input.Target)
	}
	actor := &outbox.ActorRef{UserID: input.ActorID, Role: string(enums.UserRoleAdmin)}

	var result *transitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, input.OrderID)
		if err != nil {
			return mapFindError(err)
		}
		result, err = s.applyTransition(ctx, tx, order, transitionRequest{
			Target:         input.Target,
			Note:           input.Note,
			TrackingNumber: input.TrackingNumber,
			TrackingURL:    input.TrackingURL,
			Actor:          actor,
		})
		return err
	})
	if err != nil {
		s.metrics.IncRejected("update_status", string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.afterTransition(ctx, result)
	return toOrderDTO(result.order), nil
}

func (s *service) CancelByBuyer(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	var result *transitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			return mapFindError(err)
		}
		if !ownedBy(order, &userID) {
			return errOrderNotFound()
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeValidation, "only pending orders can be cancelled").
				WithDetails(map[string]any{"current": order.Status})
		}
		result, err = s.applyTransition(ctx, tx, order, transitionRequest{
			Target: enums.OrderStatusCancelled,
			Note:   noteCancelledByBuyer,
			Actor:  &outbox.ActorRef{UserID: &userID, Role: string(enums.UserRoleCustomer)},
		})
		return err
	})
	if err != nil {
		s.metrics.IncRejected("cancel", string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.afterTransition(ctx, result)
	return toOrderDTO(result.order), nil
}

// ApplyPayment feeds a verified gateway outcome into the order. Each
// (transaction id, status) pair takes effect at most once.
func (s *service) ApplyPayment(ctx context.Context, input PaymentInput) (*PaymentOutcome, error) {
	if strings.TrimSpace(input.OrderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if strings.TrimSpace(input.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown transaction status %q", input.Status)
	}

	switch input.Status {
	case enums.TransactionStatusApproved:
		return s.applyApproved(ctx, input)
	case enums.TransactionStatusDeclined, enums.TransactionStatusError:
		return s.applyDeclined(ctx, input)
	case enums.TransactionStatusVoided:
		return s.applyVoided(ctx, input)
	default:
		order, err := s.repo.FindByNumber(ctx, input.OrderNumber)
		if err != nil {
			return nil, mapFindError(err)
		}
		return &PaymentOutcome{Order: toOrderDTO(order), Message: noteAwaitingPayment}, nil
	}
}

// applyApproved retries while another writer keeps bumping a still pending
// order, then gives up with errStaleOrder so the event can be redelivered.
func (s *service) applyApproved(ctx context.Context, input PaymentInput) (*PaymentOutcome, error) {
	for attempt := 1; ; attempt++ {
		outcome, err := s.tryApproved(ctx, input)
		if !errors.Is(err, errStaleOrder) {
			return outcome, err
		}
		if attempt >= maxPaymentAttempts {
			s.metrics.IncRejected("apply_payment", string(pkgerrors.CodeOf(err)))
			return nil, err
		}
		s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt), "orders.payment_retry")
	}
}

func (s *service) tryApproved(ctx context.Context, input PaymentInput) (*PaymentOutcome, error) {
	var (
		result  *transitionResult
		current *models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByNumber(ctx, input.OrderNumber)
		if err != nil {
			return mapFindError(err)
		}
		current = order
		if order.Status != enums.OrderStatusPending {
			return nil
		}
		if err := s.recordTransaction(ctx, repo, order, input); err != nil {
			return err
		}
		txID := strings.TrimSpace(input.TransactionID)
		result, err = s.applyTransition(ctx, tx, order, transitionRequest{
			Target:     enums.OrderStatusPaid,
			PaymentRef: &txID,
			Actor:      &outbox.ActorRef{Role: "system", Source: sourceOrDefault(input.Source)},
		})
		return err
	})

	switch {
	case err == nil && result != nil:
		s.afterTransition(ctx, result)
		return &PaymentOutcome{Order: toOrderDTO(result.order), Applied: true, Message: "payment applied"}, nil
	case err == nil:
		return s.settledOutcome(ctx, current), nil
	case errors.Is(err, errStaleOrder), errors.Is(err, errAlreadyRecorded):
		order, findErr := s.repo.FindByNumber(ctx, input.OrderNumber)
		if findErr != nil {
			return nil, mapFindError(findErr)
		}
		if order.Status == enums.OrderStatusPending {
			return nil, errStaleOrder
		}
		return s.settledOutcome(ctx, order), nil
	default:
		s.metrics.IncRejected("apply_payment", string(pkgerrors.CodeOf(err)))
		return nil, err
	}
}

// settledOutcome answers an APPROVED event for an order that is no longer
// pending.
func (s *service) settledOutcome(ctx context.Context, order *models.Order) *PaymentOutcome {
	if order.Status == enums.OrderStatusCancelled {
		logCtx := s.logg.WithOrder(ctx, order.ID.String(), order.OrderNumber)
		s.logg.Warn(logCtx, "orders.payment_for_cancelled_order")
		return &PaymentOutcome{Order: toOrderDTO(order), Message: "order is cancelled, payment not applied"}
	}
	return &PaymentOutcome{Order: toOrderDTO(order), AlreadyPaid: true, Message: "order already paid"}
}

func (s *service) applyDeclined(ctx context.Context, input PaymentInput) (*PaymentOutcome, error) {
	var (
		order   *models.Order
		applied bool
	)
	note := "Payment " + strings.ToLower(string(input.Status)) + " by gateway, awaiting a new attempt"
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByNumber(ctx, input.OrderNumber)
		if err != nil {
			return mapFindError(err)
		}
		order = found
		if found.Status != enums.OrderStatusPending {
			return nil
		}
		if err := s.recordTransaction(ctx, repo, found, input); err != nil {
			return err
		}
		now := s.now()
		written, err := repo.UpdateIfCurrent(ctx, found.ID, found.Status, found.Version, map[string]any{
			"status_history": found.StatusHistory.Append(string(found.Status), note, now),
			"updated_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append payment note")
		}
		if !written {
			return errStaleOrder
		}
		order, err = repo.FindByID(ctx, found.ID)
		if err != nil {
			return mapFindError(err)
		}
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyRecorded) || errors.Is(err, errStaleOrder) {
			current, findErr := s.repo.FindByNumber(ctx, input.OrderNumber)
			if findErr != nil {
				return nil, mapFindError(findErr)
			}
			return &PaymentOutcome{Order: toOrderDTO(current), Message: "payment event already handled"}, nil
		}
		s.metrics.IncRejected("apply_payment", string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	if !applied {
		return &PaymentOutcome{Order: toOrderDTO(order), Message: "order is not pending, event ignored"}, nil
	}

	logCtx := s.logg.WithOrder(ctx, order.ID.String(), order.OrderNumber)
	s.logg.Info(s.logg.WithField(logCtx, "transaction_status", input.Status), "orders.payment_declined")
	s.notify(logCtx, order, order.Status, "Payment for order "+order.OrderNumber+" did not go through. You can try again.")
	return &PaymentOutcome{Order: toOrderDTO(order), Applied: true, Message: note}, nil
}

func (s *service) applyVoided(ctx context.Context, input PaymentInput) (*PaymentOutcome, error) {
	var (
		result  *transitionResult
		current *models.Order
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByNumber(ctx, input.OrderNumber)
		if err != nil {
			return mapFindError(err)
		}
		current = order
		if order.Status != enums.OrderStatusPaid {
			return nil
		}
		if err := s.recordTransaction(ctx, repo, order, input); err != nil {
			return err
		}
		result, err = s.applyTransition(ctx, tx, order, transitionRequest{
			Target: enums.OrderStatusCancelled,
			Note:   notePaymentVoided,
			Actor:  &outbox.ActorRef{Role: "system", Source: sourceOrDefault(input.Source)},
		})
		return err
	})
	switch {
	case err == nil && result != nil:
		s.afterTransition(ctx, result)
		return &PaymentOutcome{Order: toOrderDTO(result.order), Applied: true, Message: notePaymentVoided}, nil
	case err == nil:
		return &PaymentOutcome{Order: toOrderDTO(current), Message: "order is not paid, event ignored"}, nil
	case errors.Is(err, errStaleOrder), errors.Is(err, errAlreadyRecorded):
		order, findErr := s.repo.FindByNumber(ctx, input.OrderNumber)
		if findErr != nil {
			return nil, mapFindError(findErr)
		}
		return &PaymentOutcome{Order: toOrderDTO(order), Message: "payment event already handled"}, nil
	default:
		s.metrics.IncRejected("apply_payment", string(pkgerrors.CodeOf(err)))
		return nil, err
	}
}

// recordTransaction stores the (transaction id, status) pair. A duplicate
// means the event was applied before and the caller must roll back.
func (s *service) recordTransaction(ctx context.Context, repo Repository, order *models.Order, input PaymentInput) error {
	err := repo.RecordPaymentTransaction(ctx, &models.OrderPaymentTransaction{
		TransactionID: strings.TrimSpace(input.TransactionID),
		OrderID:       order.ID,
		Status:        input.Status,
		AmountInCents: input.AmountInCents,
		AppliedAt:     s.now(),
	})
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err, "") {
		return errAlreadyRecorded
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment transaction")
}

func sourceOrDefault(source string) string {
	if strings.TrimSpace(source) == "" {
		return gatewaySource
	}
	return source
}
