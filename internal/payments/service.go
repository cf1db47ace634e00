package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/printlab/printlab-backend/internal/orders"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/gateway"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
)

const (
	sourceWebhook = "webhook"
	sourceConfirm = "confirm"

	outcomeApplied           = "applied"
	outcomeIgnored           = "ignored"
	outcomeAlreadyPaid       = "already_paid"
	outcomeDuplicate         = "duplicate"
	outcomeInvalidSignature  = "invalid_signature"
	outcomeInvalidPayload    = "invalid_payload"
	outcomeReferenceMismatch = "reference_mismatch"
	outcomeFailed            = "failed"
)

type orderReconciler interface {
	GetOrderByNumber(ctx context.Context, orderNumber string, ownerID *uuid.UUID) (*orders.OrderDTO, error)
	ApplyPayment(ctx context.Context, input orders.PaymentInput) (*orders.PaymentOutcome, error)
}

type transactionFetcher interface {
	GetTransaction(ctx context.Context, transactionID string) (*gateway.Transaction, error)
}

// Result is what the webhook endpoint reports back to the gateway.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Confirmation is the answer to a buyer confirming a payment after the
// gateway redirect.
type Confirmation struct {
	Order             *orders.OrderDTO        `json:"order"`
	TransactionStatus enums.TransactionStatus `json:"transaction_status"`
	Applied           bool                    `json:"applied"`
	AlreadyPaid       bool                    `json:"already_paid"`
	Message           string                  `json:"message"`
}

// Verification is the gateway's current view of a transaction alongside the
// local order it references, when one exists.
type Verification struct {
	TransactionID     string                  `json:"transaction_id"`
	Status            enums.TransactionStatus `json:"status"`
	Reference         string                  `json:"reference"`
	AmountInCents     int64                   `json:"amount_in_cents"`
	Currency          string                  `json:"currency,omitempty"`
	PaymentMethodType string                  `json:"payment_method_type,omitempty"`
	StatusMessage     string                  `json:"status_message,omitempty"`
	OrderStatus       *enums.OrderStatus      `json:"order_status,omitempty"`
	AmountMatches     *bool                   `json:"amount_matches,omitempty"`
}

type ServiceParams struct {
	Orders   orderReconciler
	Gateway  transactionFetcher
	Verifier *SignatureVerifier
	Replay   *ReplayGuard
	Logger   *logger.Logger
	Metrics  *metrics.PaymentMetrics
}

// Service reconciles gateway transaction state into orders.
type Service struct {
	orders   orderReconciler
	gateway  transactionFetcher
	verifier *SignatureVerifier
	replay   *ReplayGuard
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	verifier := params.Verifier
	if verifier == nil {
		verifier = NewSignatureVerifier("")
	}
	return &Service{
		orders:   params.Orders,
		gateway:  params.Gateway,
		verifier: verifier,
		replay:   params.Replay,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// ValidateWebhookSignature reports whether the event carries a valid checksum.
// It always passes when no events secret is configured.
func (s *Service) ValidateWebhookSignature(event *TransactionEvent) bool {
	return s.verifier.Verify(event)
}

// HandleWebhook parses, authenticates and reconciles a raw webhook body.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) Result {
	event, err := ParseTransactionEvent(body)
	if err != nil {
		s.metrics.IncEvent(sourceWebhook, "", outcomeInvalidPayload)
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "payments.webhook_rejected")
		return Result{Success: false, Message: "invalid event payload"}
	}
	if !s.ValidateWebhookSignature(event) {
		txn := event.Data.Transaction
		s.metrics.IncEvent(sourceWebhook, string(txn.Status), outcomeInvalidSignature)
		s.logg.Warn(s.eventContext(ctx, txn.Reference, txn.ID, txn.Status), "payments.invalid_signature")
		return Result{Success: false, Message: "invalid signature"}
	}
	return s.ProcessTransactionEvent(ctx, event)
}

// ProcessTransactionEvent applies a verified event to its order. Failures are
// reported in the result, never returned.
func (s *Service) ProcessTransactionEvent(ctx context.Context, event *TransactionEvent) Result {
	if event == nil {
		return Result{Success: false, Message: "event required"}
	}
	txn := event.Data.Transaction
	logCtx := s.eventContext(ctx, txn.Reference, txn.ID, txn.Status)

	if event.Event != "" && event.Event != EventTransactionUpdated {
		s.metrics.IncEvent(sourceWebhook, string(txn.Status), outcomeIgnored)
		s.logg.Info(s.logg.WithField(logCtx, "event", event.Event), "payments.event_ignored")
		return Result{Success: true, Message: "event ignored"}
	}

	seen, err := s.replay.CheckAndMark(ctx, txn.ID, string(txn.Status))
	if err != nil {
		// Redis is an optimization; the order registry still rejects replays.
		s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "payments.replay_guard_unavailable")
	} else if seen {
		s.metrics.IncEvent(sourceWebhook, string(txn.Status), outcomeDuplicate)
		s.logg.Info(logCtx, "payments.event_duplicate")
		return Result{Success: true, Message: "event already processed"}
	}

	outcome, err := s.reconcile(ctx, sourceWebhook, txn.ID, txn.Reference, txn.Status, txn.AmountInCents)
	if err != nil {
		if releaseErr := s.replay.Release(ctx, txn.ID, string(txn.Status)); releaseErr != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "reason", releaseErr.Error()), "payments.replay_release_failed")
		}
		s.metrics.IncEvent(sourceWebhook, string(txn.Status), outcomeFailed)
		s.logg.Error(logCtx, "payments.event_failed", err)
		return Result{Success: false, Message: failureMessage(err)}
	}
	return Result{Success: true, Message: outcome.Message}
}

// GetTransactionDetails pulls the transaction straight from the gateway.
func (s *Service) GetTransactionDetails(ctx context.Context, transactionID string) (*gateway.Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	return s.gateway.GetTransaction(ctx, transactionID)
}

// VerifyTransaction reports the gateway status of a transaction and how it
// lines up with the referenced order.
func (s *Service) VerifyTransaction(ctx context.Context, transactionID string) (*Verification, error) {
	txn, err := s.GetTransactionDetails(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	out := &Verification{
		TransactionID:     txn.ID,
		Status:            txn.Status,
		Reference:         txn.Reference,
		AmountInCents:     txn.AmountInCents,
		Currency:          txn.Currency,
		PaymentMethodType: txn.PaymentMethodType,
		StatusMessage:     txn.StatusMessage,
	}
	if txn.Reference == "" {
		return out, nil
	}
	order, err := s.orders.GetOrderByNumber(ctx, txn.Reference, nil)
	switch {
	case err == nil:
		status := order.Status
		matches := expectedCents(order) == txn.AmountInCents
		out.OrderStatus = &status
		out.AmountMatches = &matches
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
	default:
		return nil, err
	}
	return out, nil
}

// ConfirmPaymentByTransaction lets a buyer returning from the gateway redirect
// settle their order before the webhook lands. The transaction must reference
// orderNumber; a mismatch fails without touching any order.
func (s *Service) ConfirmPaymentByTransaction(ctx context.Context, transactionID, orderNumber string, ownerID *uuid.UUID) (*Confirmation, error) {
	transactionID = strings.TrimSpace(transactionID)
	orderNumber = strings.TrimSpace(orderNumber)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}

	txn, err := s.gateway.GetTransaction(ctx, transactionID)
	if err != nil {
		s.metrics.IncEvent(sourceConfirm, "", outcomeFailed)
		return nil, err
	}
	logCtx := s.eventContext(ctx, orderNumber, txn.ID, txn.Status)
	if txn.Reference != orderNumber {
		s.metrics.IncEvent(sourceConfirm, string(txn.Status), outcomeReferenceMismatch)
		s.logg.Warn(s.logg.WithField(logCtx, "transaction_reference", txn.Reference), "payments.reference_mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction does not belong to this order").
			WithDetails(map[string]any{"order_number": orderNumber, "transaction_id": txn.ID})
	}

	order, err := s.orders.GetOrderByNumber(ctx, orderNumber, ownerID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusPaid {
		s.metrics.IncEvent(sourceConfirm, string(txn.Status), outcomeAlreadyPaid)
		return &Confirmation{
			Order:             order,
			TransactionStatus: txn.Status,
			AlreadyPaid:       true,
			Message:           "order already paid",
		}, nil
	}

	outcome, err := s.reconcile(ctx, sourceConfirm, txn.ID, orderNumber, txn.Status, txn.AmountInCents)
	if err != nil {
		s.metrics.IncEvent(sourceConfirm, string(txn.Status), outcomeFailed)
		s.logg.Error(logCtx, "payments.confirm_failed", err)
		return nil, err
	}
	return &Confirmation{
		Order:             outcome.Order,
		TransactionStatus: txn.Status,
		Applied:           outcome.Applied,
		AlreadyPaid:       outcome.AlreadyPaid,
		Message:           outcome.Message,
	}, nil
}

// reconcile cross-checks the amount and hands the status to the order
// lifecycle. An amount mismatch is logged and counted but does not block.
func (s *Service) reconcile(ctx context.Context, source, transactionID, orderNumber string, status enums.TransactionStatus, amountInCents int64) (*orders.PaymentOutcome, error) {
	logCtx := s.eventContext(ctx, orderNumber, transactionID, status)

	order, err := s.orders.GetOrderByNumber(ctx, orderNumber, nil)
	if err != nil {
		return nil, err
	}
	if expected := expectedCents(order); expected != amountInCents {
		s.metrics.IncAmountMismatch()
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"expected_cents": expected,
			"received_cents": amountInCents,
		}), "payments.amount_mismatch")
	}

	outcome, err := s.orders.ApplyPayment(ctx, orders.PaymentInput{
		OrderNumber:   orderNumber,
		TransactionID: transactionID,
		Status:        status,
		AmountInCents: amountInCents,
		Source:        source,
	})
	if err != nil {
		return nil, err
	}

	label := outcomeIgnored
	switch {
	case outcome.Applied:
		label = outcomeApplied
	case outcome.AlreadyPaid:
		label = outcomeAlreadyPaid
	}
	s.metrics.IncEvent(source, string(status), label)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"outcome": label,
		"source":  source,
	}), "payments.event_reconciled")
	return outcome, nil
}

func (s *Service) eventContext(ctx context.Context, orderNumber, transactionID string, status enums.TransactionStatus) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"order_number":   orderNumber,
		"transaction_id": transactionID,
		"gateway_status": string(status),
	})
}

// expectedCents converts the order total, kept in whole pesos, to gateway cents.
func expectedCents(order *orders.OrderDTO) int64 {
	return order.Total * 100
}

func failureMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		if pkgerrors.MetadataFor(typed.Code()).HTTPStatus < 500 {
			return typed.Message()
		}
	}
	return "event could not be processed"
}
