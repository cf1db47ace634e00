package notifications

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service queues buyer notifications on the outbox. The mail sender consumes
// them from the notification topic.
type Service struct {
	tx     txRunner
	outbox emitter
	logg   *logger.Logger
	clock  func() time.Time
}

// NewService wires notification dependencies.
func NewService(tx txRunner, outbox emitter, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{tx: tx, outbox: outbox, logg: logg, clock: time.Now}, nil
}

// NotifyOrderStatus records a notification request in its own transaction.
func (s *Service) NotifyOrderStatus(ctx context.Context, email, orderNumber string, status enums.OrderStatus, message string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification email")
	}
	if strings.TrimSpace(orderNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if !status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", status)
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   uuid.New(),
		Actor:         &outbox.ActorRef{Role: "system", Source: "orders"},
		Data: payloads.NotificationRequestedEvent{
			Email:       email,
			OrderNumber: orderNumber,
			Status:      status,
			Message:     strings.TrimSpace(message),
		},
		OccurredAt: s.clock().UTC(),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"order_number": orderNumber,
		"status":       status,
	}), "notifications.queued")
	return nil
}
