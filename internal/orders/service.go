package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/internal/settings"
	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/outbox/payloads"
	"github.com/printlab/printlab-backend/pkg/pagination"
	"github.com/printlab/printlab-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type pricingProvider interface {
	Pricing(ctx context.Context) (settings.Pricing, error)
}

// Notifier tells a buyer about their order. Delivery is best effort.
type Notifier interface {
	NotifyOrderStatus(ctx context.Context, email, orderNumber string, status enums.OrderStatus, message string) error
}

// Service defines the order lifecycle: placement, reads and status changes.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, ownerID *uuid.UUID) (*OrderDTO, error)
	GetOrderByNumber(ctx context.Context, orderNumber string, ownerID *uuid.UUID) (*OrderDTO, error)
	GetStats(ctx context.Context) (*OrderStats, error)
	GetOrderAudit(ctx context.Context, orderID uuid.UUID) (*OrderAudit, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error)
	CancelByBuyer(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	ApplyPayment(ctx context.Context, input PaymentInput) (*PaymentOutcome, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Resolver *inventory.Resolver
	Ledger   *inventory.Ledger
	Pricing  pricingProvider
	Notifier Notifier
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics
	// Location decides which calendar day an order number belongs to.
	Location *time.Location
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	resolver *inventory.Resolver
	ledger   *inventory.Ledger
	pricing  pricingProvider
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.OrderMetrics
	location *time.Location
	clock    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("stock resolver required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing provider required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		resolver: params.Resolver,
		ledger:   params.Ledger,
		pricing:  params.Pricing,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		location: loc,
		clock:    clock,
	}, nil
}

func (s *service) now() time.Time {
	return s.clock().UTC()
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if err := validateCreateInput(input); err != nil {
		s.metrics.IncRejected("create", string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	pricing, err := s.pricing.Pricing(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pricing configuration")
	}

	now := s.now()
	day := sequenceDay(now, s.location)

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		resolver := s.resolver.WithTx(tx)

		resolutions := make([]*inventory.Resolution, 0, len(input.Lines))
		items := make([]models.OrderItem, 0, len(input.Lines))
		var subtotal int64
		for _, line := range input.Lines {
			res, err := resolveLine(ctx, resolver, line)
			if err != nil {
				return err
			}
			unitPrice := res.UnitPrice()
			lineTotal := unitPrice * int64(line.Quantity)
			subtotal += lineTotal
			resolutions = append(resolutions, res)
			items = append(items, models.OrderItem{
				ProductID:     res.Product.ID,
				VariantID:     res.Variant.ID,
				ProductKind:   res.Product.Kind,
				ProductName:   res.Product.Name,
				ProductImage:  res.Product.ImageURL,
				SizeLabel:     res.Variant.SizeName,
				ColorLabel:    res.Variant.ColorName,
				ColorCode:     res.Variant.ColorCode,
				UnitPrice:     unitPrice,
				Quantity:      line.Quantity,
				Subtotal:      lineTotal,
				Customization: line.Customization,
				CreatedAt:     now,
			})
		}

		totals := ComputeTotals(subtotal, pricing)

		seq, err := repo.NextSequence(ctx, sequenceKey(day), now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate order number")
		}

		order := &models.Order{
			OrderNumber:     FormatOrderNumber(day, seq),
			UserID:          input.Buyer.UserID,
			BuyerName:       strings.TrimSpace(input.Buyer.Name),
			BuyerEmail:      strings.ToLower(strings.TrimSpace(input.Buyer.Email)),
			Subtotal:        totals.Subtotal,
			ShippingCost:    totals.ShippingCost,
			Discount:        totals.Discount,
			Tax:             totals.Tax,
			Total:           totals.Total,
			Status:          enums.OrderStatusPending,
			Version:         1,
			PaymentMethod:   input.PaymentMethod,
			StatusHistory:   types.StatusHistory{}.Append(string(enums.OrderStatusPending), "Order created", now),
			ShippingAddress: input.ShippingAddress.Normalized(),
			Notes:           trimmedOrNil(input.Notes),
			Items:           items,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}

		for i, res := range resolutions {
			ref := orderReference(order, "order created")
			ref.Label = res.Product.Name
			if err := s.ledger.Consume(ctx, tx, res.Source, items[i].Quantity, inventory.StageOrderCreated, ref); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: &order.UserID, Role: string(enums.UserRoleCustomer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				UserID:        order.UserID,
				Total:         order.Total,
				PaymentMethod: order.PaymentMethod,
				ItemCount:     len(order.Items),
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue order created event")
		}

		created = order
		return nil
	})
	if err != nil {
		s.metrics.IncRejected("create", string(pkgerrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.IncCreated()
	logCtx := s.logg.WithOrder(ctx, created.ID.String(), created.OrderNumber)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{"total": created.Total, "items": len(created.Items)}), "orders.created")
	s.notify(logCtx, created, enums.OrderStatusPending, "We received your order "+created.OrderNumber+".")
	return toOrderDTO(created), nil
}

func resolveLine(ctx context.Context, resolver *inventory.Resolver, line CartLine) (*inventory.Resolution, error) {
	res, err := resolver.Lookup(ctx, inventory.Line{
		ProductID: line.ProductID,
		Size:      line.Size,
		Color:     line.Color,
		Quantity:  line.Quantity,
	})
	if err != nil {
		if errors.Is(err, inventory.ErrVariantNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, pkgerrors.As(err).Message()).
				WithDetails(map[string]any{"product_id": line.ProductID.String(), "size": line.Size, "color": line.Color})
		}
		return nil, err
	}
	if !res.Product.IsActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is no longer available", res.Product.Name).
			WithDetails(map[string]any{"product_id": res.Product.ID.String()})
	}
	if err := res.Require(line.Quantity); err != nil {
		return nil, err
	}
	return res, nil
}

func validateCreateInput(input CreateOrderInput) error {
	if input.Buyer.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if strings.TrimSpace(input.Buyer.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer email required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for i, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: product id required", i+1)
		}
		if line.Quantity <= 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: quantity must be positive", i+1)
		}
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.PaymentMethod)
	}
	return nil
}

func (s *service) ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateFrom.After(*filters.DateTo) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date_from must not be after date_to")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	list := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, toOrderSummary(row))
	}
	return list, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, ownerID *uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	if !ownedBy(order, ownerID) {
		return nil, errOrderNotFound()
	}
	return toOrderDTO(order), nil
}

func (s *service) GetOrderByNumber(ctx context.Context, orderNumber string, ownerID *uuid.UUID) (*OrderDTO, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, mapFindError(err)
	}
	if !ownedBy(order, ownerID) {
		return nil, errOrderNotFound()
	}
	return toOrderDTO(order), nil
}

func (s *service) GetStats(ctx context.Context) (*OrderStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order stats")
	}
	return stats, nil
}

// GetOrderAudit loads an order with its applied gateway transactions and
// its stock movements. It is not ownership scoped.
func (s *service) GetOrderAudit(ctx context.Context, orderID uuid.UUID) (*OrderAudit, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	txns, err := s.repo.ListPaymentTransactions(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment transactions")
	}
	movements, err := s.ledger.OrderMovements(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &OrderAudit{
		OrderDTO:            toOrderDTO(order),
		PaymentTransactions: toPaymentTransactions(txns),
		Movements:           movements,
	}, nil
}

// ownedBy hides other buyers' orders behind the same not-found answer as a
// missing order.
func ownedBy(order *models.Order, ownerID *uuid.UUID) bool {
	return ownerID == nil || order.UserID == *ownerID
}

func errOrderNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errOrderNotFound()
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
}

func orderReference(order *models.Order, reason string) inventory.Reference {
	return inventory.Reference{
		Type:   enums.MovementReferenceOrder,
		ID:     order.ID,
		Label:  order.OrderNumber,
		Reason: reason,
	}
}

// notify hands the message to the notifier after commit. Failures are logged only.
func (s *service) notify(ctx context.Context, order *models.Order, status enums.OrderStatus, message string) {
	if err := s.notifier.NotifyOrderStatus(ctx, order.BuyerEmail, order.OrderNumber, status, message); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "orders.notify_failed")
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
