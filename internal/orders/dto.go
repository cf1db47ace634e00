package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/types"
)

// ListFilters describe the inputs supported by order listings. UserID is
// forced to the caller for buyers.
type ListFilters struct {
	Status   *enums.OrderStatus
	UserID   *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Sort     enums.OrderSort
}

// CartLine is one requested line of a new order.
type CartLine struct {
	ProductID     uuid.UUID     `json:"product_id" validate:"required"`
	Size          string        `json:"size" validate:"required,max=40"`
	Color         string        `json:"color" validate:"required,max=40"`
	Quantity      int           `json:"quantity" validate:"required,min=1,max=100"`
	Customization types.JSONMap `json:"customization,omitempty"`
}

// Buyer identifies who is placing an order.
type Buyer struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	Buyer           Buyer
	Lines           []CartLine
	ShippingAddress types.ShippingAddress
	PaymentMethod   enums.PaymentMethod
	Notes           *string
	Discount        int64
}

// UpdateStatusInput is an administrative transition request.
type UpdateStatusInput struct {
	OrderID        uuid.UUID
	Target         enums.OrderStatus
	Note           string
	TrackingNumber *string
	TrackingURL    *string
	ActorID        *uuid.UUID
}

// PaymentInput is a verified gateway outcome for an order.
type PaymentInput struct {
	OrderNumber   string
	TransactionID string
	Status        enums.TransactionStatus
	AmountInCents int64
	Source        string
}

// PaymentOutcome describes what ApplyPayment did.
type PaymentOutcome struct {
	Order       *OrderDTO
	Applied     bool
	AlreadyPaid bool
	Message     string
}

// OrderItemDTO is the buyer facing view of a placed line.
type OrderItemDTO struct {
	ID            uuid.UUID         `json:"id"`
	ProductID     uuid.UUID         `json:"product_id"`
	VariantID     uuid.UUID         `json:"variant_id"`
	ProductKind   enums.ProductKind `json:"product_kind"`
	ProductName   string            `json:"product_name"`
	ProductImage  *string           `json:"product_image,omitempty"`
	Size          string            `json:"size"`
	Color         string            `json:"color"`
	ColorCode     string            `json:"color_code"`
	UnitPrice     int64             `json:"unit_price"`
	Quantity      int               `json:"quantity"`
	Subtotal      int64             `json:"subtotal"`
	Customization types.JSONMap     `json:"customization,omitempty"`
}

// OrderDTO is the full order view.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"order_number"`
	UserID          uuid.UUID             `json:"user_id"`
	BuyerName       string                `json:"buyer_name"`
	BuyerEmail      string                `json:"buyer_email"`
	Status          enums.OrderStatus     `json:"status"`
	StatusLabel     string                `json:"status_label"`
	PaymentMethod   enums.PaymentMethod   `json:"payment_method"`
	PaymentRef      *string               `json:"payment_ref,omitempty"`
	Subtotal        int64                 `json:"subtotal"`
	ShippingCost    int64                 `json:"shipping_cost"`
	Discount        int64                 `json:"discount"`
	Tax             int64                 `json:"tax"`
	Total           int64                 `json:"total"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	StatusHistory   types.StatusHistory   `json:"status_history"`
	Notes           *string               `json:"notes,omitempty"`
	TrackingNumber  *string               `json:"tracking_number,omitempty"`
	TrackingURL     *string               `json:"tracking_url,omitempty"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	ShippedAt       *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	Items           []OrderItemDTO        `json:"items"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// PaymentTransactionDTO is a gateway outcome already applied to an order.
type PaymentTransactionDTO struct {
	TransactionID string                  `json:"transaction_id"`
	Status        enums.TransactionStatus `json:"status"`
	AmountInCents int64                   `json:"amount_in_cents"`
	AppliedAt     time.Time               `json:"applied_at"`
}

// OrderAudit is the operator view of an order: the order itself, every
// gateway transaction applied to it and every stock movement it caused.
type OrderAudit struct {
	*OrderDTO
	PaymentTransactions []PaymentTransactionDTO `json:"payment_transactions"`
	Movements           []inventory.Movement    `json:"movements"`
}

// OrderSummary is the list row view.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"order_number"`
	BuyerName     string              `json:"buyer_name"`
	BuyerEmail    string              `json:"buyer_email"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Total         int64               `json:"total"`
	TotalItems    int                 `json:"total_items"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// OrderStats aggregates order counts and revenue for the admin dashboard.
type OrderStats struct {
	TotalOrders       int64                       `json:"total_orders"`
	ByStatus          map[enums.OrderStatus]int64 `json:"by_status"`
	Revenue           int64                       `json:"revenue"`
	AverageOrderValue int64                       `json:"average_order_value"`
}

func toOrderDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ID:            item.ID,
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			ProductKind:   item.ProductKind,
			ProductName:   item.ProductName,
			ProductImage:  item.ProductImage,
			Size:          item.SizeLabel,
			Color:         item.ColorLabel,
			ColorCode:     item.ColorCode,
			UnitPrice:     item.UnitPrice,
			Quantity:      item.Quantity,
			Subtotal:      item.Subtotal,
			Customization: item.Customization,
		})
	}
	history := order.StatusHistory
	if history == nil {
		history = types.StatusHistory{}
	}
	return &OrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		BuyerName:       order.BuyerName,
		BuyerEmail:      order.BuyerEmail,
		Status:          order.Status,
		StatusLabel:     order.Status.Label(),
		PaymentMethod:   order.PaymentMethod,
		PaymentRef:      order.PaymentRef,
		Subtotal:        order.Subtotal,
		ShippingCost:    order.ShippingCost,
		Discount:        order.Discount,
		Tax:             order.Tax,
		Total:           order.Total,
		ShippingAddress: order.ShippingAddress,
		StatusHistory:   history,
		Notes:           order.Notes,
		TrackingNumber:  order.TrackingNumber,
		TrackingURL:     order.TrackingURL,
		PaidAt:          order.PaidAt,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CancelledAt:     order.CancelledAt,
		Items:           items,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderSummary(order models.Order) OrderSummary {
	totalItems := 0
	for _, item := range order.Items {
		totalItems += item.Quantity
	}
	return OrderSummary{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		BuyerName:     order.BuyerName,
		BuyerEmail:    order.BuyerEmail,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
		TotalItems:    totalItems,
		CreatedAt:     order.CreatedAt,
	}
}

func toPaymentTransactions(rows []models.OrderPaymentTransaction) []PaymentTransactionDTO {
	out := make([]PaymentTransactionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, PaymentTransactionDTO{
			TransactionID: row.TransactionID,
			Status:        row.Status,
			AmountInCents: row.AmountInCents,
			AppliedAt:     row.AppliedAt,
		})
	}
	return out
}
