package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/printlab/printlab-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once an order and its items are committed.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	Total         int64               `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ItemCount     int                 `json:"item_count"`
}

// OrderStatusChangedEvent is emitted for every committed status transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Note        string            `json:"note,omitempty"`
	ChangedAt   time.Time         `json:"changed_at"`
}

// NotificationRequestedEvent asks the mail sender to tell a buyer about their order.
type NotificationRequestedEvent struct {
	Email       string            `json:"email"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Message     string            `json:"message"`
}
