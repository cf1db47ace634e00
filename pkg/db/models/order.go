package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/types"
)

// Order is a buyer order. Status changes go through the order state machine only.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	BuyerName       string                `gorm:"column:buyer_name;not null"`
	BuyerEmail      string                `gorm:"column:buyer_email;not null"`
	Subtotal        int64                 `gorm:"column:subtotal;not null"`
	ShippingCost    int64                 `gorm:"column:shipping_cost;not null;default:0"`
	Discount        int64                 `gorm:"column:discount;not null;default:0"`
	Tax             int64                 `gorm:"column:tax;not null;default:0"`
	Total           int64                 `gorm:"column:total;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'PENDING';index"`
	Version         int                   `gorm:"column:version;not null;default:1"`
	PaymentMethod   enums.PaymentMethod   `gorm:"column:payment_method;type:text;not null"`
	PaymentRef      *string               `gorm:"column:payment_ref"`
	StatusHistory   types.StatusHistory   `gorm:"column:status_history;type:jsonb;not null"`
	ShippingAddress types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	Notes           *string               `gorm:"column:notes"`
	TrackingNumber  *string               `gorm:"column:tracking_number"`
	TrackingURL     *string               `gorm:"column:tracking_url"`
	PaidAt          *time.Time            `gorm:"column:paid_at"`
	ShippedAt       *time.Time            `gorm:"column:shipped_at"`
	DeliveredAt     *time.Time            `gorm:"column:delivered_at"`
	CancelledAt     *time.Time            `gorm:"column:cancelled_at"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots the product as it was when the order was placed.
type OrderItem struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID     uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	VariantID     uuid.UUID         `gorm:"column:variant_id;type:uuid;not null"`
	ProductKind   enums.ProductKind `gorm:"column:product_kind;type:text;not null"`
	ProductName   string            `gorm:"column:product_name;not null"`
	ProductImage  *string           `gorm:"column:product_image"`
	SizeLabel     string            `gorm:"column:size_label;not null"`
	ColorLabel    string            `gorm:"column:color_label;not null"`
	ColorCode     string            `gorm:"column:color_code;not null"`
	UnitPrice     int64             `gorm:"column:unit_price;not null"`
	Quantity      int               `gorm:"column:quantity;not null"`
	Subtotal      int64             `gorm:"column:subtotal;not null"`
	Customization types.JSONMap     `gorm:"column:customization;type:jsonb"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// OrderSequence is the per-day counter behind human readable order numbers.
type OrderSequence struct {
	Day       string    `gorm:"column:day;primaryKey"`
	LastValue int       `gorm:"column:last_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderPaymentTransaction records a gateway transaction outcome already
// applied to an order. A transaction id may appear once per status.
type OrderPaymentTransaction struct {
	TransactionID string                  `gorm:"column:transaction_id;primaryKey"`
	OrderID       uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Status        enums.TransactionStatus `gorm:"column:status;type:text;primaryKey"`
	AmountInCents int64                   `gorm:"column:amount_in_cents;not null"`
	AppliedAt     time.Time               `gorm:"column:applied_at;autoCreateTime"`
}
