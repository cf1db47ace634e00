package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/enums"
)

// VariantMovement is an immutable ledger row for a product variant stock delta.
type VariantMovement struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	VariantID     uuid.UUID               `gorm:"column:variant_id;type:uuid;not null;index"`
	MovementType  enums.MovementType      `gorm:"column:movement_type;type:text;not null"`
	Quantity      int                     `gorm:"column:quantity;not null"`
	PreviousStock int                     `gorm:"column:previous_stock;not null"`
	NewStock      int                     `gorm:"column:new_stock;not null"`
	ReferenceType enums.MovementReference `gorm:"column:reference_type;type:text"`
	ReferenceID   *uuid.UUID              `gorm:"column:reference_id;type:uuid;index"`
	Reason        string                  `gorm:"column:reason;not null;default:''"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (m *VariantMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// InputMovement is an immutable ledger row for an input variant stock delta.
type InputMovement struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	InputVariantID uuid.UUID               `gorm:"column:input_variant_id;type:uuid;not null;index"`
	MovementType   enums.MovementType      `gorm:"column:movement_type;type:text;not null"`
	Quantity       int                     `gorm:"column:quantity;not null"`
	PreviousStock  int                     `gorm:"column:previous_stock;not null"`
	NewStock       int                     `gorm:"column:new_stock;not null"`
	ReferenceType  enums.MovementReference `gorm:"column:reference_type;type:text"`
	ReferenceID    *uuid.UUID              `gorm:"column:reference_id;type:uuid;index"`
	Reason         string                  `gorm:"column:reason;not null;default:''"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (m *InputMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
