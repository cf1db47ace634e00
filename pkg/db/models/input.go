package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Input is a raw material consumed by template products.
type Input struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name      string         `gorm:"column:name;not null"`
	Unit      string         `gorm:"column:unit;not null;default:'unit'"`
	IsActive  bool           `gorm:"column:is_active;not null;default:true"`
	Variants  []InputVariant `gorm:"foreignKey:InputID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Input) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// InputVariant is a stock-tracked unit of an input. Nil color or size means
// the unit is not varied along that axis.
type InputVariant struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	InputID      uuid.UUID `gorm:"column:input_id;type:uuid;not null;index"`
	ColorCode    *string   `gorm:"column:color_code"`
	SizeName     *string   `gorm:"column:size_name"`
	CurrentStock int       `gorm:"column:current_stock;not null;default:0"`
	MinStock     int       `gorm:"column:min_stock;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *InputVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
