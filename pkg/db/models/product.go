package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/enums"
)

// Product is a catalog entry. Kind selects how sellable quantity is derived.
type Product struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name      string            `gorm:"column:name;not null"`
	Kind      enums.ProductKind `gorm:"column:kind;type:text;not null;default:'regular'"`
	BasePrice int64             `gorm:"column:base_price;not null"`
	ImageURL  *string           `gorm:"column:image_url"`
	IsActive  bool              `gorm:"column:is_active;not null;default:true"`
	// Stock is unused for template products; their availability derives from Recipe.
	Stock     int              `gorm:"column:stock;not null;default:0"`
	Variants  []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Recipe    []RecipeItem     `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductVariant is a sellable color x size combination.
type ProductVariant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	ColorCode string    `gorm:"column:color_code;not null"`
	ColorName string    `gorm:"column:color_name;not null"`
	SizeName  string    `gorm:"column:size_name;not null"`
	SizeAbbr  string    `gorm:"column:size_abbr;not null;default:''"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	MinStock  int       `gorm:"column:min_stock;not null;default:0"`
	// Price overrides Product.BasePrice when set.
	Price     *int64    `gorm:"column:price"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// RecipeItem states how much of an input one unit of a template product consumes.
type RecipeItem struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	InputID         uuid.UUID `gorm:"column:input_id;type:uuid;not null"`
	QuantityPerUnit int       `gorm:"column:quantity_per_unit;not null"`
	Input           *Input    `gorm:"foreignKey:InputID"`
}

func (r *RecipeItem) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
