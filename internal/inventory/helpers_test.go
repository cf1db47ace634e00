package inventory

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/logger"
)

func setupInventoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Product{},
		&models.ProductVariant{},
		&models.Input{},
		&models.InputVariant{},
		&models.RecipeItem{},
		&models.VariantMovement{},
		&models.InputMovement{},
	))
	return conn
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard})
}

func newLedger(t *testing.T, db *gorm.DB) *Ledger {
	t.Helper()
	ledger, err := NewLedger(NewRepository(db), testLogger(), nil)
	require.NoError(t, err)
	return ledger
}

func newResolver(t *testing.T, db *gorm.DB) *Resolver {
	t.Helper()
	resolver, err := NewResolver(NewRepository(db))
	require.NoError(t, err)
	return resolver
}

func seedRegularProduct(t *testing.T, db *gorm.DB, price int64, stock int) (*models.Product, *models.ProductVariant) {
	t.Helper()
	product := &models.Product{Name: "Classic Tee", Kind: enums.ProductKindRegular, BasePrice: price, IsActive: true}
	require.NoError(t, db.Create(product).Error)
	variant := &models.ProductVariant{
		ProductID: product.ID,
		ColorCode: "#FF0000",
		ColorName: "Red",
		SizeName:  "Medium",
		SizeAbbr:  "M",
		Stock:     stock,
		MinStock:  2,
		IsActive:  true,
	}
	require.NoError(t, db.Create(variant).Error)
	return product, variant
}

type templateFixture struct {
	Product    *models.Product
	Variant    *models.ProductVariant
	Blank      *models.InputVariant
	Ink        *models.InputVariant
	GenericInk *models.InputVariant
}

// seedTemplateProduct builds a printed mug needing 1 blank mug and 2 ink units per unit.
func seedTemplateProduct(t *testing.T, db *gorm.DB, blankStock, inkStock int) templateFixture {
	t.Helper()
	product := &models.Product{Name: "Custom Mug", Kind: enums.ProductKindTemplate, BasePrice: 30000, IsActive: true}
	require.NoError(t, db.Create(product).Error)
	variant := &models.ProductVariant{
		ProductID: product.ID,
		ColorCode: "#ffffff",
		ColorName: "White",
		SizeName:  "Standard",
		SizeAbbr:  "STD",
		IsActive:  true,
	}
	require.NoError(t, db.Create(variant).Error)

	blank := &models.Input{Name: "Blank mug"}
	ink := &models.Input{Name: "Sublimation ink"}
	require.NoError(t, db.Create(blank).Error)
	require.NoError(t, db.Create(ink).Error)
	require.NoError(t, db.Create(&models.RecipeItem{ProductID: product.ID, InputID: blank.ID, QuantityPerUnit: 1}).Error)
	require.NoError(t, db.Create(&models.RecipeItem{ProductID: product.ID, InputID: ink.ID, QuantityPerUnit: 2}).Error)

	white := "FFFFFF"
	blankUnit := &models.InputVariant{InputID: blank.ID, ColorCode: &white, CurrentStock: blankStock}
	inkUnit := &models.InputVariant{InputID: ink.ID, ColorCode: &white, CurrentStock: inkStock}
	genericInk := &models.InputVariant{InputID: ink.ID, CurrentStock: 1000}
	require.NoError(t, db.Create(blankUnit).Error)
	require.NoError(t, db.Create(inkUnit).Error)
	require.NoError(t, db.Create(genericInk).Error)

	return templateFixture{Product: product, Variant: variant, Blank: blankUnit, Ink: inkUnit, GenericInk: genericInk}
}

func variantStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var v models.ProductVariant
	require.NoError(t, db.First(&v, "id = ?", id).Error)
	return v.Stock
}

func inputStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var v models.InputVariant
	require.NoError(t, db.First(&v, "id = ?", id).Error)
	return v.CurrentStock
}

func withTx(t *testing.T, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	t.Helper()
	return db.WithContext(context.Background()).Transaction(fn)
}
