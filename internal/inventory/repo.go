package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
)

// errStockGuard is returned when a decrement would push stock below zero.
var errStockGuard = errors.New("inventory: stock guard rejected decrement")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Recipe.Input").
		Where("id = ?", productID).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindInputVariants(ctx context.Context, inputIDs []uuid.UUID) ([]models.InputVariant, error) {
	if len(inputIDs) == 0 {
		return nil, nil
	}
	var variants []models.InputVariant
	err := r.db.WithContext(ctx).
		Where("input_id IN ?", inputIDs).
		Order("created_at ASC").
		Find(&variants).Error
	if err != nil {
		return nil, err
	}
	return variants, nil
}

// VariantStock reads the stored stock of one variant. A missing row is
// gorm.ErrRecordNotFound.
func (r *repository) VariantStock(ctx context.Context, variantID uuid.UUID) (int, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).Select("id", "stock").Where("id = ?", variantID).Take(&variant).Error
	return variant.Stock, err
}

func (r *repository) InputStock(ctx context.Context, inputVariantID uuid.UUID) (int, error) {
	var unit models.InputVariant
	err := r.db.WithContext(ctx).Select("id", "current_stock").Where("id = ?", inputVariantID).Take(&unit).Error
	return unit.CurrentStock, err
}

type stockRow struct {
	Stock int `gorm:"column:stock"`
}

// AdjustVariantStock applies delta in a single statement and returns the
// stock the database holds afterwards. Decrements never go below zero.
func (r *repository) AdjustVariantStock(ctx context.Context, variantID uuid.UUID, delta int) (int, error) {
	return r.adjust(ctx,
		`UPDATE product_variants SET stock = stock + ?, updated_at = ? WHERE id = ? AND stock + ? >= 0 RETURNING stock`,
		delta, variantID)
}

func (r *repository) AdjustInputStock(ctx context.Context, inputVariantID uuid.UUID, delta int) (int, error) {
	return r.adjust(ctx,
		`UPDATE input_variants SET current_stock = current_stock + ?, updated_at = ? WHERE id = ? AND current_stock + ? >= 0 RETURNING current_stock AS stock`,
		delta, inputVariantID)
}

func (r *repository) adjust(ctx context.Context, query string, delta int, id uuid.UUID) (int, error) {
	var rows []stockRow
	if err := r.db.WithContext(ctx).Raw(query, delta, time.Now().UTC(), id, delta).Scan(&rows).Error; err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errStockGuard
	}
	return rows[0].Stock, nil
}

func (r *repository) CreateVariantMovement(ctx context.Context, movement *models.VariantMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) CreateInputMovement(ctx context.Context, movement *models.InputMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) ListVariantMovementsByReference(ctx context.Context, referenceID uuid.UUID) ([]models.VariantMovement, error) {
	var movements []models.VariantMovement
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}

func (r *repository) ListInputMovementsByReference(ctx context.Context, referenceID uuid.UUID) ([]models.InputMovement, error) {
	var movements []models.InputMovement
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}

func (r *repository) ListVariantMovements(ctx context.Context, variantID uuid.UUID) ([]models.VariantMovement, error) {
	var movements []models.VariantMovement
	err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}

func (r *repository) ListInputMovements(ctx context.Context, inputVariantID uuid.UUID) ([]models.InputMovement, error) {
	var movements []models.InputMovement
	err := r.db.WithContext(ctx).
		Where("input_variant_id = ?", inputVariantID).
		Order("created_at ASC").
		Find(&movements).Error
	return movements, err
}
