package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
)

// Repository defines persistence for catalog stock and the movement ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindInputVariants(ctx context.Context, inputIDs []uuid.UUID) ([]models.InputVariant, error)
	VariantStock(ctx context.Context, variantID uuid.UUID) (int, error)
	InputStock(ctx context.Context, inputVariantID uuid.UUID) (int, error)
	AdjustVariantStock(ctx context.Context, variantID uuid.UUID, delta int) (int, error)
	AdjustInputStock(ctx context.Context, inputVariantID uuid.UUID, delta int) (int, error)
	CreateVariantMovement(ctx context.Context, movement *models.VariantMovement) error
	CreateInputMovement(ctx context.Context, movement *models.InputMovement) error
	ListVariantMovementsByReference(ctx context.Context, referenceID uuid.UUID) ([]models.VariantMovement, error)
	ListInputMovementsByReference(ctx context.Context, referenceID uuid.UUID) ([]models.InputMovement, error)
	ListVariantMovements(ctx context.Context, variantID uuid.UUID) ([]models.VariantMovement, error)
	ListInputMovements(ctx context.Context, inputVariantID uuid.UUID) ([]models.InputMovement, error)
}
