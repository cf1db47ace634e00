package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their side tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	NextSequence(ctx context.Context, day string, at time.Time) (int, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, string, error)
	Stats(ctx context.Context) (*OrderStats, error)
	// UpdateIfCurrent applies updates only while the row still has status and
	// version. It reports whether the row was written.
	UpdateIfCurrent(ctx context.Context, id uuid.UUID, status enums.OrderStatus, version int, updates map[string]any) (bool, error)
	RecordPaymentTransaction(ctx context.Context, txn *models.OrderPaymentTransaction) error
	ListPaymentTransactions(ctx context.Context, orderID uuid.UUID) ([]models.OrderPaymentTransaction, error)
}
