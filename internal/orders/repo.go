package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

const nextSequenceSQL = `
INSERT INTO order_sequences (day, last_value, updated_at)
VALUES (?, 1, ?)
ON CONFLICT (day) DO UPDATE
SET last_value = order_sequences.last_value + 1, updated_at = excluded.updated_at
RETURNING last_value`

// NextSequence atomically increments and returns the counter for day. The
// row stays locked until the surrounding transaction ends.
func (r *repository) NextSequence(ctx context.Context, day string, at time.Time) (int, error) {
	var value int
	if err := r.db.WithContext(ctx).Raw(nextSequenceSQL, day, at).Scan(&value).Error; err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, fmt.Errorf("order sequence for %s returned %d", day, value)
	}
	return value, nil
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("order_number = ?", strings.ToUpper(strings.TrimSpace(orderNumber))).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// List pages orders on (created_at, id) in the requested direction.
func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items")
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", filters.DateTo.UTC())
	}
	if term := strings.ToLower(strings.TrimSpace(filters.Search)); term != "" {
		like := "%" + escapeLike(term) + "%"
		query = query.Where(
			"(LOWER(order_number) LIKE ? ESCAPE '\\' OR LOWER(buyer_name) LIKE ? ESCAPE '\\' OR LOWER(buyer_email) LIKE ? ESCAPE '\\')",
			like, like, like,
		)
	}

	oldestFirst := filters.Sort == enums.OrderSortOldest
	if cursor != nil {
		if oldestFirst {
			query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		} else {
			query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
	}
	if oldestFirst {
		query = query.Order("created_at ASC").Order("id ASC")
	} else {
		query = query.Order("created_at DESC").Order("id DESC")
	}

	var rows []models.Order
	if err := query.Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	page, next := pagination.Split(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}

type statusAggregate struct {
	Status enums.OrderStatus
	Count  int64
	Total  int64
}

func (r *repository) Stats(ctx context.Context) (*OrderStats, error) {
	var rows []statusAggregate
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &OrderStats{ByStatus: make(map[enums.OrderStatus]int64, len(enums.OrderStatuses()))}
	for _, status := range enums.OrderStatuses() {
		stats.ByStatus[status] = 0
	}
	var revenueOrders int64
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
		stats.TotalOrders += row.Count
		if countsAsRevenue(row.Status) {
			stats.Revenue += row.Total
			revenueOrders += row.Count
		}
	}
	if revenueOrders > 0 {
		stats.AverageOrderValue = stats.Revenue / revenueOrders
	}
	return stats, nil
}

func countsAsRevenue(status enums.OrderStatus) bool {
	return status != enums.OrderStatusPending && status != enums.OrderStatusCancelled
}

func (r *repository) UpdateIfCurrent(ctx context.Context, id uuid.UUID, status enums.OrderStatus, version int, updates map[string]any) (bool, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = gorm.Expr("version + 1")

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) RecordPaymentTransaction(ctx context.Context, txn *models.OrderPaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListPaymentTransactions(ctx context.Context, orderID uuid.UUID) ([]models.OrderPaymentTransaction, error) {
	var rows []models.OrderPaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("applied_at ASC").
		Find(&rows).Error
	return rows, err
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return replacer.Replace(value)
}
