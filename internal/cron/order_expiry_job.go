package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/printlab/printlab-backend/internal/orders"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/pagination"
)

const (
	noteExpiredUnpaid     = "Expired without payment"
	defaultExpiryPageSize = 50
)

type pendingOrders interface {
	ListOrders(ctx context.Context, filters orders.ListFilters, params pagination.Params) (*orders.OrderList, error)
	UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*orders.OrderDTO, error)
}

type OrderExpiryJobParams struct {
	Logger   *logger.Logger
	Orders   pendingOrders
	TTL      time.Duration
	PageSize int
}

// orderExpiryJob cancels orders left PENDING longer than ttl. Cancellation goes
// through the regular status path, so stock is restored and the buyer is
// notified.
type orderExpiryJob struct {
	logg     *logger.Logger
	orders   pendingOrders
	ttl      time.Duration
	pageSize int
	now      func() time.Time
}

func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders service required")
	}
	if params.TTL <= 0 {
		return nil, errors.New("pending order ttl must be positive")
	}
	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > pagination.MaxLimit {
		pageSize = defaultExpiryPageSize
	}
	return &orderExpiryJob{
		logg:     params.Logger,
		orders:   params.Orders,
		ttl:      params.TTL,
		pageSize: pageSize,
		now:      time.Now,
	}, nil
}

func (j *orderExpiryJob) Name() string { return "expire-pending-orders" }

func (j *orderExpiryJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	status := enums.OrderStatusPending
	filters := orders.ListFilters{
		Status: &status,
		DateTo: &cutoff,
		Sort:   enums.OrderSortOldest,
	}

	var (
		expired int64
		runErr  error
		cursor  string
	)
	for {
		page, err := j.orders.ListOrders(ctx, filters, pagination.Params{Limit: j.pageSize, Cursor: cursor})
		if err != nil {
			return expired, multierr.Append(runErr, fmt.Errorf("list pending orders: %w", err))
		}
		for _, summary := range page.Orders {
			if ctx.Err() != nil {
				return expired, multierr.Append(runErr, ctx.Err())
			}
			ok, err := j.expire(ctx, summary.ID, summary.OrderNumber)
			if err != nil {
				runErr = multierr.Append(runErr, err)
				continue
			}
			if ok {
				expired++
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return expired, runErr
}

// expire reports false without error when the order left PENDING between the
// listing and the update, for example because the payment landed.
func (j *orderExpiryJob) expire(ctx context.Context, orderID uuid.UUID, orderNumber string) (bool, error) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"order_id":     orderID,
		"order_number": orderNumber,
	})
	_, err := j.orders.UpdateStatus(ctx, orders.UpdateStatusInput{
		OrderID: orderID,
		Target:  enums.OrderStatusCancelled,
		Note:    noteExpiredUnpaid,
	})
	switch {
	case err == nil:
		j.logg.Info(logCtx, "orders.pending_expired")
		return true, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition),
		pkgerrors.IsCode(err, pkgerrors.CodeConflict),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		j.logg.Info(logCtx, "orders.pending_expiry_skipped")
		return false, nil
	default:
		return false, fmt.Errorf("expire order %s: %w", orderNumber, err)
	}
}
