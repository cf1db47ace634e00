package notifications

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db"
	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/outbox/payloads"
)

func setupService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:notifications_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))

	logg := logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
	svc, err := NewService(db.Wrap(conn), outbox.NewService(outbox.NewRepository(conn), logg), logg)
	require.NoError(t, err)
	return svc, conn
}

func TestNotifyOrderStatusQueuesOutboxRow(t *testing.T) {
	svc, conn := setupService(t)

	err := svc.NotifyOrderStatus(context.Background(), " buyer@example.com ", "ORD-260105-0001", enums.OrderStatusShipped, "On its way.")
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	assert.Equal(t, enums.AggregateNotification, rows[0].AggregateType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, "buyer@example.com", payload.Email)
	assert.Equal(t, "ORD-260105-0001", payload.OrderNumber)
	assert.Equal(t, enums.OrderStatusShipped, payload.Status)
	assert.Equal(t, "On its way.", payload.Message)
}

func TestNotifyOrderStatusRejectsBadInput(t *testing.T) {
	svc, conn := setupService(t)
	ctx := context.Background()

	err := svc.NotifyOrderStatus(ctx, "not-an-email", "ORD-260105-0001", enums.OrderStatusPaid, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.NotifyOrderStatus(ctx, "buyer@example.com", " ", enums.OrderStatusPaid, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.NotifyOrderStatus(ctx, "buyer@example.com", "ORD-260105-0001", "LOST", "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return assert.AnError
}

func TestNotifyOrderStatusReportsOutboxFailure(t *testing.T) {
	_, conn := setupService(t)
	logg := logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
	svc, err := NewService(db.Wrap(conn), failingEmitter{}, logg)
	require.NoError(t, err)

	err = svc.NotifyOrderStatus(context.Background(), "buyer@example.com", "ORD-260105-0001", enums.OrderStatusPaid, "Paid.")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
