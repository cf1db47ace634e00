package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/logger"
)

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:outbox_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))

	orderID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{Role: "customer"},
			Data:          map[string]any{"order_number": "ORD-261016-0001"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.JSONEq(t, `{"order_number":"ORD-261016-0001"}`, string(envelope.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]any{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	db := setupOutboxDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Emit(context.Background(), db, DomainEvent{EventType: "mystery", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	require.ErrorContains(t, err, "unknown event type")

	err = svc.Emit(context.Background(), db, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: "invoice", AggregateID: uuid.New()})
	require.ErrorContains(t, err, "unknown aggregate type")
}

func TestBuildRowStampsEnvelope(t *testing.T) {
	at := time.Date(2026, 10, 16, 8, 0, 0, 0, time.FixedZone("COT", -5*3600))
	row, envelope, err := buildRow(DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Version:       2,
		OccurredAt:    at,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, envelope.Version)
	assert.Equal(t, time.UTC, envelope.OccurredAt.Location())
	assert.True(t, at.Equal(envelope.OccurredAt))

	id, err := uuid.Parse(envelope.EventID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.JSONEq(t, `null`, string(envelope.Data))
	assert.Contains(t, string(row.Payload), envelope.EventID)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	rows := []models.OutboxEvent{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)},
	}
	for _, row := range rows {
		require.NoError(t, repo.Insert(db, row))
	}

	fetched, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, fetched, 3)

	require.NoError(t, repo.MarkPublishedTx(db, fetched[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, fetched[1].ID, errors.New("transient")))
	require.NoError(t, repo.MarkTerminalTx(db, fetched[2].ID, errors.New("bad payload"), 3))

	pending, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fetched[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "transient", *pending[0].LastError)

	parked, err := repo.ListTerminal(10, 3)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, fetched[2].ID, parked[0].ID)
}

func TestRepositoryDeletePublishedBeforeKeepsParkedRows(t *testing.T) {
	db := setupOutboxDB(t)
	repo := NewRepository(db)

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	rows := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &old},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &recent},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 10},
	}
	for _, row := range rows {
		require.NoError(t, repo.Insert(db, row))
	}

	deleted, err := repo.DeletePublishedBefore(db, time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Order("created_at ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	for _, row := range remaining {
		assert.NotEqual(t, rows[0].ID, row.ID)
	}
}
