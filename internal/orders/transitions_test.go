package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
)

func TestTransitionTableIsExhaustive(t *testing.T) {
	allowed := map[[2]enums.OrderStatus]bool{
		{enums.OrderStatusPending, enums.OrderStatusPaid}:         true,
		{enums.OrderStatusPending, enums.OrderStatusCancelled}:    true,
		{enums.OrderStatusPaid, enums.OrderStatusProcessing}:      true,
		{enums.OrderStatusPaid, enums.OrderStatusCancelled}:       true,
		{enums.OrderStatusProcessing, enums.OrderStatusShipped}:   true,
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled}: true,
		{enums.OrderStatusShipped, enums.OrderStatusDelivered}:    true,
	}

	for _, from := range enums.OrderStatuses() {
		for _, to := range enums.OrderStatuses() {
			want := allowed[[2]enums.OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := validateTransition(from, to)
			if want {
				assert.NoError(t, err)
				continue
			}
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
			details := pkgerrors.As(err).Details().(map[string]any)
			assert.Equal(t, from, details["current"])
			assert.Equal(t, to, details["attempted"])
		}
	}
}

func TestUpdateStatusWalksHappyPathAndAppendsHistory(t *testing.T) {
	h := newHarness(t)
	order, _ := h.placeRegular(t, 25000, 10, 1)
	ctx := context.Background()
	admin := uuid.New()

	steps := []enums.OrderStatus{
		enums.OrderStatusPaid,
		enums.OrderStatusProcessing,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
	}
	tracking := " GUIA-123 "
	current := order
	for i, target := range steps {
		input := UpdateStatusInput{OrderID: order.ID, Target: target, ActorID: &admin}
		if target == enums.OrderStatusShipped {
			input.TrackingNumber = &tracking
		}
		h.clock.Advance(time.Second)
		updated, err := h.svc.UpdateStatus(ctx, input)
		require.NoError(t, err, "step %s", target)
		assert.Equal(t, target, updated.Status)
		assert.Len(t, updated.StatusHistory, i+2)
		last := updated.StatusHistory[len(updated.StatusHistory)-1]
		assert.Equal(t, string(target), last.Status)
		assert.Equal(t, target.Label(), last.Note)
		current = updated
	}

	require.NotNil(t, current.PaidAt)
	require.NotNil(t, current.ShippedAt)
	require.NotNil(t, current.DeliveredAt)
	require.NotNil(t, current.TrackingNumber)
	assert.Equal(t, "GUIA-123", *current.TrackingNumber)
	assert.Nil(t, current.CancelledAt)

	var stored models.Order
	require.NoError(t, h.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, 5, stored.Version)

	events := h.outbox.ofType(enums.EventOrderStatusChanged)
	require.Len(t, events, 4)
	require.NotNil(t, events[0].Actor)
	assert.Equal(t, admin, *events[0].Actor.UserID)

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusCancelled})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestUpdateStatusRejectsSkippedStepWithoutMutation(t *testing.T) {
	h := newHarness(t)
	order, _ := h.placeRegular(t, 25000, 10, 1)

	_, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusShipped})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	got, err := h.svc.GetOrder(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
	assert.Len(t, got.StatusHistory, 1)

	_, err = h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Target: "LOST"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: uuid.New(), Target: enums.OrderStatusPaid})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelPendingOrderRestoresVariantStock(t *testing.T) {
	h := newHarness(t)
	order, variant := h.placeRegular(t, 25000, 10, 3)
	require.Equal(t, 7, h.variantStock(t, variant.ID))

	cancelled, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusCancelled, Note: "duplicate order"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, "duplicate order", cancelled.StatusHistory[len(cancelled.StatusHistory)-1].Note)
	assert.Equal(t, 10, h.variantStock(t, variant.ID))

	var moves []models.VariantMovement
	require.NoError(t, h.db.Order("created_at ASC").Find(&moves, "variant_id = ?", variant.ID).Error)
	require.Len(t, moves, 2)
	var returned *models.VariantMovement
	for i := range moves {
		if moves[i].MovementType == enums.MovementTypeReturn {
			returned = &moves[i]
		}
	}
	require.NotNil(t, returned)
	assert.Equal(t, 3, returned.Quantity)
	assert.Equal(t, 7, returned.PreviousStock)
	assert.Equal(t, 10, returned.NewStock)
}

func TestPaidTemplateOrderConsumesInputsAndCancelRestoresThem(t *testing.T) {
	h := newHarness(t)
	fx := h.seedTemplate(t, 5, 10)
	ctx := context.Background()

	order, err := h.svc.CreateOrder(ctx, h.input(CartLine{ProductID: fx.Product.ID, Size: "STD", Color: "#FFFFFF", Quantity: 2}))
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, 3, h.inputStock(t, fx.Blank.ID))
	assert.Equal(t, 6, h.inputStock(t, fx.Ink.ID))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusProcessing})
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, 5, h.inputStock(t, fx.Blank.ID))
	assert.Equal(t, 10, h.inputStock(t, fx.Ink.ID))
}

func TestPaymentFailsWhenInputsRanOutAfterOrdering(t *testing.T) {
	h := newHarness(t)
	fx := h.seedTemplate(t, 5, 10)
	ctx := context.Background()

	order, err := h.svc.CreateOrder(ctx, h.input(CartLine{ProductID: fx.Product.ID, Size: "STD", Color: "#FFFFFF", Quantity: 2}))
	require.NoError(t, err)
	require.NoError(t, h.db.Model(&models.InputVariant{}).Where("id = ?", fx.Ink.ID).Update("current_stock", 1).Error)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusPaid})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	got, err := h.svc.GetOrder(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
	assert.Equal(t, 5, h.inputStock(t, fx.Blank.ID))
}

func TestCancelByBuyerOnlyWhilePending(t *testing.T) {
	h := newHarness(t)
	order, variant := h.placeRegular(t, 25000, 10, 2)
	ctx := context.Background()

	_, err := h.svc.CancelByBuyer(ctx, uuid.New(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	cancelled, err := h.svc.CancelByBuyer(ctx, h.buyer.UserID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, noteCancelledByBuyer, cancelled.StatusHistory[len(cancelled.StatusHistory)-1].Note)
	assert.Equal(t, 10, h.variantStock(t, variant.ID))

	paidOrder, _ := h.placeRegular(t, 25000, 10, 1)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: paidOrder.ID, Target: enums.OrderStatusPaid})
	require.NoError(t, err)
	_, err = h.svc.CancelByBuyer(ctx, h.buyer.UserID, paidOrder.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestApplyApprovedPaymentTwiceHasOneEffect(t *testing.T) {
	h := newHarness(t)
	fx := h.seedTemplate(t, 5, 10)
	ctx := context.Background()
	order, err := h.svc.CreateOrder(ctx, h.input(CartLine{ProductID: fx.Product.ID, Size: "STD", Color: "#FFFFFF", Quantity: 1}))
	require.NoError(t, err)

	event := PaymentInput{
		OrderNumber:   order.OrderNumber,
		TransactionID: "12345-1700000000-00001",
		Status:        enums.TransactionStatusApproved,
		AmountInCents: order.Total * 100,
		Source:        "webhook",
	}
	first, err := h.svc.ApplyPayment(ctx, event)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, enums.OrderStatusPaid, first.Order.Status)
	require.NotNil(t, first.Order.PaymentRef)
	assert.Equal(t, event.TransactionID, *first.Order.PaymentRef)

	second, err := h.svc.ApplyPayment(ctx, event)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.True(t, second.AlreadyPaid)

	assert.Equal(t, 4, h.inputStock(t, fx.Blank.ID))
	assert.Equal(t, 8, h.inputStock(t, fx.Ink.ID))
	assert.Len(t, h.outbox.ofType(enums.EventOrderStatusChanged), 1)

	var recorded []models.OrderPaymentTransaction
	require.NoError(t, h.db.Find(&recorded, "order_id = ?", order.ID).Error)
	require.Len(t, recorded, 1)
	assert.Equal(t, enums.TransactionStatusApproved, recorded[0].Status)
}

func TestConcurrentApprovedPaymentsMoveOrderOnce(t *testing.T) {
	h := newHarness(t)
	order, _ := h.placeRegular(t, 25000, 10, 1)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for _, txID := range []string{"tx-webhook", "tx-poll"} {
		wg.Add(1)
		go func(txID string) {
			defer wg.Done()
			out, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: txID, Status: enums.TransactionStatusApproved})
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if out.Applied {
				applied++
			}
		}(txID)
	}
	wg.Wait()

	// sqlite may refuse the second writer outright; it must never apply twice.
	assert.LessOrEqual(t, applied, 1)
	assert.Len(t, h.outbox.ofType(enums.EventOrderStatusChanged), applied)

	var stored models.Order
	require.NoError(t, h.db.First(&stored, "id = ?", order.ID).Error)
	if applied == 1 {
		assert.Equal(t, enums.OrderStatusPaid, stored.Status)
		assert.Len(t, stored.StatusHistory, 2)
	}
}

func TestApplyDeclinedAppendsNoteAndKeepsPending(t *testing.T) {
	h := newHarness(t)
	order, variant := h.placeRegular(t, 25000, 10, 1)
	ctx := context.Background()
	sentBefore := len(h.notifier.sent)

	out, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-1", Status: enums.TransactionStatusDeclined})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, enums.OrderStatusPending, out.Order.Status)
	require.Len(t, out.Order.StatusHistory, 2)
	assert.Equal(t, "PENDING", out.Order.StatusHistory[1].Status)
	assert.Contains(t, out.Order.StatusHistory[1].Note, "declined")
	assert.Equal(t, 9, h.variantStock(t, variant.ID))
	assert.Len(t, h.notifier.sent, sentBefore+1)

	replay, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-1", Status: enums.TransactionStatusDeclined})
	require.NoError(t, err)
	assert.False(t, replay.Applied)
	assert.Len(t, replay.Order.StatusHistory, 2)

	retry, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-2", Status: enums.TransactionStatusApproved})
	require.NoError(t, err)
	assert.True(t, retry.Applied)
	assert.Equal(t, enums.OrderStatusPaid, retry.Order.Status)

	late, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-3", Status: enums.TransactionStatusError})
	require.NoError(t, err)
	assert.False(t, late.Applied)
	assert.Equal(t, enums.OrderStatusPaid, late.Order.Status)
}

func TestApplyVoidedCancelsPaidOrderAndRestoresInputs(t *testing.T) {
	h := newHarness(t)
	fx := h.seedTemplate(t, 5, 10)
	ctx := context.Background()
	order, err := h.svc.CreateOrder(ctx, h.input(CartLine{ProductID: fx.Product.ID, Size: "STD", Color: "#FFFFFF", Quantity: 2}))
	require.NoError(t, err)

	_, err = h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-9", Status: enums.TransactionStatusApproved})
	require.NoError(t, err)
	require.Equal(t, 3, h.inputStock(t, fx.Blank.ID))

	voided, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-9", Status: enums.TransactionStatusVoided})
	require.NoError(t, err)
	assert.True(t, voided.Applied)
	assert.Equal(t, enums.OrderStatusCancelled, voided.Order.Status)
	assert.Len(t, voided.Order.StatusHistory, 3)
	assert.Equal(t, notePaymentVoided, voided.Order.StatusHistory[2].Note)
	assert.Equal(t, 5, h.inputStock(t, fx.Blank.ID))
	assert.Equal(t, 10, h.inputStock(t, fx.Ink.ID))

	again, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-9", Status: enums.TransactionStatusVoided})
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, 5, h.inputStock(t, fx.Blank.ID))
}

func TestApplyVoidedIgnoresPendingOrder(t *testing.T) {
	h := newHarness(t)
	order, variant := h.placeRegular(t, 25000, 10, 1)

	out, err := h.svc.ApplyPayment(context.Background(), PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-1", Status: enums.TransactionStatusVoided})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, enums.OrderStatusPending, out.Order.Status)
	assert.Equal(t, 9, h.variantStock(t, variant.ID))
}

func TestApplyPendingAndApprovedOnCancelledOrder(t *testing.T) {
	h := newHarness(t)
	order, _ := h.placeRegular(t, 25000, 10, 1)
	ctx := context.Background()

	pending, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-1", Status: enums.TransactionStatusPending})
	require.NoError(t, err)
	assert.False(t, pending.Applied)
	assert.Equal(t, noteAwaitingPayment, pending.Message)

	_, err = h.svc.CancelByBuyer(ctx, h.buyer.UserID, order.ID)
	require.NoError(t, err)

	late, err := h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, TransactionID: "tx-1", Status: enums.TransactionStatusApproved})
	require.NoError(t, err)
	assert.False(t, late.Applied)
	assert.False(t, late.AlreadyPaid)
	assert.Equal(t, enums.OrderStatusCancelled, late.Order.Status)

	_, err = h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: "ORD-000000-0000", TransactionID: "tx-1", Status: enums.TransactionStatusApproved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.ApplyPayment(ctx, PaymentInput{OrderNumber: order.OrderNumber, Status: enums.TransactionStatusApproved})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStaleVersionLosesCompareAndSet(t *testing.T) {
	h := newHarness(t)
	order, _ := h.placeRegular(t, 25000, 10, 1)
	repo := NewRepository(h.db)
	ctx := context.Background()

	ok, err := repo.UpdateIfCurrent(ctx, order.ID, enums.OrderStatusPending, 1, map[string]any{"status": enums.OrderStatusPaid})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdateIfCurrent(ctx, order.ID, enums.OrderStatusPending, 1, map[string]any{"status": enums.OrderStatusCancelled})
	require.NoError(t, err)
	assert.False(t, ok)
}

// interfereWithOrderUpdates bumps the order version inside the writer's own
// transaction right before its next n updates, so each of them loses the
// compare-and-set.
func interfereWithOrderUpdates(t *testing.T, h *harness, n int) *int {
	t.Helper()
	bumps := 0
	err := h.db.Callback().Update().Before("gorm:update").Register("test:bump_order_version", func(tx *gorm.DB) {
		if tx.Statement.Table != "orders" || bumps >= n {
			return
		}
		bumps++
		if err := tx.Session(&gorm.Session{NewDB: true}).Exec("UPDATE orders SET version = version + 1").Error; err != nil {
			_ = tx.AddError(err)
		}
	})
	require.NoError(t, err)
	return &bumps
}

func TestApprovedPaymentRetriesWhenOrderChangedUnderneath(t *testing.T) {
	h := newHarness(t)
	order, _ := h.placeRegular(t, 25000, 10, 1)
	bumps := interfereWithOrderUpdates(t, h, 1)

	out, err := h.svc.ApplyPayment(context.Background(), PaymentInput{
		OrderNumber:   order.OrderNumber,
		TransactionID: "tx-approved",
		Status:        enums.TransactionStatusApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, *bumps)
	assert.True(t, out.Applied)
	assert.Equal(t, enums.OrderStatusPaid, out.Order.Status)
	assert.Len(t, h.outbox.ofType(enums.EventOrderStatusChanged), 1)
}

func TestApprovedPaymentFailsAfterRepeatedConflicts(t *testing.T) {
	h := newHarness(t)
	order, _ := h.placeRegular(t, 25000, 10, 1)
	interfereWithOrderUpdates(t, h, maxPaymentAttempts)
	ctx := context.Background()
	event := PaymentInput{
		OrderNumber:   order.OrderNumber,
		TransactionID: "tx-approved",
		Status:        enums.TransactionStatusApproved,
	}

	out, err := h.svc.ApplyPayment(ctx, event)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var stored models.Order
	require.NoError(t, h.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	var recorded int64
	require.NoError(t, h.db.Model(&models.OrderPaymentTransaction{}).Where("order_id = ?", order.ID).Count(&recorded).Error)
	assert.Zero(t, recorded, "a failed attempt must not mark the transaction as applied")

	redelivered, err := h.svc.ApplyPayment(ctx, event)
	require.NoError(t, err)
	assert.True(t, redelivered.Applied)
	assert.Equal(t, enums.OrderStatusPaid, redelivered.Order.Status)
}

func TestOrderAuditListsTransactionsAndMovements(t *testing.T) {
	h := newHarness(t)
	order, variant := h.placeRegular(t, 25000, 10, 2)
	ctx := context.Background()

	_, err := h.svc.ApplyPayment(ctx, PaymentInput{
		OrderNumber:   order.OrderNumber,
		TransactionID: "tx-approved",
		Status:        enums.TransactionStatusApproved,
		AmountInCents: order.Total * 100,
	})
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Target: enums.OrderStatusCancelled})
	require.NoError(t, err)

	audit, err := h.svc.GetOrderAudit(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, audit.Status)
	require.Len(t, audit.PaymentTransactions, 1)
	assert.Equal(t, "tx-approved", audit.PaymentTransactions[0].TransactionID)
	assert.Equal(t, order.Total*100, audit.PaymentTransactions[0].AmountInCents)

	require.Len(t, audit.Movements, 2)
	assert.Equal(t, enums.MovementTypeSale, audit.Movements[0].Type)
	assert.Equal(t, -2, audit.Movements[0].Quantity)
	assert.Equal(t, enums.MovementTypeReturn, audit.Movements[1].Type)
	assert.Equal(t, variant.ID, audit.Movements[1].SubjectID)
	assert.Equal(t, 10, h.variantStock(t, variant.ID))

	_, err = h.svc.GetOrderAudit(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
