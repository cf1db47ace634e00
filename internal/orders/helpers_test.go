package orders

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/internal/inventory"
	"github.com/printlab/printlab-backend/internal/settings"
	"github.com/printlab/printlab-backend/pkg/db"
	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/outbox"
	"github.com/printlab/printlab-backend/pkg/types"
)

type stubPricing struct {
	pricing settings.Pricing
	err     error
}

func (s stubPricing) Pricing(context.Context) (settings.Pricing, error) {
	return s.pricing, s.err
}

func defaultPricing() settings.Pricing {
	return settings.Pricing{
		ShippingCost:          12000,
		FreeShippingThreshold: 150000,
		TaxRate:               decimal.RequireFromString("0.19"),
		TaxIncluded:           true,
	}
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
	err    error
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) ofType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []outbox.DomainEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type notification struct {
	Email       string
	OrderNumber string
	Status      enums.OrderStatus
	Message     string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (r *recordingNotifier) NotifyOrderStatus(_ context.Context, email, orderNumber string, status enums.OrderStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{Email: email, OrderNumber: orderNumber, Status: status, Message: message})
	return r.err
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	db       *gorm.DB
	svc      Service
	outbox   *recordingOutbox
	notifier *recordingNotifier
	clock    *fixedClock
	buyer    Buyer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithPricing(t, stubPricing{pricing: defaultPricing()})
}

func newHarnessWithPricing(t *testing.T, pricing pricingProvider) *harness {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
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
		&models.Order{},
		&models.OrderItem{},
		&models.OrderSequence{},
		&models.OrderPaymentTransaction{},
	))

	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	invRepo := inventory.NewRepository(conn)
	resolver, err := inventory.NewResolver(invRepo)
	require.NoError(t, err)
	ledger, err := inventory.NewLedger(invRepo, logg, nil)
	require.NoError(t, err)

	h := &harness{
		db:       conn,
		outbox:   &recordingOutbox{},
		notifier: &recordingNotifier{},
		clock:    &fixedClock{now: time.Date(2026, 1, 5, 15, 30, 0, 0, time.UTC)},
		buyer:    Buyer{UserID: uuid.New(), Name: "Laura Gómez", Email: "Laura@Example.com"},
	}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       db.Wrap(conn),
		Outbox:   h.outbox,
		Resolver: resolver,
		Ledger:   ledger,
		Pricing:  pricing,
		Notifier: h.notifier,
		Logger:   logg,
		Location: time.UTC,
		Clock:    h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seedRegular(t *testing.T, name string, price int64, stock int) (*models.Product, *models.ProductVariant) {
	t.Helper()
	product := &models.Product{Name: name, Kind: enums.ProductKindRegular, BasePrice: price, IsActive: true}
	require.NoError(t, h.db.Create(product).Error)
	variant := &models.ProductVariant{
		ProductID: product.ID,
		ColorCode: "#000000",
		ColorName: "Black",
		SizeName:  "Medium",
		SizeAbbr:  "M",
		Stock:     stock,
		IsActive:  true,
	}
	require.NoError(t, h.db.Create(variant).Error)
	return product, variant
}

type templateSeed struct {
	Product *models.Product
	Blank   *models.InputVariant
	Ink     *models.InputVariant
}

// seedTemplate builds a printed mug needing 1 blank and 2 ink units per unit.
func (h *harness) seedTemplate(t *testing.T, blankStock, inkStock int) templateSeed {
	t.Helper()
	product := &models.Product{Name: "Custom Mug", Kind: enums.ProductKindTemplate, BasePrice: 30000, IsActive: true}
	require.NoError(t, h.db.Create(product).Error)
	require.NoError(t, h.db.Create(&models.ProductVariant{
		ProductID: product.ID,
		ColorCode: "#FFFFFF",
		ColorName: "White",
		SizeName:  "Standard",
		SizeAbbr:  "STD",
		IsActive:  true,
	}).Error)

	blank := &models.Input{Name: "Blank mug"}
	ink := &models.Input{Name: "Sublimation ink"}
	require.NoError(t, h.db.Create(blank).Error)
	require.NoError(t, h.db.Create(ink).Error)
	require.NoError(t, h.db.Create(&models.RecipeItem{ProductID: product.ID, InputID: blank.ID, QuantityPerUnit: 1}).Error)
	require.NoError(t, h.db.Create(&models.RecipeItem{ProductID: product.ID, InputID: ink.ID, QuantityPerUnit: 2}).Error)

	white := "FFFFFF"
	blankUnit := &models.InputVariant{InputID: blank.ID, ColorCode: &white, CurrentStock: blankStock}
	inkUnit := &models.InputVariant{InputID: ink.ID, ColorCode: &white, CurrentStock: inkStock}
	require.NoError(t, h.db.Create(blankUnit).Error)
	require.NoError(t, h.db.Create(inkUnit).Error)
	return templateSeed{Product: product, Blank: blankUnit, Ink: inkUnit}
}

func (h *harness) input(lines ...CartLine) CreateOrderInput {
	return CreateOrderInput{
		Buyer: h.buyer,
		Lines: lines,
		ShippingAddress: types.ShippingAddress{
			Recipient: "Laura Gómez",
			Phone:     "3001234567",
			Line1:     "Calle 10 # 43-12",
			City:      "Medellín",
			State:     "Antioquia",
		},
		PaymentMethod: enums.PaymentMethodNequi,
	}
}

func (h *harness) placeRegular(t *testing.T, price int64, stock, qty int) (*OrderDTO, *models.ProductVariant) {
	t.Helper()
	product, variant := h.seedRegular(t, "Classic Tee", price, stock)
	order, err := h.svc.CreateOrder(context.Background(), h.input(CartLine{ProductID: product.ID, Size: "M", Color: "#000000", Quantity: qty}))
	require.NoError(t, err)
	return order, variant
}

func (h *harness) variantStock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var v models.ProductVariant
	require.NoError(t, h.db.First(&v, "id = ?", id).Error)
	return v.Stock
}

func (h *harness) inputStock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var v models.InputVariant
	require.NoError(t, h.db.First(&v, "id = ?", id).Error)
	return v.CurrentStock
}

func (h *harness) forceStatus(t *testing.T, orderID uuid.UUID, status enums.OrderStatus) {
	t.Helper()
	require.NoError(t, h.db.Model(&models.Order{}).Where("id = ?", orderID).Update("status", status).Error)
}

var errBoom = errors.New("boom")
