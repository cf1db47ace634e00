package inventory

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
	"github.com/printlab/printlab-backend/pkg/metrics"
)

// Stage is the order lifecycle point at which stock may be consumed.
type Stage int

const (
	// StageOrderCreated consumes discrete variant stock.
	StageOrderCreated Stage = iota
	// StageOrderPaid consumes recipe inputs of build-to-order products.
	StageOrderPaid
)

// Reference ties movements to the aggregate that caused them.
type Reference struct {
	Type   enums.MovementReference
	ID     uuid.UUID
	Label  string
	Reason string
}

// Ledger applies stock deltas and records one movement per delta. Callers
// pass the transaction so stock, movements and the owning write commit together.
type Ledger struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
}

func NewLedger(repo Repository, logg *logger.Logger, m *metrics.OrderMetrics) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Ledger{repo: repo, logg: logg, metrics: m}, nil
}

// Consume takes quantity units from src if stage is the stage that source is
// consumed at, otherwise it does nothing.
func (l *Ledger) Consume(ctx context.Context, tx *gorm.DB, src Source, quantity int, stage Stage, ref Reference) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	repo := l.repo.WithTx(tx)

	switch s := src.(type) {
	case VariantSource:
		if stage != StageOrderCreated {
			return nil
		}
		return l.moveVariant(ctx, repo, s.Variant.ID, -quantity, enums.MovementTypeSale, ref, s.Variant.MinStock, ref.Label)
	case RecipeSource:
		if stage != StageOrderPaid {
			return nil
		}
		for _, c := range s.Components {
			if c.InputVariant == nil {
				return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "no stock unit of %s matches %s", c.InputName, ref.Label).
					WithDetails(map[string]any{"input": c.InputName, "requested": quantity * c.QuantityPerUnit, "available": 0})
			}
			need := quantity * c.QuantityPerUnit
			if err := l.moveInput(ctx, repo, *c.InputVariant, -need, enums.MovementTypeSale, ref, c.InputName); err != nil {
				return err
			}
		}
		return nil
	default:
		return pkgerrors.Newf(pkgerrors.CodeInternal, "unsupported stock source %T", src)
	}
}

// RestoreSummary reports what Restore put back.
type RestoreSummary struct {
	Variants map[uuid.UUID]int
	Inputs   map[uuid.UUID]int
}

// Restore returns every unit still held by ref. It nets the reference's
// movements per subject, so a second call restores nothing.
func (l *Ledger) Restore(ctx context.Context, tx *gorm.DB, ref Reference) (RestoreSummary, error) {
	repo := l.repo.WithTx(tx)
	summary := RestoreSummary{Variants: map[uuid.UUID]int{}, Inputs: map[uuid.UUID]int{}}

	variantMoves, err := repo.ListVariantMovementsByReference(ctx, ref.ID)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant movements")
	}
	held := map[uuid.UUID]int{}
	for _, m := range variantMoves {
		held[m.VariantID] -= m.Quantity
	}
	for _, id := range sortedKeys(held) {
		if held[id] <= 0 {
			continue
		}
		if err := l.moveVariant(ctx, repo, id, held[id], enums.MovementTypeReturn, ref, 0, ref.Label); err != nil {
			return summary, err
		}
		summary.Variants[id] = held[id]
	}

	inputMoves, err := repo.ListInputMovementsByReference(ctx, ref.ID)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load input movements")
	}
	heldInputs := map[uuid.UUID]int{}
	for _, m := range inputMoves {
		heldInputs[m.InputVariantID] -= m.Quantity
	}
	for _, id := range sortedKeys(heldInputs) {
		if heldInputs[id] <= 0 {
			continue
		}
		if err := l.moveInput(ctx, repo, models.InputVariant{ID: id}, heldInputs[id], enums.MovementTypeReturn, ref, ""); err != nil {
			return summary, err
		}
		summary.Inputs[id] = heldInputs[id]
	}
	return summary, nil
}

// AdjustVariant records a manual correction or restock of a product variant.
func (l *Ledger) AdjustVariant(ctx context.Context, tx *gorm.DB, variantID uuid.UUID, delta int, movementType enums.MovementType, reason string) error {
	if delta == 0 {
		return nil
	}
	ref := Reference{Type: enums.MovementReferenceManual, Reason: reason}
	return l.moveVariant(ctx, l.repo.WithTx(tx), variantID, delta, movementType, ref, 0, "")
}

// AdjustInput records a manual correction or restock of an input variant.
func (l *Ledger) AdjustInput(ctx context.Context, tx *gorm.DB, inputVariantID uuid.UUID, delta int, movementType enums.MovementType, reason string) error {
	if delta == 0 {
		return nil
	}
	ref := Reference{Type: enums.MovementReferenceManual, Reason: reason}
	return l.moveInput(ctx, l.repo.WithTx(tx), models.InputVariant{ID: inputVariantID}, delta, movementType, ref, "")
}

func (l *Ledger) moveVariant(ctx context.Context, repo Repository, variantID uuid.UUID, delta int, movementType enums.MovementType, ref Reference, minStock int, label string) error {
	newStock, err := repo.AdjustVariantStock(ctx, variantID, delta)
	if err != nil {
		if stdErrors.Is(err, errStockGuard) {
			return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %s", displayName(label, "variant")).
				WithDetails(map[string]any{"product": label, "variant_id": variantID.String(), "requested": -delta})
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust variant stock")
	}

	movement := &models.VariantMovement{
		VariantID:     variantID,
		MovementType:  movementType,
		Quantity:      delta,
		PreviousStock: newStock - delta,
		NewStock:      newStock,
		ReferenceType: ref.Type,
		ReferenceID:   refID(ref),
		Reason:        ref.Reason,
	}
	if err := repo.CreateVariantMovement(ctx, movement); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record variant movement")
	}

	if delta < 0 && newStock <= minStock {
		l.lowStock(ctx, "variant", variantID, newStock, minStock)
	}
	return nil
}

func (l *Ledger) moveInput(ctx context.Context, repo Repository, unit models.InputVariant, delta int, movementType enums.MovementType, ref Reference, label string) error {
	newStock, err := repo.AdjustInputStock(ctx, unit.ID, delta)
	if err != nil {
		if stdErrors.Is(err, errStockGuard) {
			return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for input %s", displayName(label, unit.ID.String())).
				WithDetails(map[string]any{"input": label, "input_variant_id": unit.ID.String(), "requested": -delta, "available": unit.CurrentStock})
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjust input stock")
	}

	movement := &models.InputMovement{
		InputVariantID: unit.ID,
		MovementType:   movementType,
		Quantity:       delta,
		PreviousStock:  newStock - delta,
		NewStock:       newStock,
		ReferenceType:  ref.Type,
		ReferenceID:    refID(ref),
		Reason:         ref.Reason,
	}
	if err := repo.CreateInputMovement(ctx, movement); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record input movement")
	}

	if delta < 0 && newStock <= unit.MinStock {
		l.lowStock(ctx, "input", unit.ID, newStock, unit.MinStock)
	}
	return nil
}

func (l *Ledger) lowStock(ctx context.Context, subject string, id uuid.UUID, stock, minStock int) {
	l.metrics.IncLowStock(subject)
	ctx = l.logg.WithFields(ctx, map[string]any{
		"subject":    subject,
		"subject_id": id.String(),
		"stock":      stock,
		"min_stock":  minStock,
	})
	l.logg.Warn(ctx, "inventory.low_stock")
}

// ReplayStock folds movement deltas onto baseline.
func ReplayStock(baseline int, deltas ...int) int {
	stock := baseline
	for _, d := range deltas {
		stock += d
	}
	return stock
}

func refID(ref Reference) *uuid.UUID {
	if ref.ID == uuid.Nil {
		return nil
	}
	id := ref.ID
	return &id
}

func displayName(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

func sortedKeys(m map[uuid.UUID]int) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
