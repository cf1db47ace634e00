package inventory

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
	"github.com/printlab/printlab-backend/pkg/logger"
)

// Subject is the kind of stock unit a movement belongs to.
type Subject string

const (
	SubjectVariant Subject = "variant"
	SubjectInput   Subject = "input"
)

// Movement is one ledger row of either subject.
type Movement struct {
	ID            uuid.UUID               `json:"id"`
	Subject       Subject                 `json:"subject"`
	SubjectID     uuid.UUID               `json:"subject_id"`
	Type          enums.MovementType      `json:"type"`
	Quantity      int                     `json:"quantity"`
	PreviousStock int                     `json:"previous_stock"`
	NewStock      int                     `json:"new_stock"`
	ReferenceType enums.MovementReference `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID              `json:"reference_id,omitempty"`
	Reason        string                  `json:"reason,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// History is the ledger of one stock unit next to its stored stock.
// Consistent reports whether replaying the movements from the first
// recorded baseline lands on the stored value.
type History struct {
	Subject       Subject    `json:"subject"`
	SubjectID     uuid.UUID  `json:"subject_id"`
	CurrentStock  int        `json:"current_stock"`
	ReplayedStock int        `json:"replayed_stock"`
	Consistent    bool       `json:"consistent"`
	Movements     []Movement `json:"movements"`
}

// Adjustment is an operator correction or restock of one stock unit.
type Adjustment struct {
	Subject   Subject
	SubjectID uuid.UUID
	Delta     int
	Type      enums.MovementType
	Reason    string
	ActorID   *uuid.UUID
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Stock serves the operator view of inventory: movement history and manual
// adjustments. Order driven movements go through the Ledger directly.
type Stock struct {
	repo   Repository
	tx     txRunner
	ledger *Ledger
	logg   *logger.Logger
}

func NewStock(repo Repository, tx txRunner, ledger *Ledger, logg *logger.Logger) (*Stock, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("inventory repository required")
	case tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case ledger == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Stock{repo: repo, tx: tx, ledger: ledger, logg: logg}, nil
}

// History returns every movement of one unit, oldest first.
func (s *Stock) History(ctx context.Context, subject Subject, id uuid.UUID) (*History, error) {
	return history(ctx, s.repo, subject, id)
}

// Adjust applies a manual delta and records it as a movement. Only
// ADJUSTMENT and RESTOCK are accepted; sales and returns belong to orders.
func (s *Stock) Adjust(ctx context.Context, adj Adjustment) (*History, error) {
	if err := validateAdjustment(adj); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(adj.Reason)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := currentStock(ctx, repo, adj.Subject, adj.SubjectID); err != nil {
			return err
		}
		if adj.Subject == SubjectVariant {
			return s.ledger.AdjustVariant(ctx, tx, adj.SubjectID, adj.Delta, adj.Type, reason)
		}
		return s.ledger.AdjustInput(ctx, tx, adj.SubjectID, adj.Delta, adj.Type, reason)
	})
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"subject":    string(adj.Subject),
		"subject_id": adj.SubjectID.String(),
		"delta":      adj.Delta,
		"type":       string(adj.Type),
	}
	if adj.ActorID != nil {
		fields["actor_id"] = adj.ActorID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "inventory.stock_adjusted")
	return history(ctx, s.repo, adj.Subject, adj.SubjectID)
}

func validateAdjustment(adj Adjustment) error {
	switch {
	case adj.Subject != SubjectVariant && adj.Subject != SubjectInput:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown stock subject %q", adj.Subject)
	case adj.SubjectID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "stock unit id required")
	case adj.Delta == 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "delta must not be zero")
	case adj.Type != enums.MovementTypeAdjustment && adj.Type != enums.MovementTypeRestock:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "movement type %q is reserved for orders", adj.Type)
	case adj.Type == enums.MovementTypeRestock && adj.Delta < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "a restock must add stock")
	case strings.TrimSpace(adj.Reason) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	return nil
}

// OrderMovements lists the variant and input movements recorded against an
// order, oldest first.
func (l *Ledger) OrderMovements(ctx context.Context, orderID uuid.UUID) ([]Movement, error) {
	variantMoves, err := l.repo.ListVariantMovementsByReference(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant movements")
	}
	inputMoves, err := l.repo.ListInputMovementsByReference(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load input movements")
	}

	out := make([]Movement, 0, len(variantMoves)+len(inputMoves))
	for _, m := range variantMoves {
		out = append(out, fromVariantMovement(m))
	}
	for _, m := range inputMoves {
		out = append(out, fromInputMovement(m))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func history(ctx context.Context, repo Repository, subject Subject, id uuid.UUID) (*History, error) {
	stock, err := currentStock(ctx, repo, subject, id)
	if err != nil {
		return nil, err
	}

	var movements []Movement
	switch subject {
	case SubjectVariant:
		rows, err := repo.ListVariantMovements(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant movements")
		}
		for _, m := range rows {
			movements = append(movements, fromVariantMovement(m))
		}
	case SubjectInput:
		rows, err := repo.ListInputMovements(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load input movements")
		}
		for _, m := range rows {
			movements = append(movements, fromInputMovement(m))
		}
	}

	baseline := stock
	if len(movements) > 0 {
		baseline = movements[0].PreviousStock
	}
	deltas := make([]int, 0, len(movements))
	for _, m := range movements {
		deltas = append(deltas, m.Quantity)
	}
	replayed := ReplayStock(baseline, deltas...)

	if movements == nil {
		movements = []Movement{}
	}
	return &History{
		Subject:       subject,
		SubjectID:     id,
		CurrentStock:  stock,
		ReplayedStock: replayed,
		Consistent:    replayed == stock,
		Movements:     movements,
	}, nil
}

func currentStock(ctx context.Context, repo Repository, subject Subject, id uuid.UUID) (int, error) {
	var (
		stock int
		err   error
	)
	switch subject {
	case SubjectVariant:
		stock, err = repo.VariantStock(ctx, id)
	case SubjectInput:
		stock, err = repo.InputStock(ctx, id)
	default:
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown stock subject %q", subject)
	}
	if stdErrors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", subject)
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load stock")
	}
	return stock, nil
}

func fromVariantMovement(m models.VariantMovement) Movement {
	return Movement{
		ID:            m.ID,
		Subject:       SubjectVariant,
		SubjectID:     m.VariantID,
		Type:          m.MovementType,
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Reason:        m.Reason,
		CreatedAt:     m.CreatedAt,
	}
}

func fromInputMovement(m models.InputMovement) Movement {
	return Movement{
		ID:            m.ID,
		Subject:       SubjectInput,
		SubjectID:     m.InputVariantID,
		Type:          m.MovementType,
		Quantity:      m.Quantity,
		PreviousStock: m.PreviousStock,
		NewStock:      m.NewStock,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Reason:        m.Reason,
		CreatedAt:     m.CreatedAt,
	}
}
