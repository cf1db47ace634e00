package inventory

import (
	"fmt"
	"math"

	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/enums"
)

// Source is the stock model backing a resolved line item. It is either a
// VariantSource or a RecipeSource.
type Source interface {
	isSource()
}

// VariantSource sells directly from a regular product variant's stock.
type VariantSource struct {
	Variant models.ProductVariant
}

// RecipeSource derives availability from the raw inputs a template product consumes.
type RecipeSource struct {
	Components []Component
}

// Component is one recipe requirement resolved to a concrete input variant.
// InputVariant is nil when no stock unit of the input matches the line.
type Component struct {
	InputID         string
	InputName       string
	QuantityPerUnit int
	InputVariant    *models.InputVariant
}

func (VariantSource) isSource() {}
func (RecipeSource) isSource()  {}

// sourceFor builds the stock model for product kind. This is the only place
// product kinds are told apart.
func sourceFor(product *models.Product, variant models.ProductVariant, inputStock []models.InputVariant) (Source, error) {
	switch product.Kind {
	case enums.ProductKindRegular:
		return VariantSource{Variant: variant}, nil
	case enums.ProductKindTemplate:
		components := make([]Component, 0, len(product.Recipe))
		for _, item := range product.Recipe {
			component := Component{
				InputID:         item.InputID.String(),
				QuantityPerUnit: item.QuantityPerUnit,
				InputVariant:    matchInputVariant(inputStock, item.InputID.String(), variant),
			}
			if item.Input != nil {
				component.InputName = item.Input.Name
			}
			components = append(components, component)
		}
		return RecipeSource{Components: components}, nil
	default:
		return nil, fmt.Errorf("unknown product kind %q", product.Kind)
	}
}

// Available returns how many units the source can currently supply.
func Available(src Source) int {
	switch s := src.(type) {
	case VariantSource:
		return max(s.Variant.Stock, 0)
	case RecipeSource:
		if len(s.Components) == 0 {
			return 0
		}
		available := math.MaxInt
		for _, c := range s.Components {
			if c.InputVariant == nil || c.QuantityPerUnit <= 0 {
				return 0
			}
			available = min(available, max(c.InputVariant.CurrentStock, 0)/c.QuantityPerUnit)
		}
		return available
	default:
		return 0
	}
}
