package orders

import (
	"github.com/shopspring/decimal"

	"github.com/printlab/printlab-backend/internal/settings"
)

// Totals are the monetary fields of an order, in minor units.
type Totals struct {
	Subtotal     int64
	ShippingCost int64
	Discount     int64
	Tax          int64
	Total        int64
}

// ComputeTotals prices subtotal against the pricing configuration. A zero
// free-shipping threshold ships everything free. Tax is rounded half away
// from zero.
func ComputeTotals(subtotal int64, pricing settings.Pricing) Totals {
	totals := Totals{Subtotal: subtotal}

	if subtotal >= pricing.FreeShippingThreshold {
		totals.ShippingCost = 0
	} else {
		totals.ShippingCost = pricing.ShippingCost
	}

	if !pricing.TaxIncluded {
		totals.Tax = decimal.NewFromInt(subtotal).Mul(pricing.TaxRate).Round(0).IntPart()
	}

	totals.Total = totals.Subtotal + totals.ShippingCost + totals.Tax - totals.Discount
	return totals
}
