package inventory

import (
	"strings"

	"github.com/printlab/printlab-backend/pkg/db/models"
)

func normalizeColor(value string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "#"))
}

func sizeMatches(variant models.ProductVariant, size string) bool {
	size = strings.TrimSpace(size)
	if size == "" {
		return false
	}
	return strings.EqualFold(variant.SizeName, size) ||
		(variant.SizeAbbr != "" && strings.EqualFold(variant.SizeAbbr, size))
}

// matchVariant finds the active variant whose color code equals color
// (ignoring case and a leading '#') and whose size name or abbreviation equals size.
func matchVariant(variants []models.ProductVariant, size, color string) (models.ProductVariant, bool) {
	wantColor := normalizeColor(color)
	for _, v := range variants {
		if !v.IsActive {
			continue
		}
		if normalizeColor(v.ColorCode) == wantColor && sizeMatches(v, size) {
			return v, true
		}
	}
	return models.ProductVariant{}, false
}

// matchInputVariant picks the stock unit of inputID for a product variant.
// Unvaried axes match anything; the candidate matching the most axes wins.
func matchInputVariant(candidates []models.InputVariant, inputID string, variant models.ProductVariant) *models.InputVariant {
	var (
		best      *models.InputVariant
		bestScore = -1
	)
	for i := range candidates {
		c := &candidates[i]
		if c.InputID.String() != inputID {
			continue
		}
		score := 0
		if c.ColorCode != nil {
			if normalizeColor(*c.ColorCode) != normalizeColor(variant.ColorCode) {
				continue
			}
			score++
		}
		if c.SizeName != nil {
			if !sizeMatches(variant, *c.SizeName) {
				continue
			}
			score++
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
