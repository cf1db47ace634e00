package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/config"
	"github.com/printlab/printlab-backend/pkg/db/models"
	"github.com/printlab/printlab-backend/pkg/logger"
)

const (
	KeyShippingCost          = "shipping_cost"
	KeyFreeShippingThreshold = "free_shipping_threshold"
	KeyTaxRate               = "tax_rate"
	KeyTaxIncluded           = "tax_included"
)

// Pricing is the configuration an order is priced against.
type Pricing struct {
	ShippingCost          int64
	FreeShippingThreshold int64
	TaxRate               decimal.Decimal
	TaxIncluded           bool
}

// Service reads pricing from the settings table, falling back to defaults
// for missing or malformed keys.
type Service struct {
	db       *gorm.DB
	defaults config.PricingConfig
	logg     *logger.Logger
}

func NewService(db *gorm.DB, defaults config.PricingConfig, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{db: db, defaults: defaults, logg: logg}, nil
}

// Pricing loads the current pricing configuration.
func (s *Service) Pricing(ctx context.Context) (Pricing, error) {
	var rows []models.Setting
	err := s.db.WithContext(ctx).
		Where("key IN ?", []string{KeyShippingCost, KeyFreeShippingThreshold, KeyTaxRate, KeyTaxIncluded}).
		Find(&rows).Error
	if err != nil {
		return Pricing{}, fmt.Errorf("load pricing settings: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = strings.TrimSpace(row.Value)
	}

	pricing := Pricing{
		ShippingCost:          s.defaults.ShippingCost,
		FreeShippingThreshold: s.defaults.FreeShippingThreshold,
		TaxRate:               decimal.NewFromFloat(s.defaults.TaxRate),
		TaxIncluded:           s.defaults.TaxIncluded,
	}

	if raw, ok := values[KeyShippingCost]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			pricing.ShippingCost = v
		} else {
			s.ignored(ctx, KeyShippingCost, raw)
		}
	}
	if raw, ok := values[KeyFreeShippingThreshold]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			pricing.FreeShippingThreshold = v
		} else {
			s.ignored(ctx, KeyFreeShippingThreshold, raw)
		}
	}
	if raw, ok := values[KeyTaxRate]; ok {
		if v, err := decimal.NewFromString(raw); err == nil && !v.IsNegative() && v.LessThan(decimal.NewFromInt(1)) {
			pricing.TaxRate = v
		} else {
			s.ignored(ctx, KeyTaxRate, raw)
		}
	}
	if raw, ok := values[KeyTaxIncluded]; ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			pricing.TaxIncluded = v
		} else {
			s.ignored(ctx, KeyTaxIncluded, raw)
		}
	}
	return pricing, nil
}

func (s *Service) ignored(ctx context.Context, key, value string) {
	ctx = s.logg.WithFields(ctx, map[string]any{"setting_key": key, "setting_value": value})
	s.logg.Warn(ctx, "settings.invalid_value_using_default")
}
