package inventory

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/printlab/printlab-backend/pkg/db/models"
	pkgerrors "github.com/printlab/printlab-backend/pkg/errors"
)

// ErrVariantNotFound marks a lookup whose product exists but no variant matches.
var ErrVariantNotFound = stdErrors.New("inventory: no matching variant")

// Line is a requested cart line.
type Line struct {
	ProductID uuid.UUID
	Size      string
	Color     string
	Quantity  int
}

// Resolution is a product, its matched variant and the stock backing it.
type Resolution struct {
	Product   *models.Product
	Variant   models.ProductVariant
	Source    Source
	Available int
}

// UnitPrice is the variant override when set, else the product base price.
func (r *Resolution) UnitPrice() int64 {
	if r.Variant.Price != nil {
		return *r.Variant.Price
	}
	return r.Product.BasePrice
}

// Require fails with an insufficient-stock error when quantity exceeds availability.
func (r *Resolution) Require(quantity int) error {
	if quantity <= r.Available {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeInsufficientStock,
		"insufficient stock for %s: requested %d, available %d", r.Product.Name, quantity, r.Available).
		WithDetails(map[string]any{
			"product":    r.Product.Name,
			"product_id": r.Product.ID.String(),
			"variant_id": r.Variant.ID.String(),
			"requested":  quantity,
			"available":  r.Available,
		})
}

// Resolver computes sellable quantity for cart lines. It never writes.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &Resolver{repo: repo}, nil
}

// WithTx returns a resolver that reads through tx.
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	return &Resolver{repo: r.repo.WithTx(tx)}
}

// Lookup resolves product, variant and availability without checking quantity.
func (r *Resolver) Lookup(ctx context.Context, line Line) (*Resolution, error) {
	product, err := r.repo.FindProduct(ctx, line.ProductID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": line.ProductID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	variant, ok := matchVariant(product.Variants, line.Size, line.Color)
	if !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrVariantNotFound,
			fmt.Sprintf("%s has no variant for size %q and color %q", product.Name, strings.TrimSpace(line.Size), strings.TrimSpace(line.Color)))
	}
	return r.build(ctx, product, variant)
}

// Resolve is Lookup followed by an availability check for line.Quantity.
func (r *Resolver) Resolve(ctx context.Context, line Line) (*Resolution, error) {
	res, err := r.Lookup(ctx, line)
	if err != nil {
		return nil, err
	}
	if err := res.Require(line.Quantity); err != nil {
		return nil, err
	}
	return res, nil
}

// ForVariant rebuilds the resolution of an already placed line by ids. The
// variant may have been deactivated since the order was placed.
func (r *Resolver) ForVariant(ctx context.Context, productID, variantID uuid.UUID) (*Resolution, error) {
	product, err := r.repo.FindProduct(ctx, productID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	for _, v := range product.Variants {
		if v.ID == variantID {
			return r.build(ctx, product, v)
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrVariantNotFound, product.Name+" variant no longer exists")
}

func (r *Resolver) build(ctx context.Context, product *models.Product, variant models.ProductVariant) (*Resolution, error) {
	var inputStock []models.InputVariant
	if len(product.Recipe) > 0 {
		ids := make([]uuid.UUID, 0, len(product.Recipe))
		for _, item := range product.Recipe {
			ids = append(ids, item.InputID)
		}
		var err error
		inputStock, err = r.repo.FindInputVariants(ctx, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load input stock")
		}
	}

	src, err := sourceFor(product, variant, inputStock)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve stock source")
	}
	return &Resolution{
		Product:   product,
		Variant:   variant,
		Source:    src,
		Available: Available(src),
	}, nil
}
