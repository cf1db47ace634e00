package enums

import "fmt"

// ProductKind tags how a product's sellable quantity is derived.
type ProductKind string

const (
	// ProductKindRegular products sell from discrete variant stock.
	ProductKindRegular ProductKind = "regular"
	// ProductKindTemplate products are built to order from recipe inputs.
	ProductKindTemplate ProductKind = "template"
)

var validProductKinds = []ProductKind{
	ProductKindRegular,
	ProductKindTemplate,
}

// String implements fmt.Stringer.
func (k ProductKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known ProductKind.
func (k ProductKind) IsValid() bool {
	for _, candidate := range validProductKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseProductKind converts raw input into a ProductKind.
func ParseProductKind(value string) (ProductKind, error) {
	for _, candidate := range validProductKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product kind %q", value)
}
