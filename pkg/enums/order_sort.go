package enums

import "fmt"

// OrderSort controls list ordering by creation time.
type OrderSort string

const (
	OrderSortNewest OrderSort = "newest"
	OrderSortOldest OrderSort = "oldest"
)

// ParseOrderSort defaults to newest when value is empty.
func ParseOrderSort(value string) (OrderSort, error) {
	switch OrderSort(value) {
	case "", OrderSortNewest:
		return OrderSortNewest, nil
	case OrderSortOldest:
		return OrderSortOldest, nil
	}
	return "", fmt.Errorf("invalid order sort %q", value)
}
