package enums

import "fmt"

// MovementType classifies an inventory ledger row.
type MovementType string

const (
	MovementTypeSale       MovementType = "SALE"
	MovementTypeReturn     MovementType = "RETURN"
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
	MovementTypeRestock    MovementType = "RESTOCK"
)

var validMovementTypes = []MovementType{
	MovementTypeSale,
	MovementTypeReturn,
	MovementTypeAdjustment,
	MovementTypeRestock,
}

// String implements fmt.Stringer.
func (m MovementType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementType.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}

// MovementReference names the aggregate a movement was recorded against.
type MovementReference string

const (
	MovementReferenceOrder  MovementReference = "order"
	MovementReferenceManual MovementReference = "manual"
)
