package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Value serializes the history to a JSON array. A nil history is stored as [].
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]StatusHistoryEntry(h))
}

// Scan decodes a JSONB array into the history.
func (h *StatusHistory) Scan(value any) error {
	if value == nil {
		*h = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var entries []StatusHistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	*h = entries
	return nil
}

// Value serializes the address snapshot to JSON.
func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan decodes JSONB into the address snapshot.
func (a *ShippingAddress) Scan(value any) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, a)
}

// Value serializes the map to JSON.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(map[string]any(j))
}

// Scan decodes JSONB into the map.
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	result := make(JSONMap)
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*j = result
	return nil
}

func asJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON scan type %T", value)
	}
}
