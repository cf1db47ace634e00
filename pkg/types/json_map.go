package types

// JSONMap stores an arbitrary JSON object, such as a buyer's customization payload.
type JSONMap map[string]any
