package dto

import "encoding/json"

// UpdateRiskConfigRequest updates a single allow-listed configuration
// key. Value carries the key-specific JSON payload (a weight map, a
// thresholds object, a trigger object or a bare integer).
type UpdateRiskConfigRequest struct {
	Key   string          `json:"key" validate:"required"`
	Value json.RawMessage `json:"value" validate:"required"`
}
