package dto

// AlertActionRequest mutates an alert's lifecycle state.
type AlertActionRequest struct {
	Action string  `json:"action" validate:"required,oneof=acknowledge resolve dismiss"`
	Note   *string `json:"note,omitempty" validate:"omitempty,max=2000"`
}
