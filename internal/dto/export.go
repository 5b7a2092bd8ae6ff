package dto

import "time"

// CreateExportRequest renders the current risk roster as a file.
type CreateExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
	Level  string `json:"level,omitempty" validate:"omitempty,oneof=low medium high"`
}

// ExportResponse points at the generated file via a signed URL.
type ExportResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expires_at"`
}
