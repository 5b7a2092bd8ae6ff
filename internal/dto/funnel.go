package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

// CreateFunnelEventRequest appends a stage transition event.
type CreateFunnelEventRequest struct {
	StudentID      string          `json:"student_id" validate:"required"`
	EventType      string          `json:"event_type" validate:"required"`
	FromStage      *string         `json:"from_stage,omitempty"`
	ToStage        *string         `json:"to_stage,omitempty"`
	LeadSource     *string         `json:"lead_source,omitempty"`
	ContactChannel *string         `json:"contact_channel,omitempty"`
	OccurredAt     *time.Time      `json:"occurred_at,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// BottleneckResponse ranks stages by dropout rate, worst first.
type BottleneckResponse struct {
	Stages     []models.BottleneckDetail `json:"stages"`
	WorstStage *models.FunnelStage       `json:"worst_stage,omitempty"`
}

// TransitionResponse lists stage transition aggregates, most common
// transitions first.
type TransitionResponse struct {
	Transitions []models.StageTransitionStat `json:"transitions"`
}

// CohortResponse lists per-month cohort rows in chronological order.
type CohortResponse struct {
	Cohorts []models.CohortRow `json:"cohorts"`
}
