package models

import (
	"encoding/json"
	"time"
)

// FunnelStage is a discrete point in the lead-to-enrollment lifecycle.
type FunnelStage string

const (
	StageFirstContact          FunnelStage = "first_contact"
	StageConsultationScheduled FunnelStage = "consultation_scheduled"
	StageConsultationCompleted FunnelStage = "consultation_completed"
	StageTestScheduled         FunnelStage = "test_scheduled"
	StageTestCompleted         FunnelStage = "test_completed"
	StageRegistrationCompleted FunnelStage = "registration_completed"
	StageDroppedOff            FunnelStage = "dropped_off"
)

// FunnelStageOrder lists forward stages in lifecycle order. dropped_off
// is a valid back-transition from any stage and is not part of the
// forward order.
var FunnelStageOrder = []FunnelStage{
	StageFirstContact,
	StageConsultationScheduled,
	StageConsultationCompleted,
	StageTestScheduled,
	StageTestCompleted,
	StageRegistrationCompleted,
}

// ValidFunnelStage reports whether the stage is known.
func ValidFunnelStage(stage FunnelStage) bool {
	if stage == StageDroppedOff {
		return true
	}
	for _, s := range FunnelStageOrder {
		if s == stage {
			return true
		}
	}
	return false
}

// FunnelEvent is an append-only stage transition record. Events are
// immutable once written; DaysFromPrevious is maintained by the
// day-count refresh run.
type FunnelEvent struct {
	ID               string          `db:"id" json:"id"`
	StudentID        string          `db:"student_id" json:"student_id"`
	EventType        FunnelStage     `db:"event_type" json:"event_type"`
	FromStage        *FunnelStage    `db:"from_stage" json:"from_stage,omitempty"`
	ToStage          *FunnelStage    `db:"to_stage" json:"to_stage,omitempty"`
	LeadSource       *string         `db:"lead_source" json:"lead_source,omitempty"`
	ContactChannel   *string         `db:"contact_channel" json:"contact_channel,omitempty"`
	DaysFromPrevious *int            `db:"days_from_previous" json:"days_from_previous,omitempty"`
	Metadata         json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	OccurredAt       time.Time       `db:"occurred_at" json:"occurred_at"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// FunnelEventFilter scopes funnel aggregate queries.
type FunnelEventFilter struct {
	LeadSource string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// BottleneckDetail is the per-stage aggregate surfaced by bottleneck
// detection. DropoutRate is a percentage rounded to one decimal.
type BottleneckDetail struct {
	Stage               FunnelStage    `json:"stage"`
	Entries             int            `json:"entries"`
	Dropouts            int            `json:"dropouts"`
	DropoutRate         float64        `json:"dropout_rate"`
	AvgConsultations    float64        `json:"avg_consultations"`
	ChannelCounts       map[string]int `json:"channel_counts"`
	AvgDaysSinceContact float64        `json:"avg_days_since_contact"`
}

// StageTransitionStat aggregates consecutive (from, to) stage pairs.
type StageTransitionStat struct {
	FromStage FunnelStage `json:"from_stage"`
	ToStage   FunnelStage `json:"to_stage"`
	Count     int         `json:"count"`
	AvgDays   float64     `json:"avg_days"`
}

// CohortMonths is how many calendar months after entry a cohort is
// tracked (months 0 through CohortMonths-1).
const CohortMonths = 4

// CohortRow tracks a calendar-month cohort longitudinally. The month
// slices hold cumulative counts for months 0..3 after entry. Cohorts
// younger than CohortMonths elapsed months are flagged ongoing so
// consumers do not read deflated rates off an incomplete window.
type CohortRow struct {
	CohortMonth     string  `json:"cohort_month"`
	Size            int     `json:"size"`
	TestCompleted   []int   `json:"test_completed"`
	Registered      []int   `json:"registered"`
	TestRate        float64 `json:"test_rate"`
	RegistrationRate float64 `json:"registration_rate"`
	IsOngoing       bool    `json:"is_ongoing"`
}
