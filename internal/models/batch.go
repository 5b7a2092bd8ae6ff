package models

import "time"

// EntityFailure records a single student whose computation failed during
// a batch run. Failures are data in the summary, not transport errors.
type EntityFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BatchSummary is the result contract of a batch run.
type BatchSummary struct {
	Considered    int             `json:"considered"`
	Updated       int             `json:"updated"`
	AlertsCreated int             `json:"alertsCreated"`
	AlertsUpdated int             `json:"alertsUpdated"`
	Failed        int             `json:"failed"`
	Failures      []EntityFailure `json:"failures,omitempty"`
	ConfigVersion int             `json:"config_version"`
	StartedAt     time.Time       `json:"started_at"`
	DurationMs    int64           `json:"duration_ms"`
}

// FunnelRefreshSummary reports the day-count refresh run.
type FunnelRefreshSummary struct {
	Considered int             `json:"considered"`
	Updated    int             `json:"updated"`
	Failed     int             `json:"failed"`
	Failures   []EntityFailure `json:"failures,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs int64           `json:"duration_ms"`
}
