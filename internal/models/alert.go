package models

import (
	"time"

	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

// AlertType identifies the condition that raised an alert.
type AlertType string

const (
	AlertRiskLevelIncreased AlertType = "risk_level_increased"
	AlertNoRecentContact    AlertType = "no_recent_contact"
)

// AlertSeverity grades how urgent an alert is.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertDismissed    AlertStatus = "dismissed"
)

// Terminal reports whether no further transitions are allowed.
func (s AlertStatus) Terminal() bool {
	return s == AlertResolved || s == AlertDismissed
}

// AlertAction is a requested status transition.
type AlertAction string

const (
	ActionAcknowledge AlertAction = "acknowledge"
	ActionResolve     AlertAction = "resolve"
	ActionDismiss     AlertAction = "dismiss"
)

// alertTransitions is the single source of truth for the alert state
// machine: active -> acknowledged -> resolved, or active -> dismissed.
var alertTransitions = map[AlertStatus]map[AlertAction]AlertStatus{
	AlertActive: {
		ActionAcknowledge: AlertAcknowledged,
		ActionDismiss:     AlertDismissed,
	},
	AlertAcknowledged: {
		ActionResolve: AlertResolved,
	},
}

// NextAlertStatus validates a transition and returns the resulting
// status. Terminal states and skipped steps are rejected.
func NextAlertStatus(current AlertStatus, action AlertAction) (AlertStatus, error) {
	allowed, ok := alertTransitions[current]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrInvalidTransition, "alert is in a terminal state")
	}
	next, ok := allowed[action]
	if !ok {
		return "", appErrors.Clone(appErrors.ErrInvalidTransition,
			string(action)+" not allowed from status "+string(current))
	}
	return next, nil
}

// ParseAlertAction validates the raw action string from a request.
func ParseAlertAction(raw string) (AlertAction, error) {
	switch AlertAction(raw) {
	case ActionAcknowledge, ActionResolve, ActionDismiss:
		return AlertAction(raw), nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown alert action: "+raw)
	}
}

// RiskAlert represents a notable risk event for a student. At most one
// active alert of a given (student, type) pair exists at a time.
type RiskAlert struct {
	ID             string        `db:"id" json:"id"`
	StudentID      string        `db:"student_id" json:"student_id"`
	Type           AlertType     `db:"type" json:"type"`
	Severity       AlertSeverity `db:"severity" json:"severity"`
	Status         AlertStatus   `db:"status" json:"status"`
	Note           *string       `db:"note" json:"note,omitempty"`
	TriggerScore   *float64      `db:"trigger_score" json:"trigger_score,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
	AcknowledgedAt *time.Time    `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string       `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy     *string       `db:"resolved_by" json:"resolved_by,omitempty"`
	DismissedAt    *time.Time    `db:"dismissed_at" json:"dismissed_at,omitempty"`
	DismissedBy    *string       `db:"dismissed_by" json:"dismissed_by,omitempty"`
}

// RiskAlertFilter scopes alert list queries.
type RiskAlertFilter struct {
	StudentID string
	Status    AlertStatus
	Severity  AlertSeverity
	Type      AlertType
	Limit     int
	Offset    int
}
