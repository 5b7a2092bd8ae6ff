package models

import "time"

// RiskLevel is the discretized bucket derived from a composite score.
// A low score means an unhealthy student, so the level ordering is
// inverted relative to the score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders levels by ascending severity so trigger conditions such as
// "medium or worse" can compare them.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// RiskTrend compares a score against the previous computation.
type RiskTrend string

const (
	TrendImproving RiskTrend = "improving"
	TrendStable    RiskTrend = "stable"
	TrendWorsening RiskTrend = "worsening"
)

// Factor names used as score weight keys.
const (
	FactorAttendance   = "attendance_rate"
	FactorHomework     = "homework_avg"
	FactorFocus        = "focus_avg"
	FactorTest         = "test_avg"
	FactorMissingTests = "missing_tests"
)

// KnownFactors lists every factor a weight configuration must cover.
var KnownFactors = []string{
	FactorAttendance,
	FactorHomework,
	FactorFocus,
	FactorTest,
	FactorMissingTests,
}

// RiskFactor is the per-student snapshot of scoring inputs aggregated
// over the analysis window. Nil pointers mean the factor had zero
// observations and must be treated as absent, not zero.
type RiskFactor struct {
	AttendanceRate   *float64 `json:"attendance_rate,omitempty"`
	HomeworkAvg      *float64 `json:"homework_avg,omitempty"`
	FocusAvg         *float64 `json:"focus_avg,omitempty"`
	TestAvg          *float64 `json:"test_avg,omitempty"`
	MissingTests     int      `json:"missing_tests"`
	DaysSinceContact *int     `json:"days_since_contact,omitempty"`
}

// RiskScore is one scoring result per student per computation. Rows are
// superseded by later runs, never mutated, so trend comparison always
// has the prior row available.
type RiskScore struct {
	ID            string     `db:"id" json:"id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	Score         float64    `db:"score" json:"score"`
	Level         RiskLevel  `db:"level" json:"level"`
	Trend         RiskTrend  `db:"trend" json:"trend"`
	ConfigVersion int        `db:"config_version" json:"config_version"`
	Factors       RiskFactor `db:"-" json:"factors"`
	ComputedAt    time.Time  `db:"computed_at" json:"computed_at"`
}

// RiskScoreFilter scopes risk score queries.
type RiskScoreFilter struct {
	StudentID string
	Level     RiskLevel
	DateFrom  *time.Time
	DateTo    *time.Time
	Limit     int
	Offset    int
}

// StudentRiskDetail combines the latest score with its history for the
// single-student read endpoint.
type StudentRiskDetail struct {
	Student Student     `json:"student"`
	Latest  *RiskScore  `json:"latest,omitempty"`
	History []RiskScore `json:"history"`
	Alerts  []RiskAlert `json:"alerts"`
}
