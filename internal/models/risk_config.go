package models

import "time"

// Allow-listed configuration keys accepted by the update endpoint.
const (
	ConfigKeyScoreWeights       = "score_weights"
	ConfigKeyThresholds         = "thresholds"
	ConfigKeyAlertTriggers      = "alert_triggers"
	ConfigKeyAnalysisPeriodDays = "analysis_period_days"
)

// AllowedConfigKeys enumerates the keys the configuration surface will
// accept. Anything else is a validation error.
var AllowedConfigKeys = []string{
	ConfigKeyScoreWeights,
	ConfigKeyThresholds,
	ConfigKeyAlertTriggers,
	ConfigKeyAnalysisPeriodDays,
}

// ScoreWeights maps factor name to its weight. Weights must cover all
// known factors and sum to 1.0.
type ScoreWeights map[string]float64

// RiskThresholds holds the score cutoffs separating levels. Scores at or
// below Low are high risk, at or below Warning are medium risk. The
// noise floor is the minimum score delta considered a real trend move.
type RiskThresholds struct {
	Low             float64 `json:"low"`
	Warning         float64 `json:"warning"`
	TrendNoiseFloor float64 `json:"trend_noise_floor"`
}

// AlertTriggers declares the conditions under which the alert engine
// creates or refreshes alerts.
type AlertTriggers struct {
	RiskLevelIncreased bool      `json:"risk_level_increased"`
	NoContactDays      int       `json:"no_contact_days"`
	NoContactMinLevel  RiskLevel `json:"no_contact_min_level"`
}

// RiskConfig is a versioned scoring configuration snapshot. Updates
// insert a new version rather than mutating in place so a batch run in
// flight keeps scoring against the version it started with.
type RiskConfig struct {
	Version            int            `json:"version"`
	ScoreWeights       ScoreWeights   `json:"score_weights"`
	Thresholds         RiskThresholds `json:"thresholds"`
	AlertTriggers      AlertTriggers  `json:"alert_triggers"`
	AnalysisPeriodDays int            `json:"analysis_period_days"`
	UpdatedBy          *string        `json:"updated_by,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// DefaultRiskConfig returns the seed configuration (version 1). The
// numbers are operational tuning values; deployments override them
// through the configuration endpoint.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Version: 1,
		ScoreWeights: ScoreWeights{
			FactorAttendance:   0.30,
			FactorHomework:     0.20,
			FactorFocus:        0.15,
			FactorTest:         0.25,
			FactorMissingTests: 0.10,
		},
		Thresholds: RiskThresholds{
			Low:             40,
			Warning:         70,
			TrendNoiseFloor: 2.0,
		},
		AlertTriggers: AlertTriggers{
			RiskLevelIncreased: true,
			NoContactDays:      14,
			NoContactMinLevel:  RiskMedium,
		},
		AnalysisPeriodDays: 30,
	}
}
