package service

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

// RiskService turns a factor snapshot into a scored result. Scoring is
// a pure function of (snapshot, config): identical inputs always yield
// identical scores, which keeps batch re-runs idempotent and the audit
// trail explainable. The service deliberately has no repository
// dependency.
type RiskService struct {
	now func() time.Time
}

// NewRiskService constructs a RiskService.
func NewRiskService() *RiskService {
	return &RiskService{now: time.Now}
}

// Score computes the composite score, level and trend for a student.
// prev is the immediately preceding score row, nil on first computation.
func (s *RiskService) Score(studentID string, factor models.RiskFactor, cfg models.RiskConfig, prev *models.RiskScore) models.RiskScore {
	composite := ComputeScore(factor, cfg.ScoreWeights)
	return models.RiskScore{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		Score:         composite,
		Level:         LevelFor(composite, cfg.Thresholds),
		Trend:         TrendFor(composite, prev, cfg.Thresholds),
		ConfigVersion: cfg.Version,
		Factors:       factor,
		ComputedAt:    s.now().UTC(),
	}
}

// ComputeScore is the weighted composite over present factors. Weights
// of absent factors are redistributed by re-normalizing the remaining
// weights to sum to 1, so a missing test average does not silently
// shrink the other factors' contribution.
func ComputeScore(factor models.RiskFactor, weights models.ScoreWeights) float64 {
	var weighted, totalWeight float64
	for _, name := range models.KnownFactors {
		value, present := normalizedFactor(factor, name)
		if !present {
			continue
		}
		w := weights[name]
		if w <= 0 {
			continue
		}
		weighted += value * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return round1(weighted / totalWeight)
}

// LevelFor maps a score to its discrete level. Lower scores are worse:
// the composite derives from attendance/homework/focus quality.
func LevelFor(score float64, thresholds models.RiskThresholds) models.RiskLevel {
	switch {
	case score <= thresholds.Low:
		return models.RiskHigh
	case score <= thresholds.Warning:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// TrendFor compares against the previous score, ignoring moves inside
// the configured noise floor. The first computation is stable by
// convention.
func TrendFor(score float64, prev *models.RiskScore, thresholds models.RiskThresholds) models.RiskTrend {
	if prev == nil {
		return models.TrendStable
	}
	noise := thresholds.TrendNoiseFloor
	if noise < 0 {
		noise = 0
	}
	delta := score - prev.Score
	switch {
	case delta > noise:
		return models.TrendImproving
	case delta < -noise:
		return models.TrendWorsening
	default:
		return models.TrendStable
	}
}

// normalizedFactor maps a factor to the common [0,100] scale. The
// second return value is false when the factor is absent.
func normalizedFactor(factor models.RiskFactor, name string) (float64, bool) {
	switch name {
	case models.FactorAttendance:
		if factor.AttendanceRate == nil {
			return 0, false
		}
		return clamp(*factor.AttendanceRate, 0, 100), true
	case models.FactorHomework:
		if factor.HomeworkAvg == nil {
			return 0, false
		}
		return ratingToPercent(*factor.HomeworkAvg), true
	case models.FactorFocus:
		if factor.FocusAvg == nil {
			return 0, false
		}
		return ratingToPercent(*factor.FocusAvg), true
	case models.FactorTest:
		if factor.TestAvg == nil {
			return 0, false
		}
		return clamp(*factor.TestAvg, 0, 100), true
	case models.FactorMissingTests:
		missing := factor.MissingTests
		if missing > 5 {
			missing = 5
		}
		if missing < 0 {
			missing = 0
		}
		return 100 - 20*float64(missing), true
	default:
		return 0, false
	}
}

// ratingToPercent rescales the 1-5 rating scale onto [0,100].
func ratingToPercent(rating float64) float64 {
	return clamp((rating-1)/4*100, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
