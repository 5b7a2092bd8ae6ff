package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func fullFactor() models.RiskFactor {
	return models.RiskFactor{
		AttendanceRate: floatPtr(95),
		HomeworkAvg:    floatPtr(4.5),
		FocusAvg:       floatPtr(4.0),
		TestAvg:        floatPtr(88),
		MissingTests:   0,
	}
}

func TestComputeScoreAllFactorsPresent(t *testing.T) {
	cfg := models.DefaultRiskConfig()

	// 0.30*95 + 0.20*87.5 + 0.15*75 + 0.25*88 + 0.10*100 = 89.25
	score := ComputeScore(fullFactor(), cfg.ScoreWeights)
	assert.InDelta(t, 89.3, score, 0.001)
}

func TestComputeScoreIsDeterministic(t *testing.T) {
	cfg := models.DefaultRiskConfig()
	factor := fullFactor()

	first := ComputeScore(factor, cfg.ScoreWeights)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ComputeScore(factor, cfg.ScoreWeights))
	}
}

func TestComputeScoreRenormalizesAbsentFactors(t *testing.T) {
	cfg := models.DefaultRiskConfig()

	// Only attendance observed: its weight renormalizes to 1 against the
	// always-present missing-tests factor.
	factor := models.RiskFactor{AttendanceRate: floatPtr(80), MissingTests: 0}
	// (0.30*80 + 0.10*100) / 0.40 = 85
	assert.InDelta(t, 85.0, ComputeScore(factor, cfg.ScoreWeights), 0.001)

	// Test average missing from the full set must not deflate the score.
	partial := fullFactor()
	partial.TestAvg = nil
	// (0.30*95 + 0.20*87.5 + 0.15*75 + 0.10*100) / 0.75 = 89.666...
	assert.InDelta(t, 89.7, ComputeScore(partial, cfg.ScoreWeights), 0.001)
}

func TestComputeScoreMissingTestsPenalty(t *testing.T) {
	cfg := models.DefaultRiskConfig()

	// Missing tests is always present; the penalty caps at five tests.
	factor := models.RiskFactor{MissingTests: 3}
	// Only missing_tests contributes: 100 - 20*3 = 40.
	assert.InDelta(t, 40.0, ComputeScore(factor, cfg.ScoreWeights), 0.001)

	capped := models.RiskFactor{MissingTests: 12}
	assert.InDelta(t, 0.0, ComputeScore(capped, cfg.ScoreWeights), 0.001)
}

func TestComputeScoreClampsOutOfRangeInputs(t *testing.T) {
	cfg := models.DefaultRiskConfig()

	factor := models.RiskFactor{
		AttendanceRate: floatPtr(130),
		TestAvg:        floatPtr(-5),
		MissingTests:   0,
	}
	// (0.30*100 + 0.25*0 + 0.10*100) / 0.65 = 61.5...
	assert.InDelta(t, 61.5, ComputeScore(factor, cfg.ScoreWeights), 0.001)
}

func TestLevelForBoundaries(t *testing.T) {
	thresholds := models.DefaultRiskConfig().Thresholds

	assert.Equal(t, models.RiskHigh, LevelFor(0, thresholds))
	assert.Equal(t, models.RiskHigh, LevelFor(40, thresholds))
	assert.Equal(t, models.RiskMedium, LevelFor(40.1, thresholds))
	assert.Equal(t, models.RiskMedium, LevelFor(70, thresholds))
	assert.Equal(t, models.RiskLow, LevelFor(70.1, thresholds))
	assert.Equal(t, models.RiskLow, LevelFor(100, thresholds))
}

func TestTrendForNoiseFloor(t *testing.T) {
	thresholds := models.DefaultRiskConfig().Thresholds
	prev := &models.RiskScore{Score: 60}

	assert.Equal(t, models.TrendStable, TrendFor(60, prev, thresholds))
	assert.Equal(t, models.TrendStable, TrendFor(61.9, prev, thresholds))
	assert.Equal(t, models.TrendStable, TrendFor(58.1, prev, thresholds))
	assert.Equal(t, models.TrendImproving, TrendFor(62.1, prev, thresholds))
	assert.Equal(t, models.TrendWorsening, TrendFor(57.8, prev, thresholds))
}

func TestTrendForFirstComputationIsStable(t *testing.T) {
	thresholds := models.DefaultRiskConfig().Thresholds
	assert.Equal(t, models.TrendStable, TrendFor(25, nil, thresholds))
}

func TestScoreBuildsFullRecord(t *testing.T) {
	svc := NewRiskService()
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	cfg := models.DefaultRiskConfig()

	result := svc.Score("student-1", fullFactor(), cfg, nil)

	require.NotEmpty(t, result.ID)
	assert.Equal(t, "student-1", result.StudentID)
	assert.InDelta(t, 89.3, result.Score, 0.001)
	assert.Equal(t, models.RiskLow, result.Level)
	assert.Equal(t, models.TrendStable, result.Trend)
	assert.Equal(t, cfg.Version, result.ConfigVersion)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), result.ComputedAt)
}

func TestScoreWorseningStudentCrossesIntoHigh(t *testing.T) {
	svc := NewRiskService()
	cfg := models.DefaultRiskConfig()
	prev := &models.RiskScore{Score: 65, Level: models.RiskMedium}

	factor := models.RiskFactor{
		AttendanceRate: floatPtr(40),
		HomeworkAvg:    floatPtr(1.8),
		FocusAvg:       floatPtr(2.0),
		MissingTests:   3,
	}
	result := svc.Score("student-2", factor, cfg, prev)

	// (0.30*40 + 0.20*20 + 0.15*25 + 0.10*40) / 0.75 = 31.666...
	assert.InDelta(t, 31.7, result.Score, 0.001)
	assert.Equal(t, models.RiskHigh, result.Level)
	assert.Equal(t, models.TrendWorsening, result.Trend)
}
