package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/models"
)

func newRiskScoreRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func scoreRowColumns() []string {
	return []string{"id", "student_id", "score", "level", "trend", "config_version", "factors", "computed_at"}
}

func TestRiskScoreRepositoryInsertEncodesFactorSnapshot(t *testing.T) {
	db, mock, cleanup := newRiskScoreRepoMock(t)
	defer cleanup()
	repo := NewRiskScoreRepository(db)

	mock.ExpectExec("INSERT INTO risk_scores").
		WithArgs("r1", "s1", 42.5, "medium", "worsening", 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	attendance := 60.0
	score := &models.RiskScore{
		ID:            "r1",
		StudentID:     "s1",
		Score:         42.5,
		Level:         models.RiskMedium,
		Trend:         models.TrendWorsening,
		ConfigVersion: 2,
		Factors:       models.RiskFactor{AttendanceRate: &attendance, MissingTests: 1},
		ComputedAt:    time.Now(),
	}
	require.NoError(t, repo.Insert(context.Background(), score))
}

func TestRiskScoreRepositoryFindLatestDecodesFactors(t *testing.T) {
	db, mock, cleanup := newRiskScoreRepoMock(t)
	defer cleanup()
	repo := NewRiskScoreRepository(db)

	computedAt := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(scoreRowColumns()).
		AddRow("r1", "s1", 38.2, "high", "worsening", 3,
			[]byte(`{"attendance_rate":55,"missing_tests":2}`), computedAt)
	mock.ExpectQuery("SELECT (.+) FROM risk_scores WHERE student_id = \\$1 ORDER BY computed_at DESC LIMIT 1").
		WithArgs("s1").
		WillReturnRows(rows)

	score, err := repo.FindLatestByStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, models.RiskHigh, score.Level)
	assert.Equal(t, 3, score.ConfigVersion)
	require.NotNil(t, score.Factors.AttendanceRate)
	assert.InDelta(t, 55.0, *score.Factors.AttendanceRate, 0.001)
	assert.Equal(t, 2, score.Factors.MissingTests)
}

func TestRiskScoreRepositoryFindLatestReturnsNilForUnscoredStudent(t *testing.T) {
	db, mock, cleanup := newRiskScoreRepoMock(t)
	defer cleanup()
	repo := NewRiskScoreRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM risk_scores WHERE student_id").
		WithArgs("s9").
		WillReturnError(sql.ErrNoRows)

	score, err := repo.FindLatestByStudent(context.Background(), "s9")
	require.NoError(t, err)
	assert.Nil(t, score)
}

func TestRiskScoreRepositoryHistoryDefaultsLimit(t *testing.T) {
	db, mock, cleanup := newRiskScoreRepoMock(t)
	defer cleanup()
	repo := NewRiskScoreRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(scoreRowColumns()).
		AddRow("r2", "s1", 44.0, "medium", "improving", 3, []byte(`{}`), now).
		AddRow("r1", "s1", 38.2, "high", "stable", 3, []byte(`{}`), now.Add(-24*time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM risk_scores WHERE student_id = \\$1 ORDER BY computed_at DESC LIMIT \\$2").
		WithArgs("s1", 30).
		WillReturnRows(rows)

	history, err := repo.HistoryByStudent(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.TrendImproving, history[0].Trend)
}

func TestRiskScoreRepositoryListLatestPerStudent(t *testing.T) {
	db, mock, cleanup := newRiskScoreRepoMock(t)
	defer cleanup()
	repo := NewRiskScoreRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM").
		WithArgs("high").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows(scoreRowColumns()).
		AddRow("r1", "s1", 31.0, "high", "worsening", 3, []byte(`{}`), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM \\(").
		WithArgs("high", 50, 0).
		WillReturnRows(rows)

	scores, total, err := repo.List(context.Background(), models.RiskScoreFilter{Level: models.RiskHigh})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, scores, 1)
	assert.Equal(t, "s1", scores[0].StudentID)
}
