package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
)

type fakeScoreReader struct {
	scores  []models.RiskScore
	total   int
	latest  *models.RiskScore
	history []models.RiskScore
}

func (f *fakeScoreReader) List(context.Context, models.RiskScoreFilter) ([]models.RiskScore, int, error) {
	return f.scores, f.total, nil
}

func (f *fakeScoreReader) FindLatestByStudent(context.Context, string) (*models.RiskScore, error) {
	return f.latest, nil
}

func (f *fakeScoreReader) HistoryByStudent(context.Context, string, int) ([]models.RiskScore, error) {
	return f.history, nil
}

type fakeActiveAlertReader struct {
	alerts []models.RiskAlert
}

func (f *fakeActiveAlertReader) ListActiveByStudent(context.Context, string) ([]models.RiskAlert, error) {
	return f.alerts, nil
}

func TestRiskReadListRejectsUnknownLevel(t *testing.T) {
	svc := NewRiskReadService(&fakeScoreReader{}, &fakeActiveAlertReader{}, &fakeStudentReader{}, nil, 0, nil)

	_, _, err := svc.List(context.Background(), models.RiskScoreFilter{Level: "severe"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRiskReadListBuildsPagination(t *testing.T) {
	reader := &fakeScoreReader{
		scores: []models.RiskScore{{ID: "r1", StudentID: "s1", Level: models.RiskHigh}},
		total:  7,
	}
	svc := NewRiskReadService(reader, &fakeActiveAlertReader{}, &fakeStudentReader{}, nil, 0, nil)

	scores, pagination, err := svc.List(context.Background(), models.RiskScoreFilter{Level: models.RiskHigh})
	require.NoError(t, err)
	require.Len(t, scores, 1)
	require.NotNil(t, pagination)
	assert.Equal(t, 50, pagination.Limit)
	assert.Equal(t, 7, pagination.TotalCount)
}

func TestStudentDetailAssemblesSections(t *testing.T) {
	latest := &models.RiskScore{ID: "r2", StudentID: "s1", Score: 36.0, Level: models.RiskHigh}
	reader := &fakeScoreReader{
		latest:  latest,
		history: []models.RiskScore{*latest, {ID: "r1", StudentID: "s1", Score: 48.0}},
	}
	alerts := &fakeActiveAlertReader{alerts: []models.RiskAlert{{ID: "a1", Status: models.AlertActive}}}
	students := &fakeStudentReader{student: &models.Student{ID: "s1", Status: models.StudentActive}}

	svc := NewRiskReadService(reader, alerts, students, nil, 0, nil)
	detail, cacheHit, err := svc.StudentDetail(context.Background(), "s1", 30)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, "s1", detail.Student.ID)
	require.NotNil(t, detail.Latest)
	assert.Len(t, detail.History, 2)
	assert.Len(t, detail.Alerts, 1)
}

func TestStudentDetailUnknownStudent(t *testing.T) {
	svc := NewRiskReadService(&fakeScoreReader{}, &fakeActiveAlertReader{}, &fakeStudentReader{err: sql.ErrNoRows}, nil, 0, nil)

	_, _, err := svc.StudentDetail(context.Background(), "ghost", 30)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentDetailRequiresID(t *testing.T) {
	svc := NewRiskReadService(&fakeScoreReader{}, &fakeActiveAlertReader{}, &fakeStudentReader{}, nil, 0, nil)

	_, _, err := svc.StudentDetail(context.Background(), "", 30)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
