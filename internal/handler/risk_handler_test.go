package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/response"
)

type riskReadServiceMock struct {
	scores     []models.RiskScore
	pagination *models.Pagination
	listFilter models.RiskScoreFilter
	detail     *models.StudentRiskDetail
	detailErr  error
	cacheHit   bool
}

func (m *riskReadServiceMock) List(_ context.Context, filter models.RiskScoreFilter) ([]models.RiskScore, *models.Pagination, error) {
	m.listFilter = filter
	return m.scores, m.pagination, nil
}

func (m *riskReadServiceMock) StudentDetail(_ context.Context, _ string, _ int) (*models.StudentRiskDetail, bool, error) {
	if m.detailErr != nil {
		return nil, false, m.detailErr
	}
	return m.detail, m.cacheHit, nil
}

func TestRiskHandlerListParsesDateFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &riskReadServiceMock{pagination: &models.Pagination{Limit: 50}}
	handler := NewRiskHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/risk/scores?level=high&from=2026-02-01&to=2026-03-01", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RiskHigh, mock.listFilter.Level)
	require.NotNil(t, mock.listFilter.DateFrom)
	assert.Equal(t, "2026-02-01", mock.listFilter.DateFrom.Format("2006-01-02"))
	require.NotNil(t, mock.listFilter.DateTo)
}

func TestRiskHandlerListRejectsMalformedDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRiskHandler(&riskReadServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/risk/scores?from=yesterday", nil)
	c.Request = req

	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRiskHandlerStudentDetailIncludesMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &riskReadServiceMock{
		detail: &models.StudentRiskDetail{
			Student: models.Student{ID: "s1", FullName: "Mina"},
		},
		cacheHit: true,
	}
	handler := NewRiskHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/risk/students/s1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "s1"}}

	handler.StudentDetail(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Meta)
	assert.Contains(t, envelope.Meta, "processing_time_ms")
}

func TestRiskHandlerStudentDetailNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRiskHandler(&riskReadServiceMock{
		detailErr: appErrors.Clone(appErrors.ErrNotFound, "student not found"),
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/risk/students/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.StudentDetail(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
