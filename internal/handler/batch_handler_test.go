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

type batchServiceMock struct {
	riskSummary   models.BatchSummary
	riskErr       error
	funnelSummary models.FunnelRefreshSummary
	funnelErr     error
}

func (m *batchServiceMock) RunRiskBatch(context.Context) (models.BatchSummary, error) {
	return m.riskSummary, m.riskErr
}

func (m *batchServiceMock) RunFunnelRefresh(context.Context) (models.FunnelRefreshSummary, error) {
	return m.funnelSummary, m.funnelErr
}

func TestBatchHandlerPartialFailureIsStillOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &batchServiceMock{
		riskSummary: models.BatchSummary{
			Considered: 120,
			Updated:    118,
			Failed:     2,
			Failures: []models.EntityFailure{
				{StudentID: "s7", Reason: "activity query timed out"},
				{StudentID: "s9", Reason: "duplicate key"},
			},
		},
	}
	handler := NewBatchHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batch/risk-scores", nil)
	c.Request = req

	handler.RunRiskScores(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 120, data["considered"])
	assert.EqualValues(t, 2, data["failed"])
}

func TestBatchHandlerConcurrentRunConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &batchServiceMock{
		riskErr: appErrors.Clone(appErrors.ErrBatchRunning, "risk batch already in progress"),
	}
	handler := NewBatchHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batch/risk-scores", nil)
	c.Request = req

	handler.RunRiskScores(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrBatchRunning.Code, envelope.Error.Code)
}

func TestBatchHandlerFunnelRefresh(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &batchServiceMock{
		funnelSummary: models.FunnelRefreshSummary{Considered: 40, Updated: 3},
	}
	handler := NewBatchHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/batch/funnel-refresh", nil)
	c.Request = req

	handler.RunFunnelRefresh(c)
	require.Equal(t, http.StatusOK, w.Code)
}
