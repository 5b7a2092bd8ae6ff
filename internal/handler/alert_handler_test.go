package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/middleware"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/response"
)

type alertServiceMock struct {
	listResp   []models.RiskAlert
	pagination *models.Pagination
	listFilter models.RiskAlertFilter
	applyResp  *models.RiskAlert
	applyErr   error
}

func (m *alertServiceMock) List(_ context.Context, filter models.RiskAlertFilter) ([]models.RiskAlert, *models.Pagination, error) {
	m.listFilter = filter
	return m.listResp, m.pagination, nil
}

func (m *alertServiceMock) Apply(_ context.Context, _ string, _ dto.AlertActionRequest, _ *models.JWTClaims) (*models.RiskAlert, error) {
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	return m.applyResp, nil
}

func TestAlertHandlerListAppliesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &alertServiceMock{
		listResp:   []models.RiskAlert{{ID: "a1", Status: models.AlertActive}},
		pagination: &models.Pagination{Limit: 50, TotalCount: 1},
	}
	handler := NewAlertHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/alerts?status=active&severity=high&limit=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AlertActive, mock.listFilter.Status)
	assert.Equal(t, models.SeverityHigh, mock.listFilter.Severity)
	assert.Equal(t, 10, mock.listFilter.Limit)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestAlertHandlerActionInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAlertHandler(&alertServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/alerts/a1/action", bytes.NewReader([]byte(`not-json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Action(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertHandlerActionTransitionConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &alertServiceMock{
		applyErr: appErrors.Clone(appErrors.ErrInvalidTransition, "resolve not allowed from status active"),
	}
	handler := NewAlertHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.AlertActionRequest{Action: "resolve"})
	req, _ := http.NewRequest(http.MethodPatch, "/alerts/a1/action", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})

	handler.Action(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, envelope.Error.Code)
}

func TestAlertHandlerActionSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &alertServiceMock{
		applyResp: &models.RiskAlert{ID: "a1", Status: models.AlertAcknowledged},
	}
	handler := NewAlertHandler(mock)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.AlertActionRequest{Action: "acknowledge"})
	req, _ := http.NewRequest(http.MethodPatch, "/alerts/a1/action", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})

	handler.Action(c)
	require.Equal(t, http.StatusOK, w.Code)
}
