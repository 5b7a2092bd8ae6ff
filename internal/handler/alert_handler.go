package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/response"
)

type alertService interface {
	List(ctx context.Context, filter models.RiskAlertFilter) ([]models.RiskAlert, *models.Pagination, error)
	Apply(ctx context.Context, alertID string, req dto.AlertActionRequest, actor *models.JWTClaims) (*models.RiskAlert, error)
}

// AlertHandler exposes alert list and lifecycle endpoints.
type AlertHandler struct {
	service alertService
}

// NewAlertHandler constructs the handler.
func NewAlertHandler(service alertService) *AlertHandler {
	return &AlertHandler{service: service}
}

// List godoc
// @Summary List risk alerts
// @Tags Alerts
// @Produce json
// @Param studentId query string false "Student ID filter"
// @Param status query string false "Status filter (active|acknowledged|resolved|dismissed)"
// @Param severity query string false "Severity filter"
// @Param type query string false "Alert type filter"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	filter := models.RiskAlertFilter{
		StudentID: strings.TrimSpace(c.Query("studentId")),
		Status:    models.AlertStatus(strings.TrimSpace(c.Query("status"))),
		Severity:  models.AlertSeverity(strings.TrimSpace(c.Query("severity"))),
		Type:      models.AlertType(strings.TrimSpace(c.Query("type"))),
	}
	filter.Limit, filter.Offset = parseLimitOffset(c, 50, 200)

	alerts, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, pagination)
}

// Action godoc
// @Summary Apply a lifecycle action to an alert
// @Tags Alerts
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param payload body dto.AlertActionRequest true "Action payload"
// @Success 200 {object} response.Envelope
// @Router /alerts/{id}/action [patch]
func (h *AlertHandler) Action(c *gin.Context) {
	var req dto.AlertActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid action payload"))
		return
	}
	alert, err := h.service.Apply(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alert, nil)
}
