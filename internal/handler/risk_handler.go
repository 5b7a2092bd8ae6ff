package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-pulse-api/internal/middleware"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/response"
)

type riskReadService interface {
	List(ctx context.Context, filter models.RiskScoreFilter) ([]models.RiskScore, *models.Pagination, error)
	StudentDetail(ctx context.Context, studentID string, historyLimit int) (*models.StudentRiskDetail, bool, error)
}

// RiskHandler exposes the risk score read surface.
type RiskHandler struct {
	service riskReadService
}

// NewRiskHandler constructs the handler.
func NewRiskHandler(service riskReadService) *RiskHandler {
	return &RiskHandler{service: service}
}

// List godoc
// @Summary List latest risk scores, worst first
// @Tags Risk
// @Produce json
// @Param level query string false "Risk level filter (low|medium|high)"
// @Param studentId query string false "Student ID filter"
// @Param from query string false "Computed-at lower bound (YYYY-MM-DD)"
// @Param to query string false "Computed-at upper bound (YYYY-MM-DD)"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /risk/scores [get]
func (h *RiskHandler) List(c *gin.Context) {
	filter := models.RiskScoreFilter{
		StudentID: strings.TrimSpace(c.Query("studentId")),
		Level:     models.RiskLevel(strings.TrimSpace(c.Query("level"))),
	}
	from, ok := parseDateQuery(c, "from")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD"))
		return
	}
	to, ok := parseDateQuery(c, "to")
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD"))
		return
	}
	filter.DateFrom = from
	filter.DateTo = to
	filter.Limit, filter.Offset = parseLimitOffset(c, 50, 200)

	scores, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, scores, pagination)
}

// StudentDetail godoc
// @Summary Risk detail for one student
// @Tags Risk
// @Produce json
// @Param id path string true "Student ID"
// @Param historyLimit query int false "History rows to include"
// @Success 200 {object} response.Envelope
// @Router /risk/students/{id} [get]
func (h *RiskHandler) StudentDetail(c *gin.Context) {
	historyLimit := 30
	if raw := strings.TrimSpace(c.Query("historyLimit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			historyLimit = v
		}
	}
	start := time.Now()
	detail, cacheHit, err := h.service.StudentDetail(c.Request.Context(), c.Param("id"), historyLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, detail, nil, meta)
}
