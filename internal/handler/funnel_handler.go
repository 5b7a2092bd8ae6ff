package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/middleware"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/response"
)

type funnelService interface {
	RecordEvent(ctx context.Context, req dto.CreateFunnelEventRequest) (*models.FunnelEvent, error)
	Bottlenecks(ctx context.Context, filter models.FunnelEventFilter) (*dto.BottleneckResponse, bool, error)
	Transitions(ctx context.Context, filter models.FunnelEventFilter) (*dto.TransitionResponse, bool, error)
	Cohorts(ctx context.Context, filter models.FunnelEventFilter) (*dto.CohortResponse, bool, error)
}

// FunnelHandler exposes the enrollment funnel surface.
type FunnelHandler struct {
	service funnelService
}

// NewFunnelHandler constructs the handler.
func NewFunnelHandler(service funnelService) *FunnelHandler {
	return &FunnelHandler{service: service}
}

func funnelFilterFromQuery(c *gin.Context) (models.FunnelEventFilter, error) {
	filter := models.FunnelEventFilter{
		LeadSource: strings.TrimSpace(c.Query("leadSource")),
	}
	from, ok := parseDateQuery(c, "from")
	if !ok {
		return filter, appErrors.Clone(appErrors.ErrValidation, "invalid from date, expected YYYY-MM-DD")
	}
	to, ok := parseDateQuery(c, "to")
	if !ok {
		return filter, appErrors.Clone(appErrors.ErrValidation, "invalid to date, expected YYYY-MM-DD")
	}
	filter.DateFrom = from
	filter.DateTo = to
	return filter, nil
}

// CreateEvent godoc
// @Summary Append a funnel stage event
// @Tags Funnel
// @Accept json
// @Produce json
// @Param payload body dto.CreateFunnelEventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /funnel/events [post]
func (h *FunnelHandler) CreateEvent(c *gin.Context) {
	var req dto.CreateFunnelEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	event, err := h.service.RecordEvent(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Bottlenecks godoc
// @Summary Per-stage dropout aggregates, worst first
// @Tags Funnel
// @Produce json
// @Param leadSource query string false "Lead source filter"
// @Param from query string false "Occurred-at lower bound (YYYY-MM-DD)"
// @Param to query string false "Occurred-at upper bound (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /funnel/bottlenecks [get]
func (h *FunnelHandler) Bottlenecks(c *gin.Context) {
	filter, err := funnelFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	result, cacheHit, err := h.service.Bottlenecks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithMeta(c, result, cacheHit, start)
}

// Transitions godoc
// @Summary Stage transition aggregates
// @Tags Funnel
// @Produce json
// @Param leadSource query string false "Lead source filter"
// @Param from query string false "Occurred-at lower bound (YYYY-MM-DD)"
// @Param to query string false "Occurred-at upper bound (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /funnel/transitions [get]
func (h *FunnelHandler) Transitions(c *gin.Context) {
	filter, err := funnelFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	result, cacheHit, err := h.service.Transitions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithMeta(c, result, cacheHit, start)
}

// Cohorts godoc
// @Summary Calendar-month cohort conversion
// @Tags Funnel
// @Produce json
// @Param leadSource query string false "Lead source filter"
// @Param from query string false "Occurred-at lower bound (YYYY-MM-DD)"
// @Param to query string false "Occurred-at upper bound (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /funnel/cohorts [get]
func (h *FunnelHandler) Cohorts(c *gin.Context) {
	filter, err := funnelFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	result, cacheHit, err := h.service.Cohorts(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondWithMeta(c, result, cacheHit, start)
}

func (h *FunnelHandler) respondWithMeta(c *gin.Context, data interface{}, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, nil, meta)
}
