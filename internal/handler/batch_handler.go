package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-pulse-api/internal/models"
	"github.com/noah-isme/academy-pulse-api/pkg/response"
)

type batchService interface {
	RunRiskBatch(ctx context.Context) (models.BatchSummary, error)
	RunFunnelRefresh(ctx context.Context) (models.FunnelRefreshSummary, error)
}

// BatchHandler triggers the full-population batch runs. Partial
// failure is a 200 with the summary; only run-level errors (concurrent
// run, cancelled context) map to error statuses.
type BatchHandler struct {
	service batchService
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(service batchService) *BatchHandler {
	return &BatchHandler{service: service}
}

// RunRiskScores godoc
// @Summary Recompute risk scores for all active students
// @Tags Batch
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /batch/risk-scores [post]
func (h *BatchHandler) RunRiskScores(c *gin.Context) {
	summary, err := h.service.RunRiskBatch(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// RunFunnelRefresh godoc
// @Summary Recompute funnel day counts
// @Tags Batch
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /batch/funnel-refresh [post]
func (h *BatchHandler) RunFunnelRefresh(c *gin.Context) {
	summary, err := h.service.RunFunnelRefresh(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
