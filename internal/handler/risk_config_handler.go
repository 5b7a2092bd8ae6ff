package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-pulse-api/internal/dto"
	"github.com/noah-isme/academy-pulse-api/internal/models"
	appErrors "github.com/noah-isme/academy-pulse-api/pkg/errors"
	"github.com/noah-isme/academy-pulse-api/pkg/response"
)

type riskConfigService interface {
	Current(ctx context.Context) (*models.RiskConfig, error)
	Version(ctx context.Context, version int) (*models.RiskConfig, error)
	Update(ctx context.Context, req dto.UpdateRiskConfigRequest, actor *models.JWTClaims) (*models.RiskConfig, error)
}

// RiskConfigHandler exposes the scoring configuration surface.
type RiskConfigHandler struct {
	service riskConfigService
}

// NewRiskConfigHandler constructs the handler.
func NewRiskConfigHandler(service riskConfigService) *RiskConfigHandler {
	return &RiskConfigHandler{service: service}
}

// Current godoc
// @Summary Current scoring configuration
// @Tags Configuration
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /risk/config [get]
func (h *RiskConfigHandler) Current(c *gin.Context) {
	cfg, err := h.service.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Version godoc
// @Summary Historical scoring configuration version
// @Tags Configuration
// @Produce json
// @Param version path int true "Configuration version"
// @Success 200 {object} response.Envelope
// @Router /risk/config/{version} [get]
func (h *RiskConfigHandler) Version(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version must be an integer"))
		return
	}
	cfg, err := h.service.Version(c.Request.Context(), version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Update godoc
// @Summary Update one allow-listed configuration key
// @Tags Configuration
// @Accept json
// @Produce json
// @Param payload body dto.UpdateRiskConfigRequest true "Configuration payload"
// @Success 200 {object} response.Envelope
// @Router /risk/config [put]
func (h *RiskConfigHandler) Update(c *gin.Context) {
	var req dto.UpdateRiskConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid configuration payload"))
		return
	}
	cfg, err := h.service.Update(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}
