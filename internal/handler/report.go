package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/keypilot/keypilot-api/internal/handler/dto"
	"github.com/keypilot/keypilot-api/internal/service"
	"go.uber.org/zap"
)

type ReportHandler struct {
	service *service.ReportService
	logger  *zap.Logger
}

func NewReportHandler(service *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger.Named("ReportHandler"),
	}
}

// appIDFilter reads the optional app_id query param; zero means no
// filter. The bool result is false when the param was present but
// malformed (a 400 has already been written).
func (h *ReportHandler) appIDFilter(c *gin.Context) (int64, bool) {
	raw := c.Query("app_id")
	if raw == "" {
		return 0, true
	}
	appID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || appID <= 0 {
		h.logger.Warn("Invalid app_id filter received", zap.String("app_id_param", raw))
		c.JSON(http.StatusBadRequest, dto.APIErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid app_id filter",
		})
		return 0, false
	}
	return appID, true
}

func (h *ReportHandler) ListActivations(c *gin.Context) {
	appID, ok := h.appIDFilter(c)
	if !ok {
		return
	}

	activations, err := h.service.ListActivations(c.Request.Context(), appID)
	if err != nil {
		h.logger.Error("Service failed to list activations", zap.Error(err))
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activations": activations})
}

func (h *ReportHandler) ListFailedAttempts(c *gin.Context) {
	appID, ok := h.appIDFilter(c)
	if !ok {
		return
	}

	attempts, err := h.service.ListFailedAttempts(c.Request.Context(), appID)
	if err != nil {
		h.logger.Error("Service failed to list failed attempts", zap.Error(err))
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed_attempts": attempts})
}
