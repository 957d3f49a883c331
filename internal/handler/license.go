package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/keypilot/keypilot-api/internal/handler/dto"
	"github.com/keypilot/keypilot-api/internal/service"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service *service.LicenseService
	logger  *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.Named("LicenseHandler"),
	}
}

func (h *LicenseHandler) Create(c *gin.Context) {
	h.logger.Debug("Received request to issue license")
	var req dto.IssueLicenseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		c.Error(err)
		return
	}

	createdLicense, err := h.service.IssueLicense(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Service failed to issue license", zap.Error(err))
		c.Error(err)
		return
	}

	h.logger.Info("License issued successfully via handler", zap.Int64("id", createdLicense.ID))
	c.JSON(http.StatusCreated, dto.NewLicenseResponse(createdLicense))
}

func (h *LicenseHandler) List(c *gin.Context) {
	appIDStr := c.Query("app_id")
	appID, err := strconv.ParseInt(appIDStr, 10, 64)
	if err != nil || appID <= 0 {
		h.logger.Warn("Invalid app_id received", zap.String("app_id_param", appIDStr))
		c.JSON(http.StatusBadRequest, dto.APIErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Query parameter app_id must be a positive integer",
		})
		return
	}

	licenses, err := h.service.ListLicenses(c.Request.Context(), appID)
	if err != nil {
		h.logger.Error("Service failed to list licenses", zap.Int64("app_id", appID), zap.Error(err))
		c.Error(err)
		return
	}

	responses := make([]*dto.LicenseResponse, len(licenses))
	for i, lic := range licenses {
		responses[i] = dto.NewLicenseResponse(lic)
	}
	c.JSON(http.StatusOK, gin.H{"licenses": responses})
}
