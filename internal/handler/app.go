package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keypilot/keypilot-api/internal/handler/dto"
	"github.com/keypilot/keypilot-api/internal/service"
	"go.uber.org/zap"
)

type AppHandler struct {
	service *service.AppService
	logger  *zap.Logger
}

func NewAppHandler(service *service.AppService, logger *zap.Logger) *AppHandler {
	return &AppHandler{
		service: service,
		logger:  logger.Named("AppHandler"),
	}
}

func (h *AppHandler) Register(c *gin.Context) {
	h.logger.Debug("Received request to register app")
	var req dto.RegisterAppRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		c.Error(err)
		return
	}

	registered, err := h.service.RegisterApp(c.Request.Context(), req.Name)
	if err != nil {
		h.logger.Error("Service failed to register app", zap.Error(err))
		c.Error(err)
		return
	}

	h.logger.Info("App registered successfully via handler", zap.Int64("id", registered.ID))
	c.JSON(http.StatusCreated, dto.RegisterAppResponse{
		ID:        registered.ID,
		Name:      registered.Name,
		Secret:    registered.Secret,
		CreatedAt: registered.CreatedAt,
	})
}

func (h *AppHandler) List(c *gin.Context) {
	apps, err := h.service.ListApps(c.Request.Context())
	if err != nil {
		h.logger.Error("Service failed to list apps", zap.Error(err))
		c.Error(err)
		return
	}

	responses := make([]*dto.AppResponse, len(apps))
	for i, a := range apps {
		responses[i] = dto.NewAppResponse(a)
	}
	c.JSON(http.StatusOK, gin.H{"apps": responses})
}
