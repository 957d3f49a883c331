package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keypilot/keypilot-api/internal/activation"
	"github.com/keypilot/keypilot-api/internal/domain/app"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"github.com/keypilot/keypilot-api/internal/geoip"
	"github.com/keypilot/keypilot-api/internal/handler/dto"
	"github.com/keypilot/keypilot-api/internal/service"
	"github.com/keypilot/keypilot-api/internal/token"
	"go.uber.org/zap"
)

// ActivateHandler fronts the activation engine: it assembles client
// metadata at the HTTP boundary, runs the decision and signs the
// resulting assertion with the owning app's secret.
type ActivateHandler struct {
	engine *activation.Engine
	issuer *token.Issuer
	apps   *service.AppService
	geo    *geoip.Client
	logger *zap.Logger
}

func NewActivateHandler(engine *activation.Engine, issuer *token.Issuer, apps *service.AppService, geo *geoip.Client, logger *zap.Logger) *ActivateHandler {
	return &ActivateHandler{
		engine: engine,
		issuer: issuer,
		apps:   apps,
		geo:    geo,
		logger: logger.Named("ActivateHandler"),
	}
}

func (h *ActivateHandler) Activate(c *gin.Context) {
	var req dto.ActivateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate activation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.APIErrorResponse{
			Code:    "missing_fields",
			Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	ip := c.ClientIP()
	location := h.geo.Lookup(c.Request.Context(), ip)

	assertion, err := h.engine.Activate(c.Request.Context(), activation.Request{
		AppID:          req.AppID,
		LicenseKey:     req.LicenseKey,
		RawFingerprint: req.HWID,
		Meta: tracking.ClientMeta{
			IPAddress: ip,
			UserAgent: c.Request.UserAgent(),
			Country:   location.Country,
			City:      location.City,
		},
	})
	if err != nil {
		h.respondRejection(c, err)
		return
	}

	owner, err := h.apps.GetApp(c.Request.Context(), assertion.AppID)
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			h.logger.Error("Owning app missing for activated license",
				zap.Int64("app_id", assertion.AppID),
				zap.Int64("license_id", assertion.LicenseID),
			)
			c.JSON(http.StatusNotFound, dto.APIErrorResponse{
				Code:    "app_not_found",
				Message: "Application not found.",
			})
			return
		}
		c.Error(err)
		return
	}

	signed, err := h.issuer.Issue(assertion, owner.Secret)
	if err != nil {
		c.Error(err)
		return
	}

	h.logger.Info("License activated",
		zap.Int64("license_id", assertion.LicenseID),
		zap.Int64("app_id", assertion.AppID),
	)
	c.JSON(http.StatusOK, dto.ActivateLicenseResponse{Token: signed})
}

func (h *ActivateHandler) respondRejection(c *gin.Context, err error) {
	rejection, ok := activation.AsError(err)
	if !ok {
		// Storage or other internal fault: let the error middleware
		// shape the 500.
		c.Error(err)
		return
	}

	status := http.StatusForbidden
	switch rejection.Kind {
	case activation.KindInvalidFingerprint, activation.KindMissingFields:
		status = http.StatusBadRequest
	case activation.KindNotFound:
		status = http.StatusNotFound
	}

	h.logger.Info("Activation rejected",
		zap.String("code", rejection.Kind.String()),
		zap.Int("status", status),
	)
	c.JSON(status, dto.APIErrorResponse{
		Code:    rejection.Kind.String(),
		Message: rejection.Error(),
	})
}
