package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"go.uber.org/zap"
)

// TelemetryHandler persists queued telemetry records through the
// tracking repository. It runs inside the asynq worker, off the
// activation request path.
type TelemetryHandler struct {
	repo   tracking.Repository
	logger *zap.Logger
}

func NewTelemetryHandler(repo tracking.Repository, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		repo:   repo,
		logger: logger.Named("TelemetryHandler"),
	}
}

func (h *TelemetryHandler) ProcessActivation(ctx context.Context, t *asynq.Task) error {
	var rec tracking.Activation
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		h.logger.Error("Failed to unmarshal activation telemetry payload", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := h.repo.InsertActivation(ctx, &rec); err != nil {
		h.logger.Error("Failed to persist activation record",
			zap.Int64("license_id", rec.LicenseID),
			zap.Error(err),
		)
		return fmt.Errorf("repository error inserting activation: %w", err)
	}

	h.logger.Debug("Activation record persisted", zap.Int64("license_id", rec.LicenseID))
	return nil
}

func (h *TelemetryHandler) ProcessFailedAttempt(ctx context.Context, t *asynq.Task) error {
	var rec tracking.FailedAttempt
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		h.logger.Error("Failed to unmarshal failed-attempt telemetry payload", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := h.repo.InsertFailedAttempt(ctx, &rec); err != nil {
		h.logger.Error("Failed to persist failed-attempt record",
			zap.Int64("app_id", rec.AppID),
			zap.String("reason", rec.Reason),
			zap.Error(err),
		)
		return fmt.Errorf("repository error inserting failed attempt: %w", err)
	}

	h.logger.Debug("Failed-attempt record persisted", zap.Int64("app_id", rec.AppID), zap.String("reason", rec.Reason))
	return nil
}
