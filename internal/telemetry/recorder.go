// Package telemetry implements the fire-and-forget audit trail of
// activation successes and rejections. Recorder implementations must
// never let a write failure reach the activation caller: failures are
// logged and counted, the already-computed decision stands.
package telemetry

import (
	"context"

	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"github.com/keypilot/keypilot-api/internal/metrics"
	"go.uber.org/zap"
)

type Recorder interface {
	RecordActivation(ctx context.Context, rec *tracking.Activation)
	RecordFailedAttempt(ctx context.Context, rec *tracking.FailedAttempt)
}

// DirectRecorder writes telemetry straight through the tracking
// repository. Used by deployments without Redis and by tests.
type DirectRecorder struct {
	repo   tracking.Repository
	logger *zap.Logger
}

func NewDirectRecorder(repo tracking.Repository, logger *zap.Logger) *DirectRecorder {
	return &DirectRecorder{
		repo:   repo,
		logger: logger.Named("TelemetryRecorder"),
	}
}

var _ Recorder = (*DirectRecorder)(nil)

func (r *DirectRecorder) RecordActivation(ctx context.Context, rec *tracking.Activation) {
	if _, err := r.repo.InsertActivation(ctx, rec); err != nil {
		metrics.TelemetryWriteFailures.WithLabelValues("activation").Inc()
		r.logger.Error("Failed to record activation",
			zap.Int64("license_id", rec.LicenseID),
			zap.Error(err),
		)
	}
}

func (r *DirectRecorder) RecordFailedAttempt(ctx context.Context, rec *tracking.FailedAttempt) {
	if _, err := r.repo.InsertFailedAttempt(ctx, rec); err != nil {
		metrics.TelemetryWriteFailures.WithLabelValues("failed_attempt").Inc()
		r.logger.Error("Failed to record failed attempt",
			zap.Int64("app_id", rec.AppID),
			zap.String("reason", rec.Reason),
			zap.Error(err),
		)
	}
}
