package telemetry

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"github.com/keypilot/keypilot-api/internal/metrics"
	"github.com/keypilot/keypilot-api/internal/tasks"
	"go.uber.org/zap"
)

// QueueRecorder enqueues telemetry rows to asynq; the worker persists
// them. Enqueueing keeps the request path free of the tracking table's
// write latency.
type QueueRecorder struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewQueueRecorder(client *asynq.Client, logger *zap.Logger) *QueueRecorder {
	return &QueueRecorder{
		client: client,
		logger: logger.Named("TelemetryQueueRecorder"),
	}
}

var _ Recorder = (*QueueRecorder)(nil)

func (r *QueueRecorder) RecordActivation(ctx context.Context, rec *tracking.Activation) {
	task, err := tasks.NewActivationTask(rec)
	if err != nil {
		metrics.TelemetryWriteFailures.WithLabelValues("activation").Inc()
		r.logger.Error("Failed to build activation telemetry task", zap.Int64("license_id", rec.LicenseID), zap.Error(err))
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task); err != nil {
		metrics.TelemetryWriteFailures.WithLabelValues("activation").Inc()
		r.logger.Error("Failed to enqueue activation telemetry", zap.Int64("license_id", rec.LicenseID), zap.Error(err))
	}
}

func (r *QueueRecorder) RecordFailedAttempt(ctx context.Context, rec *tracking.FailedAttempt) {
	task, err := tasks.NewFailedAttemptTask(rec)
	if err != nil {
		metrics.TelemetryWriteFailures.WithLabelValues("failed_attempt").Inc()
		r.logger.Error("Failed to build failed-attempt telemetry task", zap.Int64("app_id", rec.AppID), zap.Error(err))
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task); err != nil {
		metrics.TelemetryWriteFailures.WithLabelValues("failed_attempt").Inc()
		r.logger.Error("Failed to enqueue failed-attempt telemetry", zap.Int64("app_id", rec.AppID), zap.Error(err))
	}
}
