package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
)

const (
	TypeTelemetryActivation    = "telemetry:activation"
	TypeTelemetryFailedAttempt = "telemetry:failed_attempt"

	// Telemetry is best-effort: one redelivery, then the row is dropped
	// (and counted, see metrics.TelemetryWriteFailures).
	telemetryMaxRetry = 1
)

func NewActivationTask(rec *tracking.Activation, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	allOpts := append(opts, asynq.MaxRetry(telemetryMaxRetry), asynq.Queue("low"))
	return asynq.NewTask(TypeTelemetryActivation, payload, allOpts...), nil
}

func NewFailedAttemptTask(rec *tracking.FailedAttempt, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	allOpts := append(opts, asynq.MaxRetry(telemetryMaxRetry), asynq.Queue("low"))
	return asynq.NewTask(TypeTelemetryFailedAttempt, payload, allOpts...), nil
}
