package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/keypilot/keypilot-api/internal/config"
	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"github.com/keypilot/keypilot-api/internal/tasks"
	"go.uber.org/zap"
)

// RunWorkers starts the asynq server consuming queued telemetry writes.
// The returned channel reports fatal server errors; call the shutdown
// func to drain in-flight tasks and stop.
func RunWorkers(cfg *config.Config, repo tracking.Repository, logger *zap.Logger) (<-chan error, func(context.Context)) {
	errChan := make(chan error, 1)

	redisConnOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(
		redisConnOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log := logger.Named("AsynqServerErrorHandler")
				log.Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err),
				)
			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	mux := asynq.NewServeMux()

	telemetryHandler := tasks.NewTelemetryHandler(repo, logger)
	mux.HandleFunc(tasks.TypeTelemetryActivation, telemetryHandler.ProcessActivation)
	mux.HandleFunc(tasks.TypeTelemetryFailedAttempt, telemetryHandler.ProcessFailedAttempt)

	go func() {
		logger.Info("Starting Asynq Server...")
		if err := srv.Run(mux); err != nil {
			logger.Error("Asynq Server run failed", zap.Error(err))
			errChan <- fmt.Errorf("asynq server error: %w", err)
		}
		logger.Info("Asynq Server stopped.")
	}()

	shutdownFunc := func(ctx context.Context) {
		logger.Info("Shutting down Asynq Server...")
		srv.Shutdown()
		logger.Info("Asynq Server stopped.")
	}

	return errChan, shutdownFunc
}

type asynqLoggerAdapter struct {
	logger *zap.Logger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
