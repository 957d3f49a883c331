package service

import (
	"context"
	"fmt"

	"github.com/keypilot/keypilot-api/internal/domain/tracking"
	"github.com/keypilot/keypilot-api/internal/handler/dto"
	"go.uber.org/zap"
)

// ReportService serves the read side of the telemetry log for the
// admin API.
type ReportService struct {
	repo   tracking.Repository
	logger *zap.Logger
}

func NewReportService(repo tracking.Repository, logger *zap.Logger) *ReportService {
	return &ReportService{
		repo:   repo,
		logger: logger.Named("ReportService"),
	}
}

func (s *ReportService) ListActivations(ctx context.Context, appID int64) ([]*dto.ActivationResponse, error) {
	records, err := s.repo.ListActivations(ctx, appID)
	if err != nil {
		s.logger.Error("Failed to list activations from repository", zap.Int64("app_id", appID), zap.Error(err))
		return nil, fmt.Errorf("repository error listing activations: %w", err)
	}

	responses := make([]*dto.ActivationResponse, len(records))
	for i, rec := range records {
		responses[i] = dto.NewActivationResponse(rec)
	}
	return responses, nil
}

func (s *ReportService) ListFailedAttempts(ctx context.Context, appID int64) ([]*dto.FailedAttemptResponse, error) {
	records, err := s.repo.ListFailedAttempts(ctx, appID)
	if err != nil {
		s.logger.Error("Failed to list failed attempts from repository", zap.Int64("app_id", appID), zap.Error(err))
		return nil, fmt.Errorf("repository error listing failed attempts: %w", err)
	}

	responses := make([]*dto.FailedAttemptResponse, len(records))
	for i, rec := range records {
		responses[i] = dto.NewFailedAttemptResponse(rec)
	}
	return responses, nil
}
