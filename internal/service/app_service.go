package service

import (
	"context"
	"fmt"

	"github.com/keypilot/keypilot-api/internal/domain/app"
	"github.com/keypilot/keypilot-api/internal/ierr"
	"github.com/keypilot/keypilot-api/internal/util"
	"go.uber.org/zap"
)

type AppService struct {
	repo   app.Repository
	logger *zap.Logger
}

func NewAppService(repo app.Repository, logger *zap.Logger) *AppService {
	return &AppService{
		repo:   repo,
		logger: logger.Named("AppService"),
	}
}

// RegisterApp creates an application with a freshly generated signing
// secret. The secret is returned exactly once, in the creation result.
func (s *AppService) RegisterApp(ctx context.Context, name string) (*app.App, error) {
	s.logger.Info("Registering new app", zap.String("name", name))

	if name == "" {
		return nil, fmt.Errorf("%w: app name cannot be empty", ierr.ErrValidation)
	}

	secret, err := util.GenerateAppSecret()
	if err != nil {
		s.logger.Error("Failed to generate app secret", zap.Error(err))
		return nil, fmt.Errorf("%w: generating app secret: %v", ierr.ErrInternalServer, err)
	}

	newApp := &app.App{
		Name:   name,
		Secret: secret,
	}

	insertedID, err := s.repo.Create(ctx, newApp)
	if err != nil {
		s.logger.Error("Failed to create app via repository", zap.Error(err))
		return nil, fmt.Errorf("repository error during app registration: %w", err)
	}

	created, err := s.repo.FindByID(ctx, insertedID)
	if err != nil {
		s.logger.Error("Failed to find newly created app by ID", zap.Int64("id", insertedID), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve created app (id: %d): %w", insertedID, err)
	}

	s.logger.Info("App registered successfully", zap.Int64("id", created.ID), zap.String("name", created.Name))
	return created, nil
}

func (s *AppService) ListApps(ctx context.Context) ([]*app.App, error) {
	apps, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list apps from repository", zap.Error(err))
		return nil, fmt.Errorf("repository error listing apps: %w", err)
	}
	return apps, nil
}

func (s *AppService) GetApp(ctx context.Context, id int64) (*app.App, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a, nil
}
