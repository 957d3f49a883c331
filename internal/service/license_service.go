package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keypilot/keypilot-api/internal/domain/app"
	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/handler/dto"
	"github.com/keypilot/keypilot-api/internal/ierr"
	"github.com/keypilot/keypilot-api/internal/util"
	"go.uber.org/zap"
)

type LicenseService struct {
	licenses license.Repository
	apps     app.Repository
	logger   *zap.Logger
}

func NewLicenseService(licenses license.Repository, apps app.Repository, logger *zap.Logger) *LicenseService {
	return &LicenseService{
		licenses: licenses,
		apps:     apps,
		logger:   logger.Named("LicenseService"),
	}
}

// IssueLicense creates a new active license for an existing app. Trial
// licenses require a positive duration; lifetime licenses never carry
// one.
func (s *LicenseService) IssueLicense(ctx context.Context, req *dto.IssueLicenseRequest) (*license.License, error) {
	s.logger.Info("Attempting to issue a new license",
		zap.Int64("app_id", req.AppID),
		zap.String("type", string(req.Type)),
	)

	switch req.Type {
	case license.TypeTrial:
		if req.DurationDays == nil || *req.DurationDays <= 0 {
			return nil, fmt.Errorf("%w: trial licenses must have a positive duration in days", ierr.ErrValidation)
		}
	case license.TypeLifetime:
		if req.DurationDays != nil {
			return nil, fmt.Errorf("%w: lifetime licenses cannot carry a duration", ierr.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: invalid license type %q", ierr.ErrValidation, req.Type)
	}

	if _, err := s.apps.FindByID(ctx, req.AppID); err != nil {
		if errors.Is(err, app.ErrNotFound) {
			return nil, fmt.Errorf("%w: app %d does not exist", ierr.ErrNotFound, req.AppID)
		}
		return nil, fmt.Errorf("repository error checking app: %w", err)
	}

	licenseKey, err := util.GenerateLicenseKey()
	if err != nil {
		s.logger.Error("Failed to generate license key", zap.Error(err))
		return nil, fmt.Errorf("%w: generating license key: %v", ierr.ErrInternalServer, err)
	}

	newLicense := &license.License{
		AppID:      req.AppID,
		LicenseKey: licenseKey,
		Type:       req.Type,
		Status:     license.StatusActive,
	}
	if req.Type == license.TypeTrial {
		newLicense.DurationDays = sql.NullInt32{Int32: *req.DurationDays, Valid: true}
	}

	insertedID, err := s.licenses.Create(ctx, newLicense)
	if err != nil {
		s.logger.Error("Failed to create license via repository", zap.Error(err))
		return nil, fmt.Errorf("repository error during license creation: %w", err)
	}

	created, err := s.licenses.FindByID(ctx, insertedID)
	if err != nil {
		s.logger.Error("Failed to find newly created license by ID", zap.Int64("id", insertedID), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve created license (id: %d): %w", insertedID, err)
	}

	s.logger.Info("License issued successfully",
		zap.Int64("id", created.ID),
		zap.String("key", created.LicenseKey),
	)
	return created, nil
}

func (s *LicenseService) ListLicenses(ctx context.Context, appID int64) ([]*license.License, error) {
	licenses, err := s.licenses.ListByApp(ctx, appID)
	if err != nil {
		s.logger.Error("Failed to list licenses from repository", zap.Int64("app_id", appID), zap.Error(err))
		return nil, fmt.Errorf("repository error listing licenses: %w", err)
	}
	return licenses, nil
}
