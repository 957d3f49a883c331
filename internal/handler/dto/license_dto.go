package dto

import (
	"time"

	"github.com/keypilot/keypilot-api/internal/domain/license"
)

type IssueLicenseRequest struct {
	AppID        int64               `json:"app_id" binding:"required,gt=0"`
	Type         license.LicenseType `json:"type" binding:"required,oneof=trial lifetime"`
	DurationDays *int32              `json:"duration_days" binding:"omitempty,gt=0"`
}

type LicenseResponse struct {
	ID           int64                 `json:"id"`
	AppID        int64                 `json:"app_id"`
	LicenseKey   string                `json:"license_key"`
	Type         license.LicenseType   `json:"type"`
	DurationDays *int32                `json:"duration_days,omitempty"`
	Status       license.LicenseStatus `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
}

func NewLicenseResponse(lic *license.License) *LicenseResponse {
	resp := &LicenseResponse{
		ID:         lic.ID,
		AppID:      lic.AppID,
		LicenseKey: lic.LicenseKey,
		Type:       lic.Type,
		Status:     lic.Status,
		CreatedAt:  lic.CreatedAt,
	}
	if lic.DurationDays.Valid {
		days := lic.DurationDays.Int32
		resp.DurationDays = &days
	}
	return resp
}
