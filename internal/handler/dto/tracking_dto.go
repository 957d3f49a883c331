package dto

import (
	"time"

	"github.com/keypilot/keypilot-api/internal/domain/tracking"
)

type ActivationResponse struct {
	ID          int64     `json:"id"`
	LicenseID   int64     `json:"license_id"`
	IPAddress   string    `json:"ip_address"`
	HWID        string    `json:"hwid"`
	UserAgent   string    `json:"user_agent"`
	Country     string    `json:"country"`
	City        string    `json:"city"`
	ActivatedAt time.Time `json:"activated_at"`
}

func NewActivationResponse(rec *tracking.Activation) *ActivationResponse {
	return &ActivationResponse{
		ID:          rec.ID,
		LicenseID:   rec.LicenseID,
		IPAddress:   rec.Meta.IPAddress,
		HWID:        rec.Meta.Fingerprint,
		UserAgent:   rec.Meta.UserAgent,
		Country:     rec.Meta.Country,
		City:        rec.Meta.City,
		ActivatedAt: rec.ActivatedAt,
	}
}

type FailedAttemptResponse struct {
	ID           int64     `json:"id"`
	AppID        int64     `json:"app_id,omitempty"`
	AttemptedKey string    `json:"attempted_key"`
	IPAddress    string    `json:"ip_address"`
	HWID         string    `json:"hwid"`
	UserAgent    string    `json:"user_agent"`
	Country      string    `json:"country"`
	City         string    `json:"city"`
	Reason       string    `json:"reason"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

func NewFailedAttemptResponse(rec *tracking.FailedAttempt) *FailedAttemptResponse {
	return &FailedAttemptResponse{
		ID:           rec.ID,
		AppID:        rec.AppID,
		AttemptedKey: rec.AttemptedKey,
		IPAddress:    rec.Meta.IPAddress,
		HWID:         rec.Meta.Fingerprint,
		UserAgent:    rec.Meta.UserAgent,
		Country:      rec.Meta.Country,
		City:         rec.Meta.City,
		Reason:       rec.Reason,
		AttemptedAt:  rec.AttemptedAt,
	}
}
