package license

import (
	"database/sql"
	"time"
)

type LicenseStatus string

const (
	StatusActive  LicenseStatus = "active"
	StatusUsed    LicenseStatus = "used"
	StatusExpired LicenseStatus = "expired"
	StatusRevoked LicenseStatus = "revoked"
)

type LicenseType string

const (
	TypeTrial    LicenseType = "trial"
	TypeLifetime LicenseType = "lifetime"
)

// License binds a key to an owning app. Status moves strictly forward:
// active->used, active->expired, any->revoked. DurationDays is set iff
// the license is a trial.
type License struct {
	ID           int64         `db:"id" json:"id"`
	AppID        int64         `db:"app_id" json:"app_id"`
	LicenseKey   string        `db:"license_key" json:"license_key"`
	Type         LicenseType   `db:"type" json:"type"`
	DurationDays sql.NullInt32 `db:"duration_days" json:"duration_days,omitempty"`
	Status       LicenseStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// TrialExpiresAt returns the end of the trial window. Valid is false
// for non-trial licenses or when no duration was recorded.
func (l *License) TrialExpiresAt() (time.Time, bool) {
	if l.Type != TypeTrial || !l.DurationDays.Valid {
		return time.Time{}, false
	}
	return l.CreatedAt.Add(time.Duration(l.DurationDays.Int32) * 24 * time.Hour), true
}
