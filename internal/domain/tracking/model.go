package tracking

import "time"

// Stable reason codes persisted with failed attempts.
const (
	ReasonNotFound        = "license_not_found"
	ReasonAppMismatch     = "app_mismatch"
	ReasonExpired         = "license_expired"
	ReasonHwidMismatch    = "hwid_mismatch"
	ReasonAlreadyUsed     = "already_used_elsewhere"
	ReasonRevoked         = "license_revoked"
)

// ClientMeta carries the request context recorded with every telemetry
// row. Fingerprint is the normalized hash, never the raw identifier.
type ClientMeta struct {
	IPAddress   string `json:"ip_address"`
	Fingerprint string `json:"hwid"`
	UserAgent   string `json:"user_agent"`
	Country     string `json:"country"`
	City        string `json:"city"`
}

// Activation is an append-only success log entry.
type Activation struct {
	ID          int64      `db:"id" json:"id"`
	LicenseID   int64      `db:"license_id" json:"license_id"`
	Meta        ClientMeta `json:"meta"`
	ActivatedAt time.Time  `db:"activated_at" json:"activated_at"`
}

// FailedAttempt is an append-only rejection log entry. AppID is zero
// when no owning app could be resolved.
type FailedAttempt struct {
	ID           int64      `db:"id" json:"id"`
	AppID        int64      `db:"app_id" json:"app_id"`
	AttemptedKey string     `db:"attempted_key" json:"attempted_key"`
	Meta         ClientMeta `json:"meta"`
	Reason       string     `db:"reason" json:"reason"`
	AttemptedAt  time.Time  `db:"attempted_at" json:"attempted_at"`
}
