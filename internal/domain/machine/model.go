package machine

import "time"

// Machine records the single hardware binding of a license. The
// fingerprint hash is immutable for the license's lifetime.
type Machine struct {
	ID          int64     `db:"id" json:"id"`
	LicenseID   int64     `db:"license_id" json:"license_id"`
	Fingerprint string    `db:"hwid" json:"hwid"`
	ActivatedAt time.Time `db:"activated_at" json:"activated_at"`
}
