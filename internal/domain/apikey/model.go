package apikey

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is an administrative credential guarding the issuance and
// telemetry-report endpoints. Only the hash of the full key is stored.
type APIKey struct {
	ID          uuid.UUID  `db:"id"`
	KeyHash     string     `db:"key_hash"`
	Prefix      string     `db:"prefix"`
	Description string     `db:"description"`
	IsEnabled   bool       `db:"is_enabled"`
	CreatedAt   time.Time  `db:"created_at"`
	LastUsedAt  *time.Time `db:"last_used_at"`
}

const (
	APIKeyPrefixLength = 8
	APIKeySecretLength = 32
	APIKeyFormat       = "kp_%s_%s"
)
