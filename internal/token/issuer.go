// Package token signs identity assertions into time-bound transport
// tokens. The token lifetime is a session bound, independent of the
// license's own trial expiry.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/keypilot/keypilot-api/internal/activation"
	"github.com/keypilot/keypilot-api/internal/config"
	"github.com/keypilot/keypilot-api/internal/ierr"
	"go.uber.org/zap"
)

const DefaultTTL = 60 * time.Minute

// Claims is the wire shape of a signed assertion. LicenseExpiresAt is
// the trial window end in ISO-8601, null for lifetime licenses; exp is
// the token's own expiry.
type Claims struct {
	LicenseID        int64   `json:"license_id"`
	AppID            int64   `json:"app_id"`
	Type             string  `json:"type"`
	LicenseExpiresAt *string `json:"expires_at"`
	HWID             string  `json:"hwid"`
	jwt.RegisteredClaims
}

type Issuer struct {
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewIssuer(cfg *config.TokenConfig, logger *zap.Logger) *Issuer {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		ttl:    ttl,
		logger: logger.Named("TokenIssuer"),
		now:    time.Now,
	}
}

// Issue signs the assertion with HS256 keyed by the owning app's
// secret. Any failure here is an internal fault, never an activation
// rejection.
func (i *Issuer) Issue(assertion *activation.IdentityAssertion, appSecret string) (string, error) {
	if appSecret == "" {
		return "", fmt.Errorf("%w: app has no signing secret", ierr.ErrSigningFailure)
	}

	now := i.now().UTC()
	claims := Claims{
		LicenseID: assertion.LicenseID,
		AppID:     assertion.AppID,
		Type:      string(assertion.LicenseType),
		HWID:      assertion.Fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	if assertion.ExpiresAt != nil {
		formatted := assertion.ExpiresAt.UTC().Format(time.RFC3339)
		claims.LicenseExpiresAt = &formatted
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(appSecret))
	if err != nil {
		i.logger.Error("Failed to sign identity assertion",
			zap.Int64("license_id", assertion.LicenseID),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %v", ierr.ErrSigningFailure, err)
	}
	return signed, nil
}

// Verify parses and validates a token against the app secret. It is
// the downstream counterpart of Issue, used by consumers and tests.
func (i *Issuer) Verify(tokenString, appSecret string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(appSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
