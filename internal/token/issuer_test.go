package token

import (
	"testing"
	"time"

	"github.com/keypilot/keypilot-api/internal/activation"
	"github.com/keypilot/keypilot-api/internal/config"
	"github.com/keypilot/keypilot-api/internal/domain/license"
	"github.com/keypilot/keypilot-api/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(ttl time.Duration) *Issuer {
	return NewIssuer(&config.TokenConfig{TTL: ttl}, zap.NewNop())
}

func TestIssueAndVerifyLifetime(t *testing.T) {
	issuer := newTestIssuer(30 * time.Minute)

	signed, err := issuer.Issue(&activation.IdentityAssertion{
		LicenseID:   42,
		AppID:       7,
		LicenseType: license.TypeLifetime,
		Fingerprint: "abc123hash",
	}, testSecret)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := issuer.Verify(signed, testSecret)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.LicenseID)
	assert.Equal(t, int64(7), claims.AppID)
	assert.Equal(t, "lifetime", claims.Type)
	assert.Equal(t, "abc123hash", claims.HWID)
	assert.Nil(t, claims.LicenseExpiresAt)

	require.NotNil(t, claims.IssuedAt)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, claims.IssuedAt.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestIssueTrialCarriesLicenseExpiry(t *testing.T) {
	issuer := newTestIssuer(0) // falls back to DefaultTTL

	trialEnd := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signed, err := issuer.Issue(&activation.IdentityAssertion{
		LicenseID:   1,
		AppID:       1,
		LicenseType: license.TypeTrial,
		ExpiresAt:   &trialEnd,
		Fingerprint: "hash",
	}, testSecret)
	require.NoError(t, err)

	claims, err := issuer.Verify(signed, testSecret)
	require.NoError(t, err)

	require.NotNil(t, claims.LicenseExpiresAt)
	assert.Equal(t, "2026-03-01T12:00:00Z", *claims.LicenseExpiresAt)

	// Token lifetime is independent of the license term.
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := newTestIssuer(time.Minute)

	signed, err := issuer.Issue(&activation.IdentityAssertion{
		LicenseID:   1,
		AppID:       1,
		LicenseType: license.TypeLifetime,
		Fingerprint: "hash",
	}, testSecret)
	require.NoError(t, err)

	_, err = issuer.Verify(signed, "wrong-secret")
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := newTestIssuer(time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	signed, err := issuer.Issue(&activation.IdentityAssertion{
		LicenseID:   1,
		AppID:       1,
		LicenseType: license.TypeLifetime,
		Fingerprint: "hash",
	}, testSecret)
	require.NoError(t, err)

	_, err = issuer.Verify(signed, testSecret)
	assert.Error(t, err)
}

func TestIssueFailsWithoutSecret(t *testing.T) {
	issuer := newTestIssuer(time.Minute)

	_, err := issuer.Issue(&activation.IdentityAssertion{
		LicenseID:   1,
		AppID:       1,
		LicenseType: license.TypeLifetime,
		Fingerprint: "hash",
	}, "")
	assert.ErrorIs(t, err, ierr.ErrSigningFailure)
}
