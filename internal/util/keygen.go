package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	licenseKeyCharset    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	licenseKeyGroups     = 4
	licenseKeyGroupChars = 4

	appSecretBytes = 32
)

// GenerateLicenseKey produces an opaque key in the XXXX-XXXX-XXXX-XXXX
// format from a cryptographically secure source.
func GenerateLicenseKey() (string, error) {
	charsetLen := big.NewInt(int64(len(licenseKeyCharset)))

	groups := make([]string, 0, licenseKeyGroups)
	for i := 0; i < licenseKeyGroups; i++ {
		var sb strings.Builder
		for j := 0; j < licenseKeyGroupChars; j++ {
			idx, err := rand.Int(rand.Reader, charsetLen)
			if err != nil {
				return "", fmt.Errorf("failed to generate license key: %w", err)
			}
			sb.WriteByte(licenseKeyCharset[idx.Int64()])
		}
		groups = append(groups, sb.String())
	}

	return strings.Join(groups, "-"), nil
}

// GenerateAppSecret returns a 64-character hex secret used both as the
// app's API credential and as its token-signing key.
func GenerateAppSecret() (string, error) {
	b, err := generateRandomBytes(appSecretBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate app secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
