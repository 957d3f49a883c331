// Package fingerprint canonicalizes raw hardware identifiers before
// they touch storage. Only the resulting hash is ever persisted or
// logged; the raw identifier stays in request scope.
package fingerprint

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// Normalize trims surrounding whitespace, lowercases and hashes the
// raw identifier. Inputs differing only in case or padding produce the
// same hash. Empty or whitespace-only input is rejected.
func Normalize(raw string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", ErrInvalidFingerprint
	}

	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum), nil
}
